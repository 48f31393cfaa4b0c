package updates

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"huddle/tools/errs"
)

func newTestNotifier(t *testing.T, mr *miniredis.Miniredis) *RedisNotifier {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	n := NewRedisNotifier(rdb)
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db := NewMemDB()
	seq := NewSeqAllocator(rdb, db)
	svc := NewService(db, seq, newTestNotifier(t, mr), ServiceConf{Heartbeat: time.Hour})
	t.Cleanup(svc.Stop)
	return svc, mr
}

// fakeConn captures stream writes for assertions.
type fakeConn struct {
	mu         sync.Mutex
	envelopes  []*UpdateEnvelope
	ephemerals []*EphemeralEnvelope
	pings      int
	closed     bool
}

func (c *fakeConn) WriteEnvelope(env *UpdateEnvelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envelopes = append(c.envelopes, env)
	return nil
}

func (c *fakeConn) WriteEphemeral(env *EphemeralEnvelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ephemerals = append(c.ephemerals, env)
	return nil
}

func (c *fakeConn) WritePing() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) envelopeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.envelopes)
}

func (c *fakeConn) ephemeralCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ephemerals)
}

func (c *fakeConn) seqnos() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, len(c.envelopes))
	for i, env := range c.envelopes {
		out[i] = env.Seqno
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStreamDeliversBacklogThenLive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.PublishToUsers(ctx, []string{"alice"}, EventMessageCreated, map[string]any{"n": 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := svc.PublishToUsers(ctx, []string{"alice"}, EventMessageCreated, map[string]any{"n": 2}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	conn := &fakeConn{}
	cancel, err := svc.Subscribe("alice", "org1", 0, conn)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	waitFor(t, "backlog delivery", func() bool { return conn.envelopeCount() == 2 })

	if err := svc.PublishToUsers(ctx, []string{"alice"}, EventMessageCreated, map[string]any{"n": 3}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, "live delivery", func() bool { return conn.envelopeCount() == 3 })

	for i, s := range conn.seqnos() {
		if s != int64(i+1) {
			t.Fatalf("delivery out of order: %v", conn.seqnos())
		}
	}
}

func TestStreamResumesFromOffset(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := svc.PublishToUsers(ctx, []string{"alice"}, EventMessageCreated, nil); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	conn := &fakeConn{}
	cancel, err := svc.Subscribe("alice", "org1", 2, conn)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	waitFor(t, "resumed delivery", func() bool { return conn.envelopeCount() == 1 })
	if got := conn.seqnos(); got[0] != 3 {
		t.Fatalf("resumed from offset 2 but got seqnos %v", got)
	}
}

func TestStreamReceivesEphemeral(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conn := &fakeConn{}
	cancel, err := svc.Subscribe("alice", "org1", 0, conn)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	svc.PublishEphemeralToUsers(ctx, []string{"alice"}, EventTyping, map[string]any{"channelId": "c1"})
	waitFor(t, "ephemeral delivery", func() bool { return conn.ephemeralCount() == 1 })

	conn.mu.Lock()
	env := conn.ephemerals[0]
	conn.mu.Unlock()
	if env.EventType != EventTyping {
		t.Fatalf("eventType = %q, want %q", env.EventType, EventTyping)
	}
	if conn.envelopeCount() != 0 {
		t.Fatal("ephemeral signal arrived as a durable envelope")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)

	conn := &fakeConn{}
	cancel, err := svc.Subscribe("alice", "org1", 0, conn)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	waitFor(t, "registration", func() bool { return svc.Conns().CountForUser("alice") == 1 })
	cancel()
	cancel()

	if n := svc.Conns().CountForUser("alice"); n != 0 {
		t.Fatalf("live connections after teardown = %d, want 0", n)
	}
	conn.mu.Lock()
	closed := conn.closed
	conn.mu.Unlock()
	if !closed {
		t.Fatal("transport not closed on unsubscribe")
	}
}

func TestSubscribeAfterStopRejected(t *testing.T) {
	svc, _ := newTestService(t)
	svc.Stop()

	_, err := svc.Subscribe("alice", "org1", 0, &fakeConn{})
	if !errs.IsCode(err, errs.CodeConnectionClosed) {
		t.Fatalf("err = %v, want connection-closed code", err)
	}
}

// flakyDiffDB fails the first N diff queries, then recovers.
type flakyDiffDB struct {
	DB
	mu       sync.Mutex
	failures int
}

func (d *flakyDiffDB) QueryDiff(ctx context.Context, userID string, offset int64, limit int) ([]*UpdateEnvelope, bool, error) {
	d.mu.Lock()
	if d.failures > 0 {
		d.failures--
		d.mu.Unlock()
		return nil, false, ErrUnavailable
	}
	d.mu.Unlock()
	return d.DB.QueryDiff(ctx, userID, offset, limit)
}

func TestCatchUpRetriesAfterStoreBlip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db := NewMemDB()
	seq := NewSeqAllocator(rdb, db)
	flaky := &flakyDiffDB{DB: db, failures: 2}
	svc := NewService(flaky, seq, newTestNotifier(t, mr), ServiceConf{Heartbeat: time.Hour})
	t.Cleanup(svc.Stop)
	svc.conns.retryWait = 10 * time.Millisecond

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := svc.PublishToUsers(ctx, []string{"alice"}, EventMessageCreated, nil); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	// the backlog reads fail at first; delivery must still happen without a
	// further publish
	conn := &fakeConn{}
	cancel, err := svc.Subscribe("alice", "org1", 0, conn)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	waitFor(t, "delivery after store blip", func() bool { return conn.envelopeCount() == 2 })
	for i, s := range conn.seqnos() {
		if s != int64(i+1) {
			t.Fatalf("out of order after retry: %v", conn.seqnos())
		}
	}
}

// stopOnSubscribeNotifier stops the manager from inside the transport
// subscribe, landing in the window between the closed check and registration.
type stopOnSubscribeNotifier struct {
	mgr          *ConnManager
	cancelCalled atomic.Bool
}

func (n *stopOnSubscribeNotifier) PublishNotice(ctx context.Context, userID string) error {
	return nil
}

func (n *stopOnSubscribeNotifier) PublishEphemeral(ctx context.Context, userID string, env *EphemeralEnvelope) error {
	return nil
}

func (n *stopOnSubscribeNotifier) Subscribe(userID string, l Listener) (func(), error) {
	n.mgr.Stop()
	return func() { n.cancelCalled.Store(true) }, nil
}

func (n *stopOnSubscribeNotifier) Close() error { return nil }

func TestSubscribeLosingRaceWithStop(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db := NewMemDB()
	store := NewStore(db, NewSeqAllocator(rdb, db))
	n := &stopOnSubscribeNotifier{}
	m := NewConnManager(store, n, time.Hour, 0)
	n.mgr = m

	_, err := m.Subscribe("alice", "org1", 0, &fakeConn{})
	if !errs.IsCode(err, errs.CodeConnectionClosed) {
		t.Fatalf("err = %v, want connection-closed code", err)
	}
	if c := m.CountForUser("alice"); c != 0 {
		t.Fatalf("subscription registered on a stopped manager (count=%d)", c)
	}
	if !n.cancelCalled.Load() {
		t.Fatal("transport subscription leaked")
	}
}

func TestNoticeDuringCatchUpNotLost(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conn := &fakeConn{}
	cancel, err := svc.Subscribe("alice", "org1", 0, conn)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	// burst while the stream is attaching; every row must still arrive
	const burst = 20
	for i := 0; i < burst; i++ {
		if err := svc.PublishToUsers(ctx, []string{"alice"}, EventMessageCreated, nil); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	waitFor(t, "burst delivery", func() bool { return conn.envelopeCount() == burst })
	for i, s := range conn.seqnos() {
		if s != int64(i+1) {
			t.Fatalf("gap or reorder in burst: %v", conn.seqnos())
		}
	}
}

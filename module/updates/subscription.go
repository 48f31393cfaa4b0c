package updates

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"huddle/logger"
	"huddle/tools/safe"
)

// Connection lifecycle. Transitions only move forward:
// CONNECTING -> LIVE -> CLOSED.
const (
	StateConnecting int32 = iota
	StateLive
	StateClosed
)

// StreamConn abstracts the long-lived client transport (a websocket in
// production, a capture fake in tests). Implementations must be safe for
// concurrent writers.
type StreamConn interface {
	WriteEnvelope(env *UpdateEnvelope) error
	WriteEphemeral(env *EphemeralEnvelope) error
	WritePing() error
	Close() error
}

// Subscription is one live streaming connection for one user. Durable
// delivery is self-driven: each notice triggers a diff read from the last
// delivered seqno, so the notice itself never needs to carry payload.
type Subscription struct {
	UserID string
	OrgID  string

	conn          StreamConn
	state         atomic.Int32
	lastDelivered int64 // touched only by the run goroutine after start

	notifyCh chan struct{}
	done     chan struct{}

	closeOnce       sync.Once
	cancelTransport func()
	mgr             *ConnManager
}

// State returns the current lifecycle state.
func (s *Subscription) State() int32 { return s.state.Load() }

// notify coalesces wake-ups; a pending one already covers the new event.
func (s *Subscription) notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

func (s *Subscription) pushEphemeral(env *EphemeralEnvelope) {
	if s.state.Load() != StateLive {
		return
	}
	if err := s.conn.WriteEphemeral(env); err != nil {
		logger.Infof("[updates] ephemeral write failed user=%s err=%v", s.UserID, err)
		s.Unsubscribe()
	}
}

// Unsubscribe tears the connection down. Idempotent; calling it on a CLOSED
// subscription is a no-op.
func (s *Subscription) Unsubscribe() {
	s.closeOnce.Do(func() {
		s.state.Store(StateClosed)
		if s.cancelTransport != nil {
			s.cancelTransport()
		}
		close(s.done)
		_ = s.conn.Close()
		s.mgr.remove(s)
	})
}

func (s *Subscription) run(heartbeat time.Duration, pageSize int) {
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	// close the connect race: drain anything that landed while attaching
	s.catchUp(pageSize)

	for {
		select {
		case <-s.done:
			return
		case <-s.notifyCh:
			s.catchUp(pageSize)
		case <-ticker.C:
			if err := s.conn.WritePing(); err != nil {
				logger.Infof("[updates] heartbeat failed user=%s err=%v", s.UserID, err)
				s.Unsubscribe()
				return
			}
		}
	}
}

// catchUp drains diff pages from the last delivered seqno. The closed state
// is checked between pages so a disconnect stops a large backlog drain.
func (s *Subscription) catchUp(pageSize int) {
	ctx := context.Background()
	for {
		if s.state.Load() == StateClosed {
			return
		}
		page, err := s.mgr.store.DiffGet(ctx, s.UserID, s.lastDelivered, pageSize)
		if err != nil {
			logger.Errorf("[updates] catch-up diff failed user=%s offset=%d err=%v", s.UserID, s.lastDelivered, err)
			// the notice that woke us is spent; re-arm after a beat so a
			// transient store failure cannot strand rows until the next publish
			time.AfterFunc(s.mgr.retryWait, func() {
				if s.state.Load() != StateClosed {
					s.notify()
				}
			})
			return
		}
		for _, env := range page.Envelopes {
			if s.state.Load() == StateClosed {
				return
			}
			if err := s.conn.WriteEnvelope(env); err != nil {
				logger.Infof("[updates] envelope write failed user=%s err=%v", s.UserID, err)
				s.Unsubscribe()
				return
			}
			s.lastDelivered = env.Seqno
		}
		if !page.HasMore {
			return
		}
	}
}

// ConnManager owns the per-user set of live streaming connections.
type ConnManager struct {
	store    *Store
	notifier Notifier

	heartbeat time.Duration
	pageSize  int
	retryWait time.Duration

	mu     sync.RWMutex
	byUser map[string]map[*Subscription]struct{}
	closed bool
}

func NewConnManager(store *Store, notifier Notifier, heartbeat time.Duration, pageSize int) *ConnManager {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	if pageSize <= 0 {
		pageSize = DefaultDiffLimit
	}
	return &ConnManager{
		store:     store,
		notifier:  notifier,
		heartbeat: heartbeat,
		pageSize:  pageSize,
		retryWait: time.Second,
		byUser:    make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers a live connection resuming after fromSeq and starts its
// delivery loop. The returned teardown must be called on disconnect; calling
// it more than once is safe.
func (m *ConnManager) Subscribe(userID, orgID string, fromSeq int64, conn StreamConn) (func(), error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrConnectionClosed.WrapMsg("manager stopped")
	}
	m.mu.Unlock()

	sub := &Subscription{
		UserID:        userID,
		OrgID:         orgID,
		conn:          conn,
		lastDelivered: fromSeq,
		notifyCh:      make(chan struct{}, 1),
		done:          make(chan struct{}),
		mgr:           m,
	}
	sub.state.Store(StateConnecting)

	cancel, err := m.notifier.Subscribe(userID, Listener{
		OnNotice:    sub.notify,
		OnEphemeral: sub.pushEphemeral,
	})
	if err != nil {
		return nil, err
	}
	sub.cancelTransport = cancel

	m.mu.Lock()
	// Stop may have won the race since the check above
	if m.closed {
		m.mu.Unlock()
		cancel()
		return nil, ErrConnectionClosed.WrapMsg("manager stopped")
	}
	set, ok := m.byUser[userID]
	if !ok {
		set = make(map[*Subscription]struct{})
		m.byUser[userID] = set
	}
	set[sub] = struct{}{}
	m.mu.Unlock()

	sub.state.Store(StateLive)
	safe.SafeGo(func() { sub.run(m.heartbeat, m.pageSize) })

	return sub.Unsubscribe, nil
}

func (m *ConnManager) remove(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.byUser[sub.UserID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(m.byUser, sub.UserID)
		}
	}
}

// CountForUser reports how many live connections the user has on this node.
func (m *ConnManager) CountForUser(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUser[userID])
}

// Stop tears down every live subscription; idempotent.
func (m *ConnManager) Stop() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	subs := make([]*Subscription, 0)
	for _, set := range m.byUser {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

package updates

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestRedisNotifierNoticeAndEphemeral(t *testing.T) {
	mr := miniredis.RunT(t)
	n := newTestNotifier(t, mr)
	ctx := context.Background()

	var notices atomic.Int32
	var eph atomic.Pointer[EphemeralEnvelope]
	cancel, err := n.Subscribe("alice", Listener{
		OnNotice:    func() { notices.Add(1) },
		OnEphemeral: func(e *EphemeralEnvelope) { eph.Store(e) },
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	// pub/sub attach is asynchronous; retry until the listener is live
	waitFor(t, "notice", func() bool {
		_ = n.PublishNotice(ctx, "alice")
		return notices.Load() > 0
	})

	if err := n.PublishEphemeral(ctx, "alice", &EphemeralEnvelope{
		EventType: EventTyping,
		Payload:   map[string]any{"channelId": "c1"},
	}); err != nil {
		t.Fatalf("publish ephemeral: %v", err)
	}
	waitFor(t, "ephemeral", func() bool { return eph.Load() != nil })

	got := eph.Load()
	if got.EventType != EventTyping {
		t.Fatalf("eventType = %q", got.EventType)
	}
	if got.Payload["channelId"] != "c1" {
		t.Fatalf("payload = %v", got.Payload)
	}
}

func TestRedisNotifierIsolatesUsers(t *testing.T) {
	mr := miniredis.RunT(t)
	n := newTestNotifier(t, mr)
	ctx := context.Background()

	var aliceNotices, bobNotices atomic.Int32
	cancelA, err := n.Subscribe("alice", Listener{OnNotice: func() { aliceNotices.Add(1) }})
	if err != nil {
		t.Fatalf("subscribe alice: %v", err)
	}
	defer cancelA()
	cancelB, err := n.Subscribe("bob", Listener{OnNotice: func() { bobNotices.Add(1) }})
	if err != nil {
		t.Fatalf("subscribe bob: %v", err)
	}
	defer cancelB()

	waitFor(t, "alice notice", func() bool {
		_ = n.PublishNotice(ctx, "alice")
		return aliceNotices.Load() > 0
	})
	time.Sleep(50 * time.Millisecond)
	if bobNotices.Load() != 0 {
		t.Fatalf("bob woke on alice's channel %d times", bobNotices.Load())
	}
}

func TestRedisNotifierCancelTwice(t *testing.T) {
	mr := miniredis.RunT(t)
	n := newTestNotifier(t, mr)

	cancel, err := n.Subscribe("alice", Listener{OnNotice: func() {}})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()
	cancel()
}

func TestRedisNotifierClosedRejectsSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	n := newTestNotifier(t, mr)
	_ = n.Close()

	if _, err := n.Subscribe("alice", Listener{}); err == nil {
		t.Fatal("subscribe on closed notifier succeeded")
	}
}

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setup(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	Init(rdb)
	return mr
}

func TestPresenceLifecycle(t *testing.T) {
	mr := setup(t)
	ctx := context.Background()

	if _, online, err := PresenceLookup(ctx, "alice"); err != nil || online {
		t.Fatalf("fresh lookup = online=%v err=%v", online, err)
	}

	if err := PresenceOnline(ctx, "alice", "node-1", time.Minute); err != nil {
		t.Fatalf("online: %v", err)
	}
	node, online, err := PresenceLookup(ctx, "alice")
	if err != nil || !online || node != "node-1" {
		t.Fatalf("lookup = node=%q online=%v err=%v", node, online, err)
	}

	if err := PresenceOffline(ctx, "alice"); err != nil {
		t.Fatalf("offline: %v", err)
	}
	if _, online, _ := PresenceLookup(ctx, "alice"); online {
		t.Fatal("still online after explicit offline")
	}

	// TTL expiry is the implicit offline path
	if err := PresenceOnline(ctx, "alice", "node-1", time.Second); err != nil {
		t.Fatalf("online: %v", err)
	}
	mr.FastForward(2 * time.Second)
	if _, online, _ := PresenceLookup(ctx, "alice"); online {
		t.Fatal("still online after TTL expiry")
	}
}

func TestTypingWindow(t *testing.T) {
	mr := setup(t)
	ctx := context.Background()

	if err := TypingMark(ctx, "c1", "alice", 5*time.Second); err != nil {
		t.Fatalf("mark: %v", err)
	}
	active, err := TypingActive(ctx, "c1", "alice")
	if err != nil || !active {
		t.Fatalf("active = %v err=%v", active, err)
	}

	if active, _ := TypingActive(ctx, "c2", "alice"); active {
		t.Fatal("typing leaked across channels")
	}

	mr.FastForward(6 * time.Second)
	if active, _ := TypingActive(ctx, "c1", "alice"); active {
		t.Fatal("typing still active after window")
	}
}

package updates

import (
	"context"
	"testing"
	"time"
)

// failingDB rejects inserts for one user; everything else passes through.
type failingDB struct {
	DB
	failUser string
}

func (d *failingDB) InsertEnvelope(ctx context.Context, env *UpdateEnvelope) error {
	if env.UserID == d.failUser {
		return ErrUnavailable
	}
	return d.DB.InsertEnvelope(ctx, env)
}

func TestFanOutIsolatesFailingRecipient(t *testing.T) {
	_, seq, db, mr := newTestStore(t)

	store := NewStore(&failingDB{DB: db, failUser: "bob"}, seq)
	notifier := newTestNotifier(t, mr)
	b := NewDurableBroadcaster(store, notifier)
	ctx := context.Background()

	err := b.PublishToUsers(ctx, []string{"alice", "bob", "carol"}, EventMessageCreated, nil)
	if err == nil {
		t.Fatal("expected error from failing recipient")
	}

	for _, user := range []string{"alice", "carol"} {
		page, derr := store.DiffGet(ctx, user, 0, 0)
		if derr != nil {
			t.Fatalf("diff %s: %v", user, derr)
		}
		if len(page.Envelopes) != 1 {
			t.Fatalf("%s got %d envelopes, want 1", user, len(page.Envelopes))
		}
	}

	page, derr := NewStore(db, seq).DiffGet(ctx, "bob", 0, 0)
	if derr != nil {
		t.Fatalf("diff bob: %v", derr)
	}
	if len(page.Envelopes) != 0 {
		t.Fatalf("bob got %d envelopes, want 0", len(page.Envelopes))
	}
}

func TestDurableFanOutDedupesRecipients(t *testing.T) {
	store, _, _, mr := newTestStore(t)
	b := NewDurableBroadcaster(store, newTestNotifier(t, mr))
	ctx := context.Background()

	if err := b.PublishToUsers(ctx, []string{"alice", "alice", "", "bob"}, EventChannelCreated, map[string]any{"channelId": "c1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// one envelope each, in independent seqno spaces
	for _, user := range []string{"alice", "bob"} {
		page, err := store.DiffGet(ctx, user, 0, 0)
		if err != nil {
			t.Fatalf("diff %s: %v", user, err)
		}
		if len(page.Envelopes) != 1 {
			t.Fatalf("%s got %d envelopes, want 1", user, len(page.Envelopes))
		}
		if page.Envelopes[0].Seqno != 1 {
			t.Fatalf("%s seqno = %d, want 1", user, page.Envelopes[0].Seqno)
		}
	}
}

func TestDurableFanOutSkipsEmptyRecipient(t *testing.T) {
	store, _, _, mr := newTestStore(t)
	b := NewDurableBroadcaster(store, newTestNotifier(t, mr))
	ctx := context.Background()

	if err := b.PublishToUsers(ctx, []string{""}, EventMessageCreated, nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if max, _ := store.MaxSeq(ctx, ""); max != 0 {
		t.Fatalf("envelope appended for empty user id (max=%d)", max)
	}
}

func TestEphemeralNeverTouchesTheLog(t *testing.T) {
	store, _, _, mr := newTestStore(t)
	notifier := newTestNotifier(t, mr)
	eb := NewEphemeralBroadcaster(notifier)
	ctx := context.Background()

	eb.PublishToUsers(ctx, []string{"alice"}, EventTyping, map[string]any{"channelId": "c1"})
	time.Sleep(50 * time.Millisecond)

	page, err := store.DiffGet(ctx, "alice", 0, 0)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if len(page.Envelopes) != 0 {
		t.Fatalf("ephemeral signal leaked into the durable log: %+v", page.Envelopes)
	}
	if max, _ := store.MaxSeq(ctx, "alice"); max != 0 {
		t.Fatalf("max seq = %d after ephemeral publish, want 0", max)
	}
}

package updates

import (
	"context"

	"huddle/logger"
)

// DurableBroadcaster fans one business event out to N recipients as N
// independent log rows, then wakes any live subscribers. A store failure for
// one recipient never blocks the others.
type DurableBroadcaster struct {
	store    *Store
	notifier Notifier
}

func NewDurableBroadcaster(store *Store, notifier Notifier) *DurableBroadcaster {
	return &DurableBroadcaster{store: store, notifier: notifier}
}

// PublishToUsers appends an envelope per recipient and publishes a wake-up
// notice per successful append. Returns the last append error (if any) after
// all recipients were attempted.
func (b *DurableBroadcaster) PublishToUsers(ctx context.Context, userIDs []string, eventType string, payload map[string]any) error {
	var lastErr error
	for _, userID := range dedupe(userIDs) {
		if _, err := b.store.Append(ctx, userID, eventType, payload); err != nil {
			// isolate: keep fanning out to the remaining recipients
			logger.Errorf("[updates] append failed user=%s type=%s err=%v", userID, eventType, err)
			lastErr = err
			continue
		}
		if err := b.notifier.PublishNotice(ctx, userID); err != nil {
			// the row is durable; the client recovers via diff on its own
			logger.Warnf("[updates] notice failed user=%s err=%v", userID, err)
		}
	}
	return lastErr
}

// EphemeralBroadcaster is the no-persistence path: publish and forget.
type EphemeralBroadcaster struct {
	notifier Notifier
}

func NewEphemeralBroadcaster(notifier Notifier) *EphemeralBroadcaster {
	return &EphemeralBroadcaster{notifier: notifier}
}

// PublishToUsers sends the signal to each user's ephemeral channel. Errors
// are logged and swallowed: a stale typing signal is not worth a retry.
func (b *EphemeralBroadcaster) PublishToUsers(ctx context.Context, userIDs []string, eventType string, payload map[string]any) {
	env := &EphemeralEnvelope{EventType: eventType, Payload: payload}
	for _, userID := range dedupe(userIDs) {
		if err := b.notifier.PublishEphemeral(ctx, userID, env); err != nil {
			logger.Warnf("[updates] ephemeral publish failed user=%s type=%s err=%v", userID, eventType, err)
		}
	}
}

// dedupe drops duplicate and empty recipient IDs.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

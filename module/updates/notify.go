package updates

import "context"

// EphemeralEnvelope is a wire-only signal: no seqno, no persistence, no
// delivery guarantee. Dropped when nobody is subscribed at publish time.
type EphemeralEnvelope struct {
	EventType string         `json:"eventType"`
	Payload   map[string]any `json:"payload"`
}

// Listener receives per-user transport events for one live subscription.
// OnNotice carries no payload: it only means "new durable updates exist,
// re-read the log". OnEphemeral carries the ephemeral envelope itself.
type Listener struct {
	OnNotice    func()
	OnEphemeral func(env *EphemeralEnvelope)
}

// Notifier is the pub/sub transport boundary. The durable log never depends
// on it for correctness: notices are best-effort wake-ups, nothing more.
// Implementations: Redis pub/sub (default) and NATS core.
type Notifier interface {
	PublishNotice(ctx context.Context, userID string) error
	PublishEphemeral(ctx context.Context, userID string, env *EphemeralEnvelope) error
	// Subscribe attaches a listener to the user's notice and ephemeral
	// channels and returns a teardown func (safe to call more than once).
	Subscribe(userID string, l Listener) (func(), error)
	Close() error
}

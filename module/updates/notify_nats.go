package updates

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"huddle/logger"

	"github.com/nats-io/nats.go"
)

// NatsNotifier is the NATS core implementation of Notifier, for deployments
// that already run NATS for cross-node dispatch. Same contract as the Redis
// notifier: best-effort wake-ups, no durability (no JetStream).
type NatsNotifier struct {
	nc *nats.Conn

	mu     sync.Mutex
	closed bool
}

func noticeSubject(userID string) string    { return "hud.upd.u." + userID }
func ephemeralSubject(userID string) string { return "hud.eph.u." + userID }

func NewNatsNotifier(servers []string, name string) (*NatsNotifier, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500 * time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(3 * time.Second),
	}
	nc, err := nats.Connect(strings.Join(servers, ","), opts...)
	if err != nil {
		return nil, err
	}
	return &NatsNotifier{nc: nc}, nil
}

func (n *NatsNotifier) PublishNotice(ctx context.Context, userID string) error {
	if err := n.nc.Publish(noticeSubject(userID), []byte("1")); err != nil {
		return ErrTransportUnavailable.WrapMsg("publish notice", "user", userID, "err", err)
	}
	return nil
}

func (n *NatsNotifier) PublishEphemeral(ctx context.Context, userID string, env *EphemeralEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return ErrTransportUnavailable.WrapMsg("marshal ephemeral", "err", err)
	}
	if err := n.nc.Publish(ephemeralSubject(userID), data); err != nil {
		return ErrTransportUnavailable.WrapMsg("publish ephemeral", "user", userID, "err", err)
	}
	return nil
}

func (n *NatsNotifier) Subscribe(userID string, l Listener) (func(), error) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, ErrTransportUnavailable.WrapMsg("notifier closed")
	}
	n.mu.Unlock()

	noticeSub, err := n.nc.Subscribe(noticeSubject(userID), func(_ *nats.Msg) {
		if l.OnNotice != nil {
			l.OnNotice()
		}
	})
	if err != nil {
		return nil, ErrTransportUnavailable.WrapMsg("subscribe notices", "user", userID, "err", err)
	}

	ephSub, err := n.nc.Subscribe(ephemeralSubject(userID), func(m *nats.Msg) {
		if l.OnEphemeral == nil {
			return
		}
		env := &EphemeralEnvelope{}
		if err := json.Unmarshal(m.Data, env); err != nil {
			logger.Warnf("[updates] bad ephemeral frame user=%s err=%v", userID, err)
			return
		}
		l.OnEphemeral(env)
	})
	if err != nil {
		_ = noticeSub.Unsubscribe()
		return nil, ErrTransportUnavailable.WrapMsg("subscribe ephemeral", "user", userID, "err", err)
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = noticeSub.Unsubscribe()
			_ = ephSub.Unsubscribe()
		})
	}
	return cancel, nil
}

func (n *NatsNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	return n.nc.Drain()
}

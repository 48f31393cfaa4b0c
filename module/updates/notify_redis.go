package updates

import (
	"context"
	"encoding/json"
	"sync"

	"huddle/global"
	"huddle/logger"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier multiplexes update notices and ephemeral signals over Redis
// pub/sub channels, one pair of channels per user.
type RedisNotifier struct {
	rdb redis.UniversalClient

	mu     sync.Mutex
	closed bool
	subs   map[*redis.PubSub]struct{}
}

func NewRedisNotifier(rdb redis.UniversalClient) *RedisNotifier {
	return &RedisNotifier{
		rdb:  rdb,
		subs: make(map[*redis.PubSub]struct{}),
	}
}

func (n *RedisNotifier) PublishNotice(ctx context.Context, userID string) error {
	if err := n.rdb.Publish(ctx, global.UpdatesChannelKey(userID), "1").Err(); err != nil {
		return ErrTransportUnavailable.WrapMsg("publish notice", "user", userID, "err", err)
	}
	return nil
}

func (n *RedisNotifier) PublishEphemeral(ctx context.Context, userID string, env *EphemeralEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return ErrTransportUnavailable.WrapMsg("marshal ephemeral", "err", err)
	}
	if err := n.rdb.Publish(ctx, global.EphemeralChannelKey(userID), data).Err(); err != nil {
		return ErrTransportUnavailable.WrapMsg("publish ephemeral", "user", userID, "err", err)
	}
	return nil
}

func (n *RedisNotifier) Subscribe(userID string, l Listener) (func(), error) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, ErrTransportUnavailable.WrapMsg("notifier closed")
	}
	noticeCh := global.UpdatesChannelKey(userID)
	ephCh := global.EphemeralChannelKey(userID)
	ps := n.rdb.Subscribe(context.Background(), noticeCh, ephCh)
	n.subs[ps] = struct{}{}
	n.mu.Unlock()

	go func() {
		for msg := range ps.Channel() {
			switch msg.Channel {
			case noticeCh:
				if l.OnNotice != nil {
					l.OnNotice()
				}
			case ephCh:
				if l.OnEphemeral == nil {
					continue
				}
				env := &EphemeralEnvelope{}
				if err := json.Unmarshal([]byte(msg.Payload), env); err != nil {
					logger.Warnf("[updates] bad ephemeral frame user=%s err=%v", userID, err)
					continue
				}
				l.OnEphemeral(env)
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, ps)
			n.mu.Unlock()
			_ = ps.Close()
		})
	}
	return cancel, nil
}

func (n *RedisNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	for ps := range n.subs {
		_ = ps.Close()
	}
	n.subs = map[*redis.PubSub]struct{}{}
	return nil
}

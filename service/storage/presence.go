package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Presence and typing state live in Redis with TTLs; both are perishable and
// never touch the durable update log.

var rdb redis.UniversalClient

// Init wires the package to a shared Redis client.
func Init(client redis.UniversalClient) { rdb = client }

// presence key: hud:presence:<user>
// Value: gateway node id; TTL controls the online validity window.
func presenceKey(user string) string { return "hud:presence:" + user }

// typing key: hud:typing:<channel>:<user>; value ignored, TTL is the signal.
func typingKey(channelID, user string) string { return "hud:typing:" + channelID + ":" + user }

// PresenceOnline sets the user as online and renews the TTL.
func PresenceOnline(ctx context.Context, user, nodeID string, ttl time.Duration) error {
	if rdb == nil {
		return errors.New("redis not initialized")
	}
	return rdb.Set(ctx, presenceKey(user), nodeID, ttl).Err()
}

// PresenceOffline actively sets the user offline (deletes the key).
func PresenceOffline(ctx context.Context, user string) error {
	if rdb == nil {
		return errors.New("redis not initialized")
	}
	return rdb.Del(ctx, presenceKey(user)).Err()
}

// PresenceLookup checks whether the user is online.
func PresenceLookup(ctx context.Context, user string) (nodeID string, online bool, err error) {
	if rdb == nil {
		return "", false, errors.New("redis not initialized")
	}
	val, err := rdb.Get(ctx, presenceKey(user)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// TypingMark records that user is typing in channelID for the validity window.
func TypingMark(ctx context.Context, channelID, user string, ttl time.Duration) error {
	if rdb == nil {
		return errors.New("redis not initialized")
	}
	return rdb.Set(ctx, typingKey(channelID, user), "1", ttl).Err()
}

// TypingActive reports whether the typing window is still open.
func TypingActive(ctx context.Context, channelID, user string) (bool, error) {
	if rdb == nil {
		return false, errors.New("redis not initialized")
	}
	_, err := rdb.Get(ctx, typingKey(channelID, user)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

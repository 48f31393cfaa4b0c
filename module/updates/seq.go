package updates

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"huddle/global"

	"github.com/redis/go-redis/v9"
)

// SeqAllocator hands out per-user seqnos from a Redis counter. The counter is
// a cache over the table: it is initialized from max(seqno) under a short
// lock, and reconciled upward whenever an insert hits the unique constraint.
// Correctness across server processes comes from the table constraint, not
// from Redis.
type SeqAllocator struct {
	rdb      redis.UniversalClient
	db       DB
	lockTTL  time.Duration
	spinWait time.Duration
}

func NewSeqAllocator(rdb redis.UniversalClient, db DB) *SeqAllocator {
	return &SeqAllocator{
		rdb:      rdb,
		db:       db,
		lockTTL:  10 * time.Second,
		spinWait: 50 * time.Millisecond,
	}
}

// NextSeq returns the next seqno for the user, initializing the counter from
// the table on first use.
func (a *SeqAllocator) NextSeq(ctx context.Context, userID string) (int64, error) {
	key := global.UserSeqKey(userID)
	// key presence is the init signal; 0 is a valid counter for a new user
	if _, err := a.rdb.Get(ctx, key).Int64(); err == nil {
		return a.rdb.Incr(ctx, key).Result()
	}
	if err := a.initIfNeeded(ctx, userID); err != nil {
		return 0, err
	}
	return a.rdb.Incr(ctx, key).Result()
}

func (a *SeqAllocator) initIfNeeded(ctx context.Context, userID string) error {
	key := global.UserSeqKey(userID)
	if _, err := a.rdb.Get(ctx, key).Int64(); err == nil {
		return nil
	}
	// lock against an init storm for hot users
	lock := global.UserSeqInitLockKey(userID)
	token := randToken(16)
	ok, err := a.rdb.SetNX(ctx, lock, token, a.lockTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		timer := time.NewTimer(a.spinWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if _, err := a.rdb.Get(ctx, key).Int64(); err == nil {
			return nil
		}
		return errors.New("seq init contention, retry")
	}
	defer func() { _ = unlock(ctx, a.rdb, lock, token) }()

	// double check
	if _, err := a.rdb.Get(ctx, key).Int64(); err == nil {
		return nil
	}
	maxSeq, err := a.db.QueryMaxSeq(ctx, userID)
	if err != nil {
		return err
	}
	return a.rdb.Set(ctx, key, maxSeq, 0).Err()
}

// Counter fell behind the table: raise it (never lower) and take a new number.
var reconcileAndNextLua = `
local k = KEYS[1]
local dbMax = tonumber(ARGV[1])
local v = redis.call('GET', k)
if (not v) or (tonumber(v) < dbMax) then
  redis.call('SET', k, dbMax)
end
return redis.call('INCR', k)
`

func (a *SeqAllocator) ReconcileAndNext(ctx context.Context, userID string, dbMax int64) (int64, error) {
	return a.rdb.Eval(ctx, reconcileAndNextLua, []string{global.UserSeqKey(userID)}, dbMax).Int64()
}

var unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

func unlock(ctx context.Context, rdb redis.UniversalClient, key, token string) error {
	return rdb.Eval(ctx, unlockLua, []string{key}, token).Err()
}

func randToken(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

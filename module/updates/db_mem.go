package updates

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrUniqueSeq   = errors.New("unique (user_id, seqno) violated")
	ErrUnavailable = errors.New("store unavailable")
)

// memDB keeps the same constraints as the Postgres table. Used by tests and
// as a reference for the DB contract.
type memDB struct {
	mu    sync.RWMutex
	bySeq map[string]map[int64]*UpdateEnvelope // user -> seqno -> env
}

func NewMemDB() *memDB {
	return &memDB{bySeq: make(map[string]map[int64]*UpdateEnvelope)}
}

func (db *memDB) InsertEnvelope(ctx context.Context, env *UpdateEnvelope) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	m, ok := db.bySeq[env.UserID]
	if !ok {
		m = make(map[int64]*UpdateEnvelope)
		db.bySeq[env.UserID] = m
	}
	// UNIQUE(user_id, seqno)
	if _, ok := m[env.Seqno]; ok {
		return ErrUniqueSeq
	}
	cp := *env
	m[env.Seqno] = &cp
	return nil
}

func (db *memDB) QueryMaxSeq(ctx context.Context, userID string) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var max int64
	for s := range db.bySeq[userID] {
		if s > max {
			max = s
		}
	}
	return max, nil
}

func (db *memDB) QueryDiff(ctx context.Context, userID string, offset int64, limit int) ([]*UpdateEnvelope, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	all := make([]*UpdateEnvelope, 0, limit)
	for s, env := range db.bySeq[userID] {
		if s > offset {
			cp := *env
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Seqno < all[j].Seqno })

	hasMore := len(all) > limit
	if hasMore {
		all = all[:limit]
	}
	return all, hasMore, nil
}

func (db *memDB) DeleteBefore(ctx context.Context, userID string, seqno int64) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var n int64
	for s := range db.bySeq[userID] {
		if s < seqno {
			delete(db.bySeq[userID], s)
			n++
		}
	}
	return n, nil
}

func (db *memDB) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var n int64
	for _, m := range db.bySeq {
		for s, env := range m {
			if env.CreatedAt.Before(cutoff) {
				delete(m, s)
				n++
			}
		}
	}
	return n, nil
}

func (db *memDB) IsUniqueSeqErr(err error) bool   { return errors.Is(err, ErrUniqueSeq) }
func (db *memDB) IsUnavailableErr(err error) bool { return errors.Is(err, ErrUnavailable) }

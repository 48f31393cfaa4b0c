package updates

import (
	"context"
	"time"

	"huddle/logger"
	"huddle/tools/ids"
)

// DB abstracts the update_log table: Postgres in production (db_pg.go),
// memory in tests (db_mem.go).
type DB interface {
	InsertEnvelope(ctx context.Context, env *UpdateEnvelope) error
	QueryMaxSeq(ctx context.Context, userID string) (int64, error)
	// QueryDiff returns envelopes with seqno > offset ascending, at most
	// limit, plus whether more exist beyond the page.
	QueryDiff(ctx context.Context, userID string, offset int64, limit int) ([]*UpdateEnvelope, bool, error)
	DeleteBefore(ctx context.Context, userID string, seqno int64) (int64, error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	IsUniqueSeqErr(err error) bool
	IsUnavailableErr(err error) bool
}

// Store is the durable, per-user ordered event inbox. Seqno assignment pairs
// the Redis allocator with the table's UNIQUE(user_id, seqno): if the counter
// ever falls behind (cold cache, Redis restart) the insert conflicts and the
// counter is reconciled from the table before retrying.
type Store struct {
	db  DB
	seq *SeqAllocator
}

func NewStore(db DB, seq *SeqAllocator) *Store {
	return &Store{db: db, seq: seq}
}

// Append assigns the next seqno for userID and persists the envelope.
func (s *Store) Append(ctx context.Context, userID, eventType string, payload map[string]any) (*UpdateEnvelope, error) {
	seqno, err := s.seq.NextSeq(ctx, userID)
	if err != nil {
		return nil, ErrStoreUnavailable.WrapMsg("alloc seqno", "user", userID, "err", err)
	}

	env := &UpdateEnvelope{
		ID:        ids.GenerateString(),
		UserID:    userID,
		Seqno:     seqno,
		EventType: eventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	const maxRetry = 3
	backoff := 50 * time.Millisecond
	for i := 0; i <= maxRetry; i++ {
		err = s.db.InsertEnvelope(ctx, env)
		if err == nil {
			return env, nil
		}

		// seqno taken: counter was behind the table, raise it and retry
		if s.db.IsUniqueSeqErr(err) {
			dbMax, qerr := s.db.QueryMaxSeq(ctx, userID)
			if qerr != nil {
				return nil, ErrStoreUnavailable.WrapMsg("query max seq", "user", userID, "err", qerr)
			}
			newSeq, rerr := s.seq.ReconcileAndNext(ctx, userID, dbMax)
			if rerr != nil {
				return nil, ErrStoreUnavailable.WrapMsg("reconcile seq", "user", userID, "err", rerr)
			}
			logger.Warnf("[updates] seqno conflict user=%s old=%d new=%d", userID, env.Seqno, newSeq)
			env.Seqno = newSeq
			continue
		}

		if s.db.IsUnavailableErr(err) && i < maxRetry {
			time.Sleep(backoff)
			backoff *= 2
			continue
		}
		break
	}
	return nil, ErrStoreUnavailable.WrapMsg("insert envelope", "user", userID, "err", err)
}

// DiffGet returns the page of envelopes with seqno > offset.
func (s *Store) DiffGet(ctx context.Context, userID string, offset int64, limit int) (*DiffPage, error) {
	if offset < 0 {
		return nil, ErrInvalidOffset.WrapMsg("offset", "offset", offset)
	}
	limit = normLimit(limit)

	envs, hasMore, err := s.db.QueryDiff(ctx, userID, offset, limit)
	if err != nil {
		return nil, ErrStoreUnavailable.WrapMsg("query diff", "user", userID, "err", err)
	}

	next := offset
	if n := len(envs); n > 0 {
		next = envs[n-1].Seqno
	}
	return &DiffPage{Envelopes: envs, NextOffset: next, HasMore: hasMore}, nil
}

// MaxSeq returns the user's current high-water mark (0 when empty).
func (s *Store) MaxSeq(ctx context.Context, userID string) (int64, error) {
	max, err := s.db.QueryMaxSeq(ctx, userID)
	if err != nil {
		return 0, ErrStoreUnavailable.WrapMsg("query max seq", "user", userID, "err", err)
	}
	return max, nil
}

// PruneBefore removes envelopes with seqno < before. Housekeeping only;
// readers below the floor must re-sync from full state.
func (s *Store) PruneBefore(ctx context.Context, userID string, before int64) (int64, error) {
	n, err := s.db.DeleteBefore(ctx, userID, before)
	if err != nil {
		return 0, ErrStoreUnavailable.WrapMsg("prune", "user", userID, "err", err)
	}
	return n, nil
}

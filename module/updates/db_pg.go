package updates

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgDB stores envelopes in Postgres. UNIQUE(user_id, seqno) is the ordering
// authority across all server processes.
type pgDB struct {
	pool *pgxpool.Pool
}

func NewPgDB(pool *pgxpool.Pool) *pgDB {
	return &pgDB{pool: pool}
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS update_log (
    id         TEXT PRIMARY KEY,
    user_id    TEXT        NOT NULL,
    seqno      BIGINT      NOT NULL,
    event_type TEXT        NOT NULL,
    payload    JSONB       NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT uniq_user_seqno UNIQUE (user_id, seqno)
);
CREATE INDEX IF NOT EXISTS ix_update_log_user_seqno ON update_log (user_id, seqno);
`

// EnsureSchema creates the table on startup; no migration tooling here.
func (d *pgDB) EnsureSchema(ctx context.Context) error {
	_, err := d.pool.Exec(ctx, schemaDDL)
	return err
}

func (d *pgDB) InsertEnvelope(ctx context.Context, env *UpdateEnvelope) error {
	_, err := d.pool.Exec(ctx,
		`INSERT INTO update_log (id, user_id, seqno, event_type, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		env.ID, env.UserID, env.Seqno, env.EventType, env.Payload, env.CreatedAt,
	)
	return err
}

func (d *pgDB) QueryMaxSeq(ctx context.Context, userID string) (int64, error) {
	var max int64
	err := d.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(seqno), 0) FROM update_log WHERE user_id = $1`,
		userID,
	).Scan(&max)
	return max, err
}

func (d *pgDB) QueryDiff(ctx context.Context, userID string, offset int64, limit int) ([]*UpdateEnvelope, bool, error) {
	// limit+1 probes for a further page without a second round trip
	rows, err := d.pool.Query(ctx,
		`SELECT id, user_id, seqno, event_type, payload, created_at
		   FROM update_log
		  WHERE user_id = $1 AND seqno > $2
		  ORDER BY seqno ASC
		  LIMIT $3`,
		userID, offset, limit+1,
	)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	envs := make([]*UpdateEnvelope, 0, limit)
	for rows.Next() {
		env := &UpdateEnvelope{}
		if err := rows.Scan(&env.ID, &env.UserID, &env.Seqno, &env.EventType, &env.Payload, &env.CreatedAt); err != nil {
			return nil, false, err
		}
		envs = append(envs, env)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(envs) > limit
	if hasMore {
		envs = envs[:limit]
	}
	return envs, hasMore, nil
}

func (d *pgDB) DeleteBefore(ctx context.Context, userID string, seqno int64) (int64, error) {
	tag, err := d.pool.Exec(ctx,
		`DELETE FROM update_log WHERE user_id = $1 AND seqno < $2`,
		userID, seqno,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (d *pgDB) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := d.pool.Exec(ctx,
		`DELETE FROM update_log WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (d *pgDB) IsUniqueSeqErr(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func (d *pgDB) IsUnavailableErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 08xxx: connection exceptions; 57xxx: operator intervention/shutdown
		return len(pgErr.Code) >= 2 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "57")
	}
	// network-level failures arrive as non-PgError errors
	return true
}

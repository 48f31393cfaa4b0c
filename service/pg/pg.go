package pg

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	pgOnce sync.Once
	pool   *pgxpool.Pool
)

// InitPostgres connects the shared pool (singleton).
func InitPostgres(databaseURL string) error {
	var initErr error
	pgOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		p, err := pgxpool.New(ctx, databaseURL)
		if err != nil {
			initErr = err
			return
		}
		if err := p.Ping(ctx); err != nil {
			initErr = err
			return
		}
		pool = p
	})
	return initErr
}

// GetPool returns the shared pool.
func GetPool() *pgxpool.Pool {
	if pool == nil {
		panic("Postgres not initialized, call InitPostgres first")
	}
	return pool
}

func ClosePostgres() {
	if pool != nil {
		pool.Close()
	}
}

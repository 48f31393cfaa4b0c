package updates

import (
	"context"
	"sync"
	"time"

	"huddle/logger"
	"huddle/tools/safe"
)

// Sweeper prunes old update rows in the background. Disabled unless MaxAge is
// set; clients older than the floor re-sync from full state instead of
// diffing.
type Sweeper struct {
	db       DB
	maxAge   time.Duration
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewSweeper(db DB, maxAge, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{db: db, maxAge: maxAge, interval: interval, stopCh: make(chan struct{})}
}

func (s *Sweeper) Start() {
	if s.maxAge <= 0 {
		return
	}
	safe.SafeGo(func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-s.maxAge)
				n, err := s.db.DeleteCreatedBefore(context.Background(), cutoff)
				if err != nil {
					logger.Warnf("[updates] sweep failed err=%v", err)
					continue
				}
				if n > 0 {
					logger.Infof("[updates] swept %d rows older than %s", n, s.maxAge)
				}
			}
		}
	})
}

func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

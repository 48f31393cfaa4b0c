package updates

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSweeperPrunesOldRows(t *testing.T) {
	db := NewMemDB()
	ctx := context.Background()

	old := &UpdateEnvelope{ID: "a", UserID: "alice", Seqno: 1, CreatedAt: time.Now().Add(-48 * time.Hour)}
	fresh := &UpdateEnvelope{ID: "b", UserID: "alice", Seqno: 2, CreatedAt: time.Now()}
	for _, env := range []*UpdateEnvelope{old, fresh} {
		if err := db.InsertEnvelope(ctx, env); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	s := NewSweeper(db, 24*time.Hour, 10*time.Millisecond)
	s.Start()
	defer s.Stop()

	waitFor(t, "sweep", func() bool {
		envs, _, err := db.QueryDiff(ctx, "alice", 0, 10)
		if err != nil {
			return false
		}
		return len(envs) == 1
	})

	envs, _, err := db.QueryDiff(ctx, "alice", 0, 10)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if envs[0].Seqno != 2 {
		t.Fatalf("wrong row survived: %+v", envs[0])
	}
}

func TestSweeperDisabledWithoutMaxAge(t *testing.T) {
	s := NewSweeper(NewMemDB(), 0, 10*time.Millisecond)
	s.Start()
	s.Stop()
	s.Stop()
}

func TestSweeperStopConcurrent(t *testing.T) {
	s := NewSweeper(NewMemDB(), time.Hour, 10*time.Millisecond)
	s.Start()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Stop()
		}()
	}
	wg.Wait()
}

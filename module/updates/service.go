package updates

import (
	"context"
	"sync"
	"time"
)

// Service is the public contract the rest of the backend uses for update
// delivery. Durable path: PublishToUsers + DiffGet + Subscribe. Ephemeral
// path: PublishEphemeralToUsers. Pull and push share one reconciliation
// model: a client always diffs from its last offset first, then attaches the
// live stream, so the reconnect race collapses into normal catch-up.
type Service struct {
	store     *Store
	durable   *DurableBroadcaster
	ephemeral *EphemeralBroadcaster
	notifier  Notifier
	conns     *ConnManager

	stopOnce sync.Once
}

type ServiceConf struct {
	Heartbeat time.Duration // stream heartbeat interval (default 25s)
	PageSize  int           // catch-up page size (default DefaultDiffLimit)
}

func NewService(db DB, seq *SeqAllocator, notifier Notifier, conf ServiceConf) *Service {
	store := NewStore(db, seq)
	return &Service{
		store:     store,
		durable:   NewDurableBroadcaster(store, notifier),
		ephemeral: NewEphemeralBroadcaster(notifier),
		notifier:  notifier,
		conns:     NewConnManager(store, notifier, conf.Heartbeat, conf.PageSize),
	}
}

// PublishToUsers delivers a state change every recipient must eventually
// see, even if offline right now.
func (s *Service) PublishToUsers(ctx context.Context, userIDs []string, eventType string, payload map[string]any) error {
	return s.durable.PublishToUsers(ctx, userIDs, eventType, payload)
}

// PublishEphemeralToUsers delivers a signal that is worthless once stale.
func (s *Service) PublishEphemeralToUsers(ctx context.Context, userIDs []string, eventType string, payload map[string]any) {
	s.ephemeral.PublishToUsers(ctx, userIDs, eventType, payload)
}

// DiffGet is the pull/catch-up path.
func (s *Service) DiffGet(ctx context.Context, userID string, offset int64, limit int) (*DiffPage, error) {
	return s.store.DiffGet(ctx, userID, offset, limit)
}

// MaxSeq returns the user's current high-water mark.
func (s *Service) MaxSeq(ctx context.Context, userID string) (int64, error) {
	return s.store.MaxSeq(ctx, userID)
}

// Subscribe is the push/live path; fromSeq anchors where delivery resumes.
func (s *Service) Subscribe(userID, orgID string, fromSeq int64, conn StreamConn) (func(), error) {
	return s.conns.Subscribe(userID, orgID, fromSeq, conn)
}

// Conns exposes the connection manager (presence bookkeeping).
func (s *Service) Conns() *ConnManager { return s.conns }

// Store exposes the log store (housekeeping sweeper).
func (s *Service) Store() *Store { return s.store }

// Stop releases live subscriptions and the pub/sub transport; idempotent.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.conns.Stop()
		_ = s.notifier.Close()
	})
}

package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lfmelo/dealdesk/internal/bus"
	"github.com/lfmelo/dealdesk/internal/cache"
	"github.com/lfmelo/dealdesk/internal/domain"
)

// DisputeAPI is the slice of the authority client the dispute store needs.
type DisputeAPI interface {
	List(ctx context.Context, status *domain.DisputeStatus) ([]domain.Dispute, error)
	Create(ctx context.Context, input domain.CreateDisputeInput, evidence []domain.FileUpload) (domain.Dispute, error)
	Update(ctx context.Context, id string, patch domain.DisputePatch) (domain.Dispute, error)
	AddEvidence(ctx context.Context, id string, files []domain.FileUpload) (domain.Dispute, error)
	AddComment(ctx context.Context, id, comment string) (domain.Dispute, error)
}

// DisputeCache is the slice of the sqlite cache the dispute store writes
// through. Nil disables caching.
type DisputeCache interface {
	ReplaceDisputes(disputes []domain.Dispute) error
	ListDisputes() ([]domain.Dispute, error)
	UpsertDispute(d domain.Dispute) error
	SetCheckpoint(key, value string) error
}

// DisputeStore keeps the dispute list in sync with the authority. Filtering
// happens server-side; changing the filter bumps the epoch so a list
// response for the old filter cannot land in the new view.
type DisputeStore struct {
	api DisputeAPI
	db  DisputeCache
	bus *bus.Bus
	log *zap.Logger

	mu       sync.Mutex
	disputes []domain.Dispute
	filter   *domain.DisputeStatus
	epoch    uint64
	loading  bool
	lastErr  error
	stale    bool
}

// NewDisputes creates the store. db may be nil to disable the offline cache.
func NewDisputes(api DisputeAPI, db DisputeCache, b *bus.Bus, log *zap.Logger) *DisputeStore {
	return &DisputeStore{
		api: api,
		db:  db,
		bus: b,
		log: log.Named("disputes"),
	}
}

// Hydrate seeds the unfiltered view from the offline cache. The snapshot is
// marked stale until a Load succeeds.
func (s *DisputeStore) Hydrate() {
	if s.db == nil {
		return
	}
	disputes, err := s.db.ListDisputes()
	if err != nil {
		s.log.Warn("cache hydrate failed", zap.Error(err))
		return
	}
	if len(disputes) == 0 {
		return
	}

	s.mu.Lock()
	if s.filter != nil || len(s.disputes) > 0 {
		s.mu.Unlock()
		return
	}
	s.disputes = disputes
	s.stale = true
	s.mu.Unlock()

	s.log.Debug("hydrated from cache", zap.Int("disputes", len(disputes)))
	s.bus.Publish(bus.Now(EventDisputesUpdated, nil))
}

// SetFilter changes the server-side status filter. Nil means all statuses.
// The current list stays on screen until the refetch lands; any response in
// flight for the old filter is dropped. The loading flag is left alone so a
// fetch for the old filter still occupies the single in-flight slot; the
// dropped response frees it.
func (s *DisputeStore) SetFilter(status *domain.DisputeStatus) {
	s.mu.Lock()
	s.filter = status
	s.epoch++
	s.mu.Unlock()
}

// Filter returns the active status filter, nil when unfiltered.
func (s *DisputeStore) Filter() *domain.DisputeStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// Load fetches the dispute list for the active filter and replaces the
// in-memory set. A Load while another is in flight is a no-op returning nil.
func (s *DisputeStore) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	epoch, filter := s.epoch, s.filter
	s.mu.Unlock()

	disputes, err := s.api.List(ctx, filter)

	s.mu.Lock()
	if s.epoch != epoch {
		// Filter changed while we were on the wire; drop the result but
		// free the in-flight slot.
		s.loading = false
		s.mu.Unlock()
		return nil
	}
	s.loading = false
	s.lastErr = err
	if err != nil {
		s.mu.Unlock()
		s.log.Warn("load failed", zap.Error(err))
		s.bus.Publish(bus.Now(EventDisputesLoadFailed, err.Error()))
		return err
	}
	s.disputes = disputes
	s.stale = false
	s.mu.Unlock()

	// Only the unfiltered list is a full snapshot worth persisting.
	if s.db != nil && filter == nil {
		if err := s.db.ReplaceDisputes(disputes); err != nil {
			s.log.Warn("cache write failed", zap.Error(err))
		} else if err := s.db.SetCheckpoint(cache.CheckpointDisputes, time.Now().UTC().Format(time.RFC3339)); err != nil {
			s.log.Warn("checkpoint write failed", zap.Error(err))
		}
	}
	s.bus.Publish(bus.Now(EventDisputesUpdated, nil))
	return nil
}

// Refresh re-fetches the list for the active filter. Used by the background
// refresher.
func (s *DisputeStore) Refresh(ctx context.Context) error {
	return s.Load(ctx)
}

// Snapshot returns the disputes in server order, most recently created
// first.
func (s *DisputeStore) Snapshot() []domain.Dispute {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Dispute(nil), s.disputes...)
}

// Get returns one dispute by id.
func (s *DisputeStore) Get(id string) (domain.Dispute, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.disputes {
		if d.ID == id {
			return d, true
		}
	}
	return domain.Dispute{}, false
}

// Stale reports whether the current snapshot came from the offline cache
// and has not yet been confirmed by the authority.
func (s *DisputeStore) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

// Loading reports whether a fetch is in flight.
func (s *DisputeStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// LastError returns the outcome of the most recent load, nil on success.
func (s *DisputeStore) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Create validates the input locally, files the dispute, and prepends the
// server's record to the list. Validation failures never reach the network.
func (s *DisputeStore) Create(ctx context.Context, input domain.CreateDisputeInput, evidence []domain.FileUpload) (domain.Dispute, error) {
	if err := input.Validate(); err != nil {
		return domain.Dispute{}, err
	}

	d, err := s.api.Create(ctx, input, evidence)
	if err != nil {
		return domain.Dispute{}, err
	}

	s.mu.Lock()
	if s.matchesFilter(d) {
		s.disputes = append([]domain.Dispute{d}, s.disputes...)
	}
	s.mu.Unlock()

	s.persist(d)
	s.bus.Publish(bus.Now(EventDisputeCreated, d.ID))
	s.bus.Publish(bus.Now(EventDisputesUpdated, nil))
	return d, nil
}

// Update PATCHes a dispute and swaps the server's full record into the
// list. There is no local merge: the authority's version wins wholesale.
func (s *DisputeStore) Update(ctx context.Context, id string, patch domain.DisputePatch) (domain.Dispute, error) {
	d, err := s.api.Update(ctx, id, patch)
	if err != nil {
		return domain.Dispute{}, err
	}
	s.replace(d)
	return d, nil
}

// AddEvidence uploads files onto a dispute and swaps in the updated record.
func (s *DisputeStore) AddEvidence(ctx context.Context, id string, files []domain.FileUpload) (domain.Dispute, error) {
	d, err := s.api.AddEvidence(ctx, id, files)
	if err != nil {
		return domain.Dispute{}, err
	}
	s.replace(d)
	return d, nil
}

// AddComment posts a comment onto a dispute and swaps in the updated
// record.
func (s *DisputeStore) AddComment(ctx context.Context, id, comment string) (domain.Dispute, error) {
	d, err := s.api.AddComment(ctx, id, comment)
	if err != nil {
		return domain.Dispute{}, err
	}
	s.replace(d)
	return d, nil
}

// replace swaps the dispute into the list by id. A record that no longer
// matches the active filter is removed; one that newly matches is
// prepended.
func (s *DisputeStore) replace(d domain.Dispute) {
	s.mu.Lock()
	found := false
	for i := range s.disputes {
		if s.disputes[i].ID == d.ID {
			if s.matchesFilter(d) {
				s.disputes[i] = d
			} else {
				s.disputes = append(s.disputes[:i], s.disputes[i+1:]...)
			}
			found = true
			break
		}
	}
	if !found && s.matchesFilter(d) {
		s.disputes = append([]domain.Dispute{d}, s.disputes...)
	}
	s.mu.Unlock()

	s.persist(d)
	s.bus.Publish(bus.Now(EventDisputeReplaced, d.ID))
	s.bus.Publish(bus.Now(EventDisputesUpdated, nil))
}

func (s *DisputeStore) matchesFilter(d domain.Dispute) bool {
	return s.filter == nil || d.Status == *s.filter
}

func (s *DisputeStore) persist(d domain.Dispute) {
	if s.db == nil {
		return
	}
	if err := s.db.UpsertDispute(d); err != nil {
		s.log.Warn("cache write failed", zap.String("dispute", d.ID), zap.Error(err))
	}
}

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lfmelo/dealdesk/internal/bus"
	"github.com/lfmelo/dealdesk/internal/cache"
	"github.com/lfmelo/dealdesk/internal/domain"
)

// ConversationAPI is the slice of the authority client the conversation
// store needs.
type ConversationAPI interface {
	List(ctx context.Context) ([]domain.Conversation, error)
	MarkRead(ctx context.Context, id string) error
}

// ConversationCache is the slice of the sqlite cache the conversation store
// uses for offline snapshots. Nil disables caching.
type ConversationCache interface {
	ReplaceConversations(convs []domain.Conversation) error
	ListConversations() ([]domain.Conversation, error)
	SetCheckpoint(key, value string) error
}

// ConversationStore keeps the conversation list in sync with the authority.
// Reads return sorted snapshots; mutations are optimistic and reconciled
// against server responses.
type ConversationStore struct {
	api ConversationAPI
	db  ConversationCache
	bus *bus.Bus
	log *zap.Logger

	mu      sync.Mutex
	convs   map[string]domain.Conversation
	loading bool
	lastErr error
	stale   bool
	loaded  bool

	// in-flight background MarkRead calls; Wait() drains them.
	wg sync.WaitGroup
}

// NewConversations creates the store. db may be nil to disable the offline
// cache.
func NewConversations(api ConversationAPI, db ConversationCache, b *bus.Bus, log *zap.Logger) *ConversationStore {
	return &ConversationStore{
		api:   api,
		db:    db,
		bus:   b,
		log:   log.Named("conversations"),
		convs: make(map[string]domain.Conversation),
	}
}

// Hydrate seeds the store from the offline cache so the list renders before
// the first network round-trip. The snapshot is marked stale until a Load
// succeeds.
func (s *ConversationStore) Hydrate() {
	if s.db == nil {
		return
	}
	convs, err := s.db.ListConversations()
	if err != nil {
		s.log.Warn("cache hydrate failed", zap.Error(err))
		return
	}
	if len(convs) == 0 {
		return
	}

	s.mu.Lock()
	if s.loaded {
		s.mu.Unlock()
		return
	}
	for _, c := range convs {
		s.convs[c.ID] = c
	}
	s.stale = true
	s.mu.Unlock()

	s.log.Debug("hydrated from cache", zap.Int("conversations", len(convs)))
	s.bus.Publish(bus.Now(EventConversationsUpdated, nil))
}

// Load fetches the conversation list from the authority and replaces the
// in-memory set. A Load while another is in flight is a no-op returning nil;
// the first load's result stands.
func (s *ConversationStore) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	s.mu.Unlock()

	convs, err := s.api.List(ctx)

	s.mu.Lock()
	s.loading = false
	s.lastErr = err
	if err != nil {
		s.mu.Unlock()
		s.log.Warn("load failed", zap.Error(err))
		s.bus.Publish(bus.Now(EventConversationsLoadFailed, err.Error()))
		return err
	}
	s.convs = make(map[string]domain.Conversation, len(convs))
	for _, c := range convs {
		s.convs[c.ID] = c
	}
	s.stale = false
	s.loaded = true
	s.mu.Unlock()

	if s.db != nil {
		if err := s.db.ReplaceConversations(convs); err != nil {
			s.log.Warn("cache write failed", zap.Error(err))
		} else if err := s.db.SetCheckpoint(cache.CheckpointConversations, time.Now().UTC().Format(time.RFC3339)); err != nil {
			s.log.Warn("checkpoint write failed", zap.Error(err))
		}
	}
	s.bus.Publish(bus.Now(EventConversationsUpdated, nil))
	return nil
}

// Refresh re-fetches the list. Used by the background refresher.
func (s *ConversationStore) Refresh(ctx context.Context) error {
	return s.Load(ctx)
}

// Snapshot returns the conversations sorted by last activity, newest first.
func (s *ConversationStore) Snapshot() []domain.Conversation {
	s.mu.Lock()
	out := make([]domain.Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		out = append(out, c)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Get returns one conversation by id.
func (s *ConversationStore) Get(id string) (domain.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	return c, ok
}

// Stale reports whether the current snapshot came from the offline cache
// and has not yet been confirmed by the authority.
func (s *ConversationStore) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

// Loading reports whether a fetch is in flight.
func (s *ConversationStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// LastError returns the outcome of the most recent load, nil on success.
func (s *ConversationStore) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// MarkRead zeroes the unread counter and bumps the activity timestamp
// immediately, then notifies the authority in the background. The receipt
// always goes out, even when the local count is already zero: messages can
// have accrued server-side since the last Load, and a suppressed receipt
// would leave them counted unread. The local mutation is never rolled back:
// a failed notification only means the server still counts the conversation
// unread, which the next Load corrects.
func (s *ConversationStore) MarkRead(id string) {
	s.mu.Lock()
	c, ok := s.convs[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	if c.UnreadCount > 0 {
		c.UnreadCount = 0
		c.Timestamp = time.Now()
		s.convs[id] = c
	}
	s.mu.Unlock()

	s.bus.Publish(bus.Now(EventConversationRead, id))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.api.MarkRead(context.Background(), id); err != nil {
			s.log.Warn("mark read failed",
				zap.String("conversation", id), zap.Error(err))
		}
	}()
}

// UpdateLocal applies a partial update to one conversation without touching
// the network, e.g. bumping the preview after a send.
func (s *ConversationStore) UpdateLocal(id string, patch domain.ConversationPatch) {
	s.mu.Lock()
	c, ok := s.convs[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	patch.Apply(&c)
	s.convs[id] = c
	s.mu.Unlock()

	s.bus.Publish(bus.Now(EventConversationsUpdated, nil))
}

// Wait blocks until all background MarkRead notifications settle.
func (s *ConversationStore) Wait() {
	s.wg.Wait()
}

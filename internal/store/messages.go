package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/lfmelo/dealdesk/internal/bus"
	"github.com/lfmelo/dealdesk/internal/domain"
)

// MessageAPI is the slice of the authority client the message store needs.
type MessageAPI interface {
	Messages(ctx context.Context, conversationID string, page, limit int) (domain.MessagePage, error)
	SendMessage(ctx context.Context, conversationID, text string, attachments []domain.FileUpload) (domain.Message, error)
}

// MessageCache is the slice of the sqlite cache used for offline message
// history. Nil disables caching.
type MessageCache interface {
	ReplaceMessages(conversationID string, msgs []domain.Message) error
	ListMessages(conversationID string) ([]domain.Message, error)
}

var (
	// ErrNoConversation is returned by operations that need an active
	// conversation when none is selected.
	ErrNoConversation = errors.New("no active conversation")

	// ErrSendInFlight is returned when a send is attempted while another is
	// still waiting on the server.
	ErrSendInFlight = errors.New("a send is already in flight")
)

const (
	pageLimit      = 50
	historyEntries = 32
)

// MessageStore holds the message history of the active conversation.
// Switching conversations re-keys the store: the epoch counter ties every
// in-flight network response to the conversation it was issued for, and
// responses from a previous epoch are dropped on arrival.
type MessageStore struct {
	api MessageAPI
	db  MessageCache
	bus *bus.Bus
	log *zap.Logger

	mu      sync.Mutex
	convID  string
	epoch   uint64
	msgs    []domain.Message
	page    int
	total   int
	hasMore bool
	loading bool
	sending bool
	lastErr error

	// recently visited histories, keyed by conversation id, so switching
	// back renders instantly while the refresh runs.
	history *lru.Cache[string, []domain.Message]
}

// NewMessages creates the store. db may be nil to disable the offline cache.
func NewMessages(api MessageAPI, db MessageCache, b *bus.Bus, log *zap.Logger) *MessageStore {
	history, err := lru.New[string, []domain.Message](historyEntries)
	if err != nil {
		panic(err)
	}
	return &MessageStore{
		api:     api,
		db:      db,
		bus:     b,
		log:     log.Named("messages"),
		history: history,
	}
}

// SetConversation re-keys the store onto a different conversation. The
// previous history is parked in the in-memory LRU, the new one is seeded
// from the LRU or the offline cache, and the epoch is bumped so responses
// still in flight for the old conversation get dropped.
func (s *MessageStore) SetConversation(id string) {
	s.mu.Lock()
	if id == s.convID {
		s.mu.Unlock()
		return
	}
	if s.convID != "" {
		s.history.Add(s.convID, settled(s.msgs))
	}
	s.convID = id
	s.epoch++
	s.msgs = nil
	s.page = 0
	s.total = 0
	s.hasMore = false
	s.sending = false
	s.lastErr = nil
	// loading is left alone: a fetch for the old conversation still holds
	// the single in-flight slot until its response is dropped.

	if id != "" {
		if seeded, ok := s.history.Get(id); ok {
			s.msgs = append([]domain.Message(nil), seeded...)
		} else if s.db != nil {
			s.mu.Unlock()
			cached, err := s.db.ListMessages(id)
			s.mu.Lock()
			if err != nil {
				s.log.Warn("cache read failed", zap.String("conversation", id), zap.Error(err))
			} else if s.convID == id {
				s.msgs = cached
			}
		}
	}
	s.mu.Unlock()

	s.bus.Publish(bus.Now(EventMessagesUpdated, id))
}

// Conversation returns the id of the active conversation, empty when none.
func (s *MessageStore) Conversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convID
}

// Load fetches the most recent page of the active conversation and replaces
// the settled history with it. Pending sends survive the replace. A Load
// while another is in flight is a no-op returning nil.
func (s *MessageStore) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.convID == "" {
		s.mu.Unlock()
		return ErrNoConversation
	}
	if s.loading {
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	epoch, convID := s.epoch, s.convID
	s.mu.Unlock()

	page, err := s.api.Messages(ctx, convID, 1, pageLimit)

	s.mu.Lock()
	if s.epoch != epoch {
		// The store was re-keyed while we were on the wire; this response
		// belongs to a conversation nobody is looking at anymore. Drop it
		// but free the in-flight slot.
		s.loading = false
		s.mu.Unlock()
		return nil
	}
	s.loading = false
	s.lastErr = err
	if err != nil {
		s.mu.Unlock()
		s.log.Warn("load failed", zap.String("conversation", convID), zap.Error(err))
		s.bus.Publish(bus.Now(EventMessagesLoadFailed, err.Error()))
		return err
	}
	pending := pendingOf(s.msgs)
	s.msgs = append(page.Messages, pending...)
	s.page = page.Page
	s.total = page.Total
	s.hasMore = page.HasMore
	snapshot := settled(s.msgs)
	s.history.Add(convID, snapshot)
	s.mu.Unlock()

	if s.db != nil {
		if err := s.db.ReplaceMessages(convID, snapshot); err != nil {
			s.log.Warn("cache write failed", zap.String("conversation", convID), zap.Error(err))
		}
	}
	s.bus.Publish(bus.Now(EventMessagesUpdated, convID))
	return nil
}

// LoadOlder fetches the next page back in history and prepends it. No-op
// when the history is exhausted or a load is already running.
func (s *MessageStore) LoadOlder(ctx context.Context) error {
	s.mu.Lock()
	if s.convID == "" {
		s.mu.Unlock()
		return ErrNoConversation
	}
	if s.loading || !s.hasMore {
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	epoch, convID, next := s.epoch, s.convID, s.page+1
	s.mu.Unlock()

	page, err := s.api.Messages(ctx, convID, next, pageLimit)

	s.mu.Lock()
	if s.epoch != epoch {
		s.loading = false
		s.mu.Unlock()
		return nil
	}
	s.loading = false
	s.lastErr = err
	if err != nil {
		s.mu.Unlock()
		s.log.Warn("load older failed", zap.String("conversation", convID), zap.Error(err))
		s.bus.Publish(bus.Now(EventMessagesLoadFailed, err.Error()))
		return err
	}
	known := make(map[string]struct{}, len(s.msgs))
	for _, m := range s.msgs {
		known[m.ID] = struct{}{}
	}
	older := make([]domain.Message, 0, len(page.Messages))
	for _, m := range page.Messages {
		if _, dup := known[m.ID]; !dup {
			older = append(older, m)
		}
	}
	s.msgs = append(older, s.msgs...)
	s.page = page.Page
	s.total = page.Total
	s.hasMore = page.HasMore
	s.mu.Unlock()

	s.bus.Publish(bus.Now(EventMessagesUpdated, convID))
	return nil
}

// Refresh re-fetches the active conversation's latest page. Used by the
// background refresher; a store with no active conversation is left alone.
func (s *MessageStore) Refresh(ctx context.Context) error {
	s.mu.Lock()
	idle := s.convID == ""
	s.mu.Unlock()
	if idle {
		return nil
	}
	return s.Load(ctx)
}

// Send posts a message optimistically: a pending placeholder appears in the
// history immediately and is replaced by the server's record on success or
// removed on failure. One send at a time per store.
func (s *MessageStore) Send(ctx context.Context, text string, attachments []domain.FileUpload) (domain.Message, error) {
	s.mu.Lock()
	if s.convID == "" {
		s.mu.Unlock()
		return domain.Message{}, ErrNoConversation
	}
	// Blank text never goes out, attachments or not.
	if strings.TrimSpace(text) == "" {
		s.mu.Unlock()
		return domain.Message{}, &domain.ValidationError{Field: "text", Reason: "is required"}
	}
	if s.sending {
		s.mu.Unlock()
		return domain.Message{}, ErrSendInFlight
	}
	s.sending = true
	epoch, convID := s.epoch, s.convID
	local := domain.Message{
		ID:             "local-" + uuid.NewString(),
		ConversationID: convID,
		Text:           text,
		IsOwn:          true,
		Status:         domain.MessagePending,
		Timestamp:      time.Now(),
	}
	s.msgs = append(s.msgs, local)
	s.mu.Unlock()

	s.bus.Publish(bus.Now(EventMessageSendPending, local.ID))

	msg, err := s.api.SendMessage(ctx, convID, text, attachments)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		if err != nil {
			return domain.Message{}, err
		}
		return msg, nil
	}
	s.sending = false
	if err != nil {
		s.msgs = removeByID(s.msgs, local.ID)
		s.mu.Unlock()
		s.log.Warn("send failed", zap.String("conversation", convID), zap.Error(err))
		s.bus.Publish(bus.Now(EventMessageSendFailed, local.ID))
		return domain.Message{}, err
	}
	replaced := false
	for i := range s.msgs {
		if s.msgs[i].ID == local.ID {
			s.msgs[i] = msg
			replaced = true
			break
		}
	}
	if !replaced {
		s.msgs = append(s.msgs, msg)
	}
	s.mu.Unlock()

	s.bus.Publish(bus.Now(EventMessageSendAck, msg.ID))
	s.bus.Publish(bus.Now(EventMessagesUpdated, convID))
	return msg, nil
}

// Append merges one externally delivered message into the history. A known
// id only advances the delivery status; delivery state never moves
// backwards. Messages for other conversations are ignored.
func (s *MessageStore) Append(msg domain.Message) {
	s.mu.Lock()
	if msg.ConversationID != s.convID || s.convID == "" {
		s.mu.Unlock()
		return
	}
	merged := false
	for i := range s.msgs {
		if s.msgs[i].ID == msg.ID {
			status := s.msgs[i].Status.Advance(msg.Status)
			s.msgs[i] = msg
			s.msgs[i].Status = status
			merged = true
			break
		}
	}
	if !merged {
		s.msgs = append(s.msgs, msg)
	}
	convID := s.convID
	s.mu.Unlock()

	s.bus.Publish(bus.Now(EventMessagesUpdated, convID))
}

// Snapshot returns the history sorted by timestamp ascending. Pending sends
// carry their local timestamp, which keeps them at the tail.
func (s *MessageStore) Snapshot() []domain.Message {
	s.mu.Lock()
	out := append([]domain.Message(nil), s.msgs...)
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// HasMore reports whether older pages remain on the server.
func (s *MessageStore) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// Loading reports whether a fetch is in flight.
func (s *MessageStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Sending reports whether a send is waiting on the server.
func (s *MessageStore) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

// LastError returns the outcome of the most recent load, nil on success.
func (s *MessageStore) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func settled(msgs []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Status != domain.MessagePending {
			out = append(out, m)
		}
	}
	return out
}

func pendingOf(msgs []domain.Message) []domain.Message {
	var out []domain.Message
	for _, m := range msgs {
		if m.Status == domain.MessagePending {
			out = append(out, m)
		}
	}
	return out
}

func removeByID(msgs []domain.Message, id string) []domain.Message {
	out := msgs[:0]
	for _, m := range msgs {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}

package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lfmelo/dealdesk/internal/bus"
	"github.com/lfmelo/dealdesk/internal/domain"
)

type fakeConversationAPI struct {
	mu        sync.Mutex
	convs     []domain.Conversation
	listErr   error
	listCalls int
	readIDs   []string
	readErr   error

	// when non-nil, List signals started and then waits for a tick on gate.
	started chan struct{}
	gate    chan struct{}
}

func (f *fakeConversationAPI) List(ctx context.Context) ([]domain.Conversation, error) {
	f.mu.Lock()
	f.listCalls++
	started, gate := f.started, f.gate
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.Conversation(nil), f.convs...), nil
}

func (f *fakeConversationAPI) MarkRead(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readIDs = append(f.readIDs, id)
	return f.readErr
}

func (f *fakeConversationAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *fakeConversationAPI) reads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.readIDs...)
}

type fakeConvCache struct {
	mu          sync.Mutex
	convs       []domain.Conversation
	replaced    [][]domain.Conversation
	checkpoints map[string]string
}

func (f *fakeConvCache) ReplaceConversations(convs []domain.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaced = append(f.replaced, convs)
	return nil
}

func (f *fakeConvCache) ListConversations() ([]domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.convs, nil
}

func (f *fakeConvCache) SetCheckpoint(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkpoints == nil {
		f.checkpoints = make(map[string]string)
	}
	f.checkpoints[key] = value
	return nil
}

func conv(id string, ts int64, unread int) domain.Conversation {
	return domain.Conversation{ID: id, Participant: "p-" + id, Timestamp: time.UnixMilli(ts), UnreadCount: unread}
}

func TestLoadSnapshotSortedNewestFirst(t *testing.T) {
	api := &fakeConversationAPI{convs: []domain.Conversation{
		conv("c1", 1000, 0), conv("c3", 3000, 1), conv("c2", 2000, 0),
	}}
	st := NewConversations(api, nil, bus.New(), zap.NewNop())

	if err := st.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := st.Snapshot()
	if len(got) != 3 {
		t.Fatalf("got %d conversations", len(got))
	}
	if got[0].ID != "c3" || got[1].ID != "c2" || got[2].ID != "c1" {
		t.Errorf("order = %s, %s, %s", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestLoadSingleFlight(t *testing.T) {
	api := &fakeConversationAPI{
		convs:   []domain.Conversation{conv("c1", 1000, 0)},
		started: make(chan struct{}, 1),
		gate:    make(chan struct{}),
	}
	st := NewConversations(api, nil, bus.New(), zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- st.Load(context.Background()) }()
	<-api.started

	// The first load is on the wire; this one must be a silent no-op.
	if err := st.Load(context.Background()); err != nil {
		t.Fatalf("second Load = %v, want nil", err)
	}
	close(api.gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if api.calls() != 1 {
		t.Errorf("List called %d times, want 1", api.calls())
	}
}

func TestLoadFailureKeepsSnapshotAndPublishes(t *testing.T) {
	api := &fakeConversationAPI{convs: []domain.Conversation{conv("c1", 1000, 0)}}
	b := bus.New()
	st := NewConversations(api, nil, b, zap.NewNop())
	if err := st.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	events, cancel := b.Subscribe("conversations.", 4)
	defer cancel()

	api.mu.Lock()
	api.listErr = errors.New("boom")
	api.mu.Unlock()
	if err := st.Load(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(st.Snapshot()) != 1 {
		t.Error("failed load should not clear the snapshot")
	}
	if st.LastError() == nil {
		t.Error("LastError should hold the failure")
	}
	select {
	case evt := <-events:
		if evt.Kind != EventConversationsLoadFailed {
			t.Errorf("event = %s", evt.Kind)
		}
	default:
		t.Error("no load_failed event published")
	}
}

func TestMarkReadOptimisticNoRollback(t *testing.T) {
	api := &fakeConversationAPI{
		convs:   []domain.Conversation{conv("c1", 1000, 5)},
		readErr: errors.New("unreachable"),
	}
	st := NewConversations(api, nil, bus.New(), zap.NewNop())
	if err := st.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	before, _ := st.Get("c1")
	st.MarkRead("c1")

	c, _ := st.Get("c1")
	if c.UnreadCount != 0 {
		t.Errorf("unread = %d immediately after MarkRead, want 0", c.UnreadCount)
	}
	if !c.Timestamp.After(before.Timestamp) {
		t.Error("MarkRead should bump the activity timestamp")
	}
	st.Wait()

	// The server call failed; the local zero stands until the next Load.
	c, _ = st.Get("c1")
	if c.UnreadCount != 0 {
		t.Errorf("unread = %d after failed notify, want 0 (no rollback)", c.UnreadCount)
	}
	if got := api.reads(); len(got) != 1 || got[0] != "c1" {
		t.Errorf("MarkRead calls = %v", got)
	}
}

func TestMarkReadZeroCountStillNotifies(t *testing.T) {
	api := &fakeConversationAPI{convs: []domain.Conversation{conv("c1", 1000, 0)}}
	st := NewConversations(api, nil, bus.New(), zap.NewNop())
	if err := st.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	// The local count can be stale-zero while messages accrued server-side;
	// the receipt must go out regardless.
	st.MarkRead("c1")
	st.Wait()
	if got := api.reads(); len(got) != 1 || got[0] != "c1" {
		t.Errorf("MarkRead calls = %v, want [c1]", got)
	}

	// Zero-count reads leave the local record untouched.
	c, _ := st.Get("c1")
	if !c.Timestamp.Equal(time.UnixMilli(1000)) {
		t.Errorf("timestamp = %v, should not move for a zero-count read", c.Timestamp)
	}

	st.MarkRead("missing")
	st.Wait()
	if len(api.reads()) != 1 {
		t.Errorf("MarkRead calls = %v, unknown ids must not notify", api.reads())
	}
}

func TestUpdateLocal(t *testing.T) {
	api := &fakeConversationAPI{convs: []domain.Conversation{conv("c1", 1000, 0)}}
	st := NewConversations(api, nil, bus.New(), zap.NewNop())
	if err := st.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	preview := "see you tomorrow"
	ts := time.UnixMilli(9000)
	st.UpdateLocal("c1", domain.ConversationPatch{LastMessage: &preview, Timestamp: &ts})

	c, _ := st.Get("c1")
	if c.LastMessage != preview || !c.Timestamp.Equal(ts) {
		t.Errorf("conversation = %+v", c)
	}
}

func TestHydrateThenLoadClearsStale(t *testing.T) {
	db := &fakeConvCache{convs: []domain.Conversation{conv("c1", 1000, 2)}}
	api := &fakeConversationAPI{convs: []domain.Conversation{conv("c1", 2000, 0), conv("c2", 3000, 1)}}
	st := NewConversations(api, db, bus.New(), zap.NewNop())

	st.Hydrate()
	if !st.Stale() {
		t.Error("hydrated snapshot should be stale")
	}
	if len(st.Snapshot()) != 1 {
		t.Errorf("snapshot = %d conversations, want 1 from cache", len(st.Snapshot()))
	}

	if err := st.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if st.Stale() {
		t.Error("snapshot should be fresh after Load")
	}
	if len(st.Snapshot()) != 2 {
		t.Errorf("snapshot = %d conversations, want 2 from server", len(st.Snapshot()))
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if len(db.replaced) != 1 || len(db.replaced[0]) != 2 {
		t.Errorf("cache writes = %v", db.replaced)
	}
	if db.checkpoints["conversations_refreshed_at"] == "" {
		t.Error("checkpoint not recorded")
	}
}

func TestHydrateSkippedAfterLoad(t *testing.T) {
	db := &fakeConvCache{convs: []domain.Conversation{conv("stale", 1, 0)}}
	api := &fakeConversationAPI{convs: []domain.Conversation{conv("c1", 2000, 0)}}
	st := NewConversations(api, db, bus.New(), zap.NewNop())

	if err := st.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	st.Hydrate()

	got := st.Snapshot()
	if len(got) != 1 || got[0].ID != "c1" {
		t.Errorf("snapshot = %+v, cache must not overwrite fresh data", got)
	}
}

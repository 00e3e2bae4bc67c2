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

type fakeDisputeAPI struct {
	mu        sync.Mutex
	byFilter  map[string][]domain.Dispute // keyed by status, "" = unfiltered
	lists     []string
	listErr   error
	created   domain.Dispute
	createErr error
	updated   domain.Dispute
	comments  []string

	started chan string
	gate    chan struct{}
}

func (f *fakeDisputeAPI) List(ctx context.Context, status *domain.DisputeStatus) ([]domain.Dispute, error) {
	key := ""
	if status != nil {
		key = string(*status)
	}
	f.mu.Lock()
	f.lists = append(f.lists, key)
	started, gate := f.started, f.gate
	f.mu.Unlock()
	if started != nil {
		started <- key
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.Dispute(nil), f.byFilter[key]...), nil
}

func (f *fakeDisputeAPI) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lists)
}

func (f *fakeDisputeAPI) Create(ctx context.Context, input domain.CreateDisputeInput, evidence []domain.FileUpload) (domain.Dispute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return domain.Dispute{}, f.createErr
	}
	return f.created, nil
}

func (f *fakeDisputeAPI) Update(ctx context.Context, id string, patch domain.DisputePatch) (domain.Dispute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updated, nil
}

func (f *fakeDisputeAPI) AddEvidence(ctx context.Context, id string, files []domain.FileUpload) (domain.Dispute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updated, nil
}

func (f *fakeDisputeAPI) AddComment(ctx context.Context, id, comment string) (domain.Dispute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, comment)
	return f.updated, nil
}

type fakeDisputeCache struct {
	mu          sync.Mutex
	disputes    []domain.Dispute
	replaced    [][]domain.Dispute
	upserted    []domain.Dispute
	checkpoints map[string]string
}

func (f *fakeDisputeCache) ReplaceDisputes(disputes []domain.Dispute) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaced = append(f.replaced, disputes)
	return nil
}

func (f *fakeDisputeCache) ListDisputes() ([]domain.Dispute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disputes, nil
}

func (f *fakeDisputeCache) UpsertDispute(d domain.Dispute) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, d)
	return nil
}

func (f *fakeDisputeCache) SetCheckpoint(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkpoints == nil {
		f.checkpoints = make(map[string]string)
	}
	f.checkpoints[key] = value
	return nil
}

func dispute(id string, status domain.DisputeStatus) domain.Dispute {
	return domain.Dispute{ID: id, OrderID: "O-" + id, Status: status,
		CreatedAt: time.UnixMilli(1000), UpdatedAt: time.UnixMilli(1000)}
}

func TestDisputeLoadAndSnapshot(t *testing.T) {
	api := &fakeDisputeAPI{byFilter: map[string][]domain.Dispute{
		"": {dispute("d2", domain.DisputeInReview), dispute("d1", domain.DisputePendingVerification)},
	}}
	st := NewDisputes(api, nil, bus.New(), zap.NewNop())

	if err := st.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := st.Snapshot()
	if len(got) != 2 || got[0].ID != "d2" {
		t.Errorf("snapshot = %+v, server order must be preserved", got)
	}
}

func TestFilterChangeDropsInFlightResponse(t *testing.T) {
	api := &fakeDisputeAPI{
		byFilter: map[string][]domain.Dispute{
			"":          {dispute("all", domain.DisputeInReview)},
			"in_review": {dispute("filtered", domain.DisputeInReview)},
		},
		started: make(chan string, 2),
		gate:    make(chan struct{}),
	}
	st := NewDisputes(api, nil, bus.New(), zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- st.Load(context.Background()) }()
	<-api.started

	// Narrow the filter while the unfiltered fetch is on the wire.
	status := domain.DisputeInReview
	st.SetFilter(&status)
	close(api.gate)
	if err := <-done; err != nil {
		t.Fatalf("stale load = %v, want silent nil", err)
	}
	if got := st.Snapshot(); len(got) != 0 {
		t.Errorf("unfiltered response leaked past the filter change: %+v", got)
	}

	if err := st.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := st.Snapshot()
	if len(got) != 1 || got[0].ID != "filtered" {
		t.Errorf("snapshot = %+v", got)
	}
}

func TestLoadSerializedAcrossFilterChange(t *testing.T) {
	api := &fakeDisputeAPI{
		byFilter: map[string][]domain.Dispute{
			"":          {dispute("all", domain.DisputeInReview)},
			"in_review": {dispute("filtered", domain.DisputeInReview)},
		},
		started: make(chan string, 2),
		gate:    make(chan struct{}),
	}
	st := NewDisputes(api, nil, bus.New(), zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- st.Load(context.Background()) }()
	<-api.started

	// The old filter's fetch still occupies the single in-flight slot; a
	// Load for the new filter must not start a second concurrent fetch.
	status := domain.DisputeInReview
	st.SetFilter(&status)
	if err := st.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if api.listCalls() != 1 {
		t.Errorf("List called %d times with a fetch in flight, want 1", api.listCalls())
	}

	close(api.gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	// The dropped response freed the slot.
	if err := st.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if api.listCalls() != 2 {
		t.Errorf("List called %d times, want 2", api.listCalls())
	}
	got := st.Snapshot()
	if len(got) != 1 || got[0].ID != "filtered" {
		t.Errorf("snapshot = %+v", got)
	}
}

func TestCreateValidatesBeforeNetwork(t *testing.T) {
	api := &fakeDisputeAPI{createErr: errors.New("must not be called")}
	st := NewDisputes(api, nil, bus.New(), zap.NewNop())

	_, err := st.Create(context.Background(), domain.CreateDisputeInput{
		OrderID: "O1", Reason: "damaged_product", Description: "too short",
	}, nil)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if verr.Field != "description" {
		t.Errorf("field = %s", verr.Field)
	}
}

func TestCreatePrependsAndPersists(t *testing.T) {
	created := dispute("d-new", domain.DisputePendingVerification)
	api := &fakeDisputeAPI{
		byFilter: map[string][]domain.Dispute{"": {dispute("d-old", domain.DisputeInReview)}},
		created:  created,
	}
	db := &fakeDisputeCache{}
	st := NewDisputes(api, db, bus.New(), zap.NewNop())
	if err := st.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	got, err := st.Create(context.Background(), domain.CreateDisputeInput{
		OrderID: "O1", Reason: "damaged_product",
		Description: "the parcel arrived visibly crushed on one side",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "d-new" {
		t.Errorf("created = %+v", got)
	}
	snap := st.Snapshot()
	if len(snap) != 2 || snap[0].ID != "d-new" {
		t.Errorf("snapshot = %+v, new dispute should lead", snap)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if len(db.upserted) != 1 || db.upserted[0].ID != "d-new" {
		t.Errorf("cache upserts = %+v", db.upserted)
	}
}

func TestUpdateSwapsFullRecord(t *testing.T) {
	updated := dispute("d1", domain.DisputeResolved)
	updated.Timeline = []domain.TimelineEvent{{ID: "t1", Kind: domain.TimelineResolved}}
	api := &fakeDisputeAPI{
		byFilter: map[string][]domain.Dispute{"": {dispute("d1", domain.DisputeInReview)}},
		updated:  updated,
	}
	st := NewDisputes(api, nil, bus.New(), zap.NewNop())
	if err := st.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	status := string(domain.DisputeResolved)
	if _, err := st.Update(context.Background(), "d1", domain.DisputePatch{Status: &status}); err != nil {
		t.Fatal(err)
	}
	got, ok := st.Get("d1")
	if !ok || got.Status != domain.DisputeResolved || len(got.Timeline) != 1 {
		t.Errorf("dispute = %+v, server record must replace wholesale", got)
	}
}

func TestReplaceRemovesRecordLeavingFilter(t *testing.T) {
	api := &fakeDisputeAPI{
		byFilter: map[string][]domain.Dispute{"in_review": {dispute("d1", domain.DisputeInReview)}},
		updated:  dispute("d1", domain.DisputeResolved),
	}
	st := NewDisputes(api, nil, bus.New(), zap.NewNop())
	status := domain.DisputeInReview
	st.SetFilter(&status)
	if err := st.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Resolving it moves it out of the in_review view.
	if _, err := st.AddComment(context.Background(), "d1", "closing this out"); err != nil {
		t.Fatal(err)
	}
	if got := st.Snapshot(); len(got) != 0 {
		t.Errorf("snapshot = %+v, resolved dispute should leave the filtered view", got)
	}
}

func TestFilteredLoadSkipsCacheWrite(t *testing.T) {
	api := &fakeDisputeAPI{byFilter: map[string][]domain.Dispute{
		"":          {dispute("d1", domain.DisputeInReview)},
		"in_review": {dispute("d1", domain.DisputeInReview)},
	}}
	db := &fakeDisputeCache{}
	st := NewDisputes(api, db, bus.New(), zap.NewNop())

	status := domain.DisputeInReview
	st.SetFilter(&status)
	if err := st.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	db.mu.Lock()
	filteredWrites := len(db.replaced)
	db.mu.Unlock()
	if filteredWrites != 0 {
		t.Error("a filtered list is partial and must not overwrite the cache")
	}

	st.SetFilter(nil)
	if err := st.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if len(db.replaced) != 1 {
		t.Errorf("cache writes = %d, want 1 after unfiltered load", len(db.replaced))
	}
	if db.checkpoints["disputes_refreshed_at"] == "" {
		t.Error("checkpoint not recorded")
	}
}

func TestDisputeHydrate(t *testing.T) {
	db := &fakeDisputeCache{disputes: []domain.Dispute{dispute("d1", domain.DisputeInReview)}}
	api := &fakeDisputeAPI{byFilter: map[string][]domain.Dispute{
		"": {dispute("d1", domain.DisputeResolved), dispute("d2", domain.DisputeInReview)},
	}}
	st := NewDisputes(api, db, bus.New(), zap.NewNop())

	st.Hydrate()
	if !st.Stale() {
		t.Error("hydrated snapshot should be stale")
	}
	if err := st.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if st.Stale() {
		t.Error("snapshot should be fresh after Load")
	}
	if len(st.Snapshot()) != 2 {
		t.Errorf("snapshot = %+v", st.Snapshot())
	}
}

package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"dayplan/docstore"
	"dayplan/domain"
)

type fakeSubscription struct {
	ch chan docstore.Snapshot

	mu       sync.Mutex
	canceled bool
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{ch: make(chan docstore.Snapshot, 8)}
}

func (f *fakeSubscription) Snapshots() <-chan docstore.Snapshot { return f.ch }

func (f *fakeSubscription) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.canceled {
		f.canceled = true
		close(f.ch)
	}
}

func (f *fakeSubscription) Canceled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canceled
}

func (f *fakeSubscription) push(snap docstore.Snapshot) { f.ch <- snap }

type fakeTaskStore struct {
	mu       sync.Mutex
	docs     []docstore.Document
	added    []docstore.Fields
	updated  map[string]docstore.Fields
	deleted  []string
	addErr   error
	queryErr error
	block    chan struct{}
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{updated: map[string]docstore.Fields{}}
}

func (f *fakeTaskStore) Add(ctx context.Context, fields docstore.Fields) (string, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return "", f.addErr
	}
	f.added = append(f.added, fields)
	return "generated-id", nil
}

func (f *fakeTaskStore) Update(ctx context.Context, id string, patch docstore.Fields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated[id] = patch
	return nil
}

func (f *fakeTaskStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeTaskStore) Get(ctx context.Context, id string) (docstore.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, doc := range f.docs {
		if doc.ID == id {
			return doc, nil
		}
	}
	return docstore.Document{}, docstore.ErrNotFound
}

func (f *fakeTaskStore) Query(ctx context.Context, filter *docstore.Filter) ([]docstore.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return append([]docstore.Document(nil), f.docs...), nil
}

func (f *fakeTaskStore) Subscribe(filter *docstore.Filter) *docstore.Subscription {
	panic("tests inject their own subscriber")
}

func (f *fakeTaskStore) addCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.added)
}

// newTestTracker wires a tracker whose subscriptions are fakes the test
// controls directly.
func newTestTracker(store *fakeTaskStore) (*Tracker, map[string]*fakeSubscription) {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	t := New(store, logger)
	subs := map[string]*fakeSubscription{}
	t.subscribe = func(userID string) Subscription {
		s := newFakeSubscription()
		subs[userID] = s
		return s
	}
	return t, subs
}

func taskDoc(id, title string, date int64, userID string) docstore.Document {
	return docstore.Document{ID: id, Fields: docstore.Fields{
		"title":       title,
		"date":        date,
		"category":    "Grocery",
		"userId":      userID,
		"isCompleted": false,
	}}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTrackerPublishesSortedSnapshot(t *testing.T) {
	store := newFakeTaskStore()
	tr, subs := newTestTracker(store)
	tr.Start("u1")
	t.Cleanup(tr.Stop)

	subs["u1"].push(docstore.Snapshot{Docs: []docstore.Document{
		taskDoc("t2", "Later", 300, "u1"),
		taskDoc("t1", "Sooner", 100, "u1"),
		taskDoc("t3", "Same day as t1", 100, "u1"),
	}})

	waitFor(t, func() bool { return len(tr.Snapshot()) == 3 }, "snapshot never published")

	got := tr.Snapshot()
	wantOrder := []string{"t1", "t3", "t2"}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Fatalf("order[%d] = %s, want %s (%+v)", i, got[i].ID, id, got)
		}
	}
}

func TestTrackerDropsMalformedRecordsIndividually(t *testing.T) {
	store := newFakeTaskStore()
	tr, subs := newTestTracker(store)
	tr.Start("u1")
	t.Cleanup(tr.Stop)

	missingDate := docstore.Document{ID: "bad", Fields: docstore.Fields{
		"title": "No date", "category": "Work", "userId": "u1", "isCompleted": false,
	}}
	subs["u1"].push(docstore.Snapshot{Docs: []docstore.Document{
		taskDoc("t1", "Good", 100, "u1"),
		missingDate,
		taskDoc("t2", "Also good", 200, "u1"),
	}})

	waitFor(t, func() bool { return len(tr.Snapshot()) == 2 }, "batch not published")
	for _, task := range tr.Snapshot() {
		if task.ID == "bad" {
			t.Fatal("malformed record survived mapping")
		}
	}
}

func TestTrackerStartReplacesSubscriptionForDifferentUser(t *testing.T) {
	store := newFakeTaskStore()
	tr, subs := newTestTracker(store)
	tr.Start("u1")
	t.Cleanup(tr.Stop)

	first := subs["u1"]
	tr.Start("u1") // same user: no-op
	if first.Canceled() {
		t.Fatal("restart for same user must not cancel the subscription")
	}

	tr.Start("u2")
	if !first.Canceled() {
		t.Fatal("previous user's subscription must be canceled before the new one starts")
	}
	if subs["u2"] == nil {
		t.Fatal("no subscription opened for the new user")
	}
}

func TestTrackerStopIsIdempotentAndBlocksLateSnapshots(t *testing.T) {
	store := newFakeTaskStore()
	tr, subs := newTestTracker(store)
	tr.Start("u1")

	sub := subs["u1"]
	subs["u1"].push(docstore.Snapshot{Docs: []docstore.Document{taskDoc("t1", "A", 100, "u1")}})
	waitFor(t, func() bool { return len(tr.Snapshot()) == 1 }, "initial publish")

	// Detach the subscription the way a racing replacement would, then push
	// a late snapshot on the old subscription: published state must not move.
	tr.mu.Lock()
	tr.sub = nil
	tr.mu.Unlock()
	sub.push(docstore.Snapshot{Docs: []docstore.Document{
		taskDoc("t1", "A", 100, "u1"),
		taskDoc("t2", "B", 200, "u1"),
	}})
	time.Sleep(50 * time.Millisecond)
	if len(tr.Snapshot()) != 1 {
		t.Fatalf("late snapshot altered published state: %d tasks", len(tr.Snapshot()))
	}

	tr.Stop()
	tr.Stop()
	if !sub.Canceled() {
		t.Fatal("stop must cancel the subscription")
	}
}

func TestTrackerReportsSubscriptionErrorOnce(t *testing.T) {
	store := newFakeTaskStore()
	tr, subs := newTestTracker(store)
	tr.Start("u1")
	t.Cleanup(tr.Stop)

	updates, cancel := tr.Listen()
	t.Cleanup(cancel)
	<-updates // initial empty list

	subs["u1"].push(docstore.Snapshot{Err: errors.New("transient")})
	select {
	case up := <-updates:
		if !errors.Is(up.Err, ErrSyncFailed) {
			t.Fatalf("update = %+v, want ErrSyncFailed", up)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error notice never delivered")
	}

	// A second consecutive failure is not re-reported; the next good
	// snapshot flows through.
	subs["u1"].push(docstore.Snapshot{Err: errors.New("transient again")})
	subs["u1"].push(docstore.Snapshot{Docs: []docstore.Document{taskDoc("t1", "A", 100, "u1")}})
	select {
	case up := <-updates:
		if up.Err != nil {
			t.Fatalf("repeated failure re-reported: %+v", up)
		}
		if len(up.Tasks) != 1 {
			t.Fatalf("tasks = %+v", up.Tasks)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("recovery snapshot never delivered")
	}
}

func TestAddRejectsBlankTitleBeforeStoreCall(t *testing.T) {
	store := newFakeTaskStore()
	tr, _ := newTestTracker(store)

	err := tr.Add(context.Background(), "   ", 100, "Grocery", "u1")
	if !errors.Is(err, ErrTitleRequired) {
		t.Fatalf("error = %v, want ErrTitleRequired", err)
	}
	if store.addCount() != 0 {
		t.Fatal("store must not be called for a blank title")
	}
}

func TestAddSetsAddingFlagForDuration(t *testing.T) {
	store := newFakeTaskStore()
	store.block = make(chan struct{})
	tr, _ := newTestTracker(store)

	done := make(chan error, 1)
	go func() {
		done <- tr.Add(context.Background(), "Buy milk", 1709251200000, "Grocery", "u1")
	}()

	waitFor(t, tr.Adding, "adding flag never set")
	close(store.block)
	if err := <-done; err != nil {
		t.Fatalf("add: %v", err)
	}
	if tr.Adding() {
		t.Fatal("adding flag must clear after completion")
	}

	fields := store.added[0]
	if v, _ := fields.String("title"); v != "Buy milk" {
		t.Fatalf("stored title = %q", v)
	}
	if v, _ := fields.Bool("isCompleted"); v {
		t.Fatal("new tasks start uncompleted")
	}
}

func TestAddClearsFlagOnFailure(t *testing.T) {
	store := newFakeTaskStore()
	store.addErr = errors.New("store refused")
	tr, _ := newTestTracker(store)

	if err := tr.Add(context.Background(), "Buy milk", 100, "Grocery", "u1"); err == nil {
		t.Fatal("expected store error")
	}
	if tr.Adding() {
		t.Fatal("adding flag must clear on failure")
	}
}

func TestUpdateAndDeletePassThrough(t *testing.T) {
	store := newFakeTaskStore()
	store.docs = []docstore.Document{taskDoc("t1", "Buy milk", 100, "u1")}
	tr, _ := newTestTracker(store)

	completed := true
	if err := tr.Update(context.Background(), "u1", "t1", domain.TaskPatch{IsCompleted: &completed}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if v, _ := store.updated["t1"].Bool("isCompleted"); !v {
		t.Fatalf("patch not forwarded: %+v", store.updated)
	}

	if err := tr.Update(context.Background(), "u1", "t1", domain.TaskPatch{}); err != nil {
		t.Fatalf("empty patch: %v", err)
	}
	if len(store.updated) != 1 {
		t.Fatal("empty patch must not reach the store")
	}

	if err := tr.Delete(context.Background(), "u1", "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "t1" {
		t.Fatalf("deleted = %v", store.deleted)
	}
}

func TestUpdateAndDeleteForeignTask(t *testing.T) {
	store := newFakeTaskStore()
	store.docs = []docstore.Document{taskDoc("t1", "Buy milk", 100, "owner")}
	tr, _ := newTestTracker(store)

	completed := true
	err := tr.Update(context.Background(), "intruder", "t1", domain.TaskPatch{IsCompleted: &completed})
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected not-found for foreign task, got %v", err)
	}
	if len(store.updated) != 0 {
		t.Fatal("foreign patch must not reach the store")
	}

	err = tr.Delete(context.Background(), "intruder", "t1")
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected not-found for foreign task, got %v", err)
	}
	if len(store.deleted) != 0 {
		t.Fatal("foreign delete must not reach the store")
	}
}

func TestDeleteAbsentTaskIsNoop(t *testing.T) {
	store := newFakeTaskStore()
	tr, _ := newTestTracker(store)

	if err := tr.Delete(context.Background(), "u1", "gone"); err != nil {
		t.Fatalf("delete of absent task: %v", err)
	}
	if len(store.deleted) != 0 {
		t.Fatalf("deleted = %v", store.deleted)
	}
}

func TestListenerReceivesLatestOnLag(t *testing.T) {
	store := newFakeTaskStore()
	tr, subs := newTestTracker(store)
	tr.Start("u1")
	t.Cleanup(tr.Stop)

	updates, cancel := tr.Listen()
	t.Cleanup(cancel)
	<-updates // initial

	// Listener does not read while three snapshots arrive.
	for i := 1; i <= 3; i++ {
		docs := make([]docstore.Document, 0, i)
		for j := 0; j < i; j++ {
			docs = append(docs, taskDoc("t", "T", int64(j), "u1"))
		}
		subs["u1"].push(docstore.Snapshot{Docs: docs})
	}
	waitFor(t, func() bool { return len(tr.Snapshot()) == 3 }, "final snapshot")

	select {
	case up := <-updates:
		if len(up.Tasks) != 3 {
			t.Fatalf("lagging listener got %d tasks, want latest (3)", len(up.Tasks))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no update delivered")
	}
}

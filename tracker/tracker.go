// Package tracker maintains a live, sorted view of one user's tasks by
// consuming document-store change snapshots.
package tracker

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"dayplan/docstore"
	"dayplan/domain"
)

// ErrTitleRequired rejects a task creation with a blank title before any
// store call is made.
var ErrTitleRequired = errors.New("task title must not be blank")

// ErrSyncFailed is the generic notice surfaced when the live subscription
// reports a failure. The subscription itself stays open.
var ErrSyncFailed = errors.New("task synchronization failed")

// TaskStore is the slice of the document store the coordinator needs.
type TaskStore interface {
	Add(ctx context.Context, fields docstore.Fields) (string, error)
	Get(ctx context.Context, id string) (docstore.Document, error)
	Update(ctx context.Context, id string, patch docstore.Fields) error
	Delete(ctx context.Context, id string) error
	Query(ctx context.Context, filter *docstore.Filter) ([]docstore.Document, error)
	Subscribe(filter *docstore.Filter) *docstore.Subscription
}

// Subscription is what the tracker consumes; satisfied by
// *docstore.Subscription.
type Subscription interface {
	Snapshots() <-chan docstore.Snapshot
	Cancel()
}

// subscriber adapts TaskStore.Subscribe to the Subscription interface so the
// consume loop can be driven by a fake in tests.
type subscriber func(userID string) Subscription

// Update is one publication of the tracker: a fresh sorted task list, or a
// one-shot error notice while the previous list stays in place.
type Update struct {
	Tasks []domain.Task
	Err   error
}

// Tracker is the task synchronization coordinator for a single user. It owns
// at most one live subscription; observing a different user cancels and
// replaces the previous subscription before the new one starts.
type Tracker struct {
	store     TaskStore
	subscribe subscriber
	log       *log.Logger

	mu        sync.Mutex
	userID    string
	sub       Subscription
	current   []domain.Task
	adding    bool
	listeners map[chan Update]struct{}
}

// New creates a stopped tracker.
func New(store TaskStore, logger *log.Logger) *Tracker {
	t := &Tracker{
		store:     store,
		log:       logger,
		listeners: map[chan Update]struct{}{},
	}
	t.subscribe = func(userID string) Subscription {
		return store.Subscribe(&docstore.Filter{Field: "userId", Value: userID})
	}
	return t
}

// Start opens the live subscription for userID. Starting for the user
// already observed is a no-op; a different user replaces the previous
// subscription.
func (t *Tracker) Start(userID string) {
	t.mu.Lock()
	if t.sub != nil && t.userID == userID {
		t.mu.Unlock()
		return
	}
	prev := t.sub
	t.sub = nil
	t.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}

	sub := t.subscribe(userID)
	t.mu.Lock()
	t.userID = userID
	t.sub = sub
	t.mu.Unlock()

	go t.consume(sub)
}

// Stop cancels the active subscription. Idempotent; once it returns, no
// further update is published from the old subscription.
func (t *Tracker) Stop() {
	t.mu.Lock()
	sub := t.sub
	t.sub = nil
	t.userID = ""
	t.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}

// Snapshot returns the last published task list.
func (t *Tracker) Snapshot() []domain.Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Task, len(t.current))
	copy(out, t.current)
	return out
}

// Adding reports whether an add call is in flight.
func (t *Tracker) Adding() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.adding
}

// Listen registers an update listener. The current list is delivered
// immediately; afterwards each publication replaces any undelivered one, so
// a slow listener always observes the latest state. The returned func
// unregisters the listener and closes its channel.
func (t *Tracker) Listen() (<-chan Update, func()) {
	ch := make(chan Update, 1)
	t.mu.Lock()
	current := make([]domain.Task, len(t.current))
	copy(current, t.current)
	ch <- Update{Tasks: current}
	t.listeners[ch] = struct{}{}
	t.mu.Unlock()

	cancel := func() {
		t.mu.Lock()
		if _, ok := t.listeners[ch]; ok {
			delete(t.listeners, ch)
			close(ch)
		}
		t.mu.Unlock()
	}
	return ch, cancel
}

// Add stores a new task. The blank-title check happens before any network
// call; the adding flag is held for the duration so a client can disable
// duplicate submissions. The live subscription delivers the created task, so
// no manual refresh is needed.
func (t *Tracker) Add(ctx context.Context, title string, date int64, category, userID string) error {
	if !domain.ValidTitle(title) {
		return ErrTitleRequired
	}

	t.mu.Lock()
	t.adding = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.adding = false
		t.mu.Unlock()
	}()

	_, err := t.store.Add(ctx, taskFields(title, date, category, userID))
	return err
}

// Update applies a partial patch to a task. Tasks of other users are
// reported as absent, not as forbidden.
func (t *Tracker) Update(ctx context.Context, userID, taskID string, patch domain.TaskPatch) error {
	if patch.Empty() {
		return nil
	}
	owner, err := t.taskOwner(ctx, taskID)
	if err != nil {
		return err
	}
	if owner != userID {
		return docstore.ErrNotFound
	}
	return t.store.Update(ctx, taskID, patchFields(patch))
}

// Delete removes a task. Deleting an already absent task is a no-op.
func (t *Tracker) Delete(ctx context.Context, userID, taskID string) error {
	owner, err := t.taskOwner(ctx, taskID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if owner != userID {
		return docstore.ErrNotFound
	}
	return t.store.Delete(ctx, taskID)
}

func (t *Tracker) taskOwner(ctx context.Context, taskID string) (string, error) {
	doc, err := t.store.Get(ctx, taskID)
	if err != nil {
		return "", err
	}
	owner, _ := doc.Fields.String("userId")
	return owner, nil
}

func (t *Tracker) consume(sub Subscription) {
	errReported := false
	for snap := range sub.Snapshots() {
		if snap.Err != nil {
			if !errReported {
				errReported = true
				t.log.Errorf("task subscription: %v", snap.Err)
				t.publish(sub, Update{Err: ErrSyncFailed})
			}
			continue
		}
		errReported = false

		tasks := make([]domain.Task, 0, len(snap.Docs))
		for _, doc := range snap.Docs {
			if task, ok := taskFromDocument(doc); ok {
				tasks = append(tasks, task)
			}
		}
		domain.SortTasksByDate(tasks)
		t.publish(sub, Update{Tasks: tasks})
	}
}

// publish records and fans out an update, unless the subscription has been
// replaced or cancelled in the meantime; late snapshots from a dead
// subscription must not alter published state.
func (t *Tracker) publish(sub Subscription, up Update) {
	t.mu.Lock()
	if t.sub != sub {
		t.mu.Unlock()
		return
	}
	if up.Err == nil {
		t.current = up.Tasks
	}
	// Fan out under the lock: Listen's cancel closes channels while holding
	// it, so this cannot race with a close. Sends never block; a slow
	// listener's stale pending update is replaced by the new one.
	for ch := range t.listeners {
		select {
		case ch <- up:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- up:
			default:
			}
		}
	}
	t.mu.Unlock()
}

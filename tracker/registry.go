package tracker

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"dayplan/docstore"
	"dayplan/domain"
)

// Registry hands out one running tracker per user so concurrent streams for
// the same user share a single live subscription. The last release stops the
// tracker.
type Registry struct {
	store      TaskStore
	log        *log.Logger
	newTracker func() *Tracker

	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	tracker *Tracker
	refs    int
}

// NewRegistry creates an empty registry.
func NewRegistry(store TaskStore, logger *log.Logger) *Registry {
	r := &Registry{
		store:   store,
		log:     logger,
		entries: map[string]*registryEntry{},
	}
	r.newTracker = func() *Tracker { return New(store, logger) }
	return r
}

// Acquire returns the running tracker for userID, starting one when needed.
// Every Acquire must be paired with a Release.
func (r *Registry) Acquire(userID string) *Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[userID]
	if !ok {
		e = &registryEntry{tracker: r.newTracker()}
		e.tracker.Start(userID)
		r.entries[userID] = e
	}
	e.refs++
	return e.tracker
}

// Release returns a borrowed tracker. When the last borrower releases it,
// the tracker is stopped and dropped.
func (r *Registry) Release(userID string) {
	r.mu.Lock()
	e, ok := r.entries[userID]
	if ok {
		e.refs--
		if e.refs <= 0 {
			delete(r.entries, userID)
		} else {
			e = nil
		}
	}
	r.mu.Unlock()

	if ok && e != nil {
		e.tracker.Stop()
	}
}

// Fetch loads a user's tasks with a single query, outside any live
// subscription. Malformed records are dropped the same way the live path
// drops them.
func (r *Registry) Fetch(ctx context.Context, userID string) ([]domain.Task, error) {
	docs, err := r.store.Query(ctx, &docstore.Filter{Field: "userId", Value: userID})
	if err != nil {
		return nil, err
	}
	tasks := make([]domain.Task, 0, len(docs))
	for _, doc := range docs {
		if task, ok := taskFromDocument(doc); ok {
			tasks = append(tasks, task)
		} else {
			r.log.WithField("id", doc.ID).Warn("dropping malformed task record")
		}
	}
	domain.SortTasksByDate(tasks)
	return tasks, nil
}

// Active returns the number of users with a running tracker.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

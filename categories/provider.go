package categories

import (
	"context"
	"errors"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"dayplan/docstore"
	"dayplan/domain"
)

// ErrSyncFailed is published to listeners when the category collection cannot
// be read.
var ErrSyncFailed = errors.New("category synchronization failed")

// CategoryStore is the slice of the document client the provider needs.
type CategoryStore interface {
	Query(ctx context.Context, filter *docstore.Filter) ([]docstore.Document, error)
	Add(ctx context.Context, fields docstore.Fields) (string, error)
	Subscribe(filter *docstore.Filter) *docstore.Subscription
}

// Subscription is the live feed the provider consumes.
type Subscription interface {
	Snapshots() <-chan docstore.Snapshot
	Cancel()
}

// Update is one delivery to a listener: the full category list or an error.
type Update struct {
	Categories []domain.Category
	Err        error
}

// Provider keeps the category list warm behind a single shared subscription.
// Categories are global, so one subscription serves every caller for the
// lifetime of the process.
type Provider struct {
	store CategoryStore
	log   *log.Logger

	subscribe func() Subscription

	mu        sync.Mutex
	sub       Subscription
	current   []domain.Category
	failed    bool
	listeners map[chan Update]struct{}
}

// New creates a provider and opens its subscription immediately.
func New(store CategoryStore, logger *log.Logger) *Provider {
	p := &Provider{
		store:     store,
		log:       logger,
		listeners: map[chan Update]struct{}{},
	}
	p.subscribe = func() Subscription { return store.Subscribe(nil) }
	p.start()
	return p
}

func (p *Provider) start() {
	sub := p.subscribe()
	p.mu.Lock()
	p.sub = sub
	p.mu.Unlock()
	go p.consume(sub)
}

// Close cancels the shared subscription. Listeners see their channels closed.
func (p *Provider) Close() {
	p.mu.Lock()
	sub := p.sub
	p.sub = nil
	p.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}

	p.mu.Lock()
	for ch := range p.listeners {
		close(ch)
	}
	p.listeners = map[chan Update]struct{}{}
	p.mu.Unlock()
}

// Snapshot returns the current category list.
func (p *Provider) Snapshot() []domain.Category {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Category, len(p.current))
	copy(out, p.current)
	return out
}

// Listen registers a listener for category updates. The returned cancel
// function unregisters it and closes the channel. A lagging listener only
// ever sees the latest update.
func (p *Provider) Listen() (<-chan Update, func()) {
	ch := make(chan Update, 1)

	p.mu.Lock()
	ch <- Update{Categories: append([]domain.Category(nil), p.current...)}
	p.listeners[ch] = struct{}{}
	p.mu.Unlock()

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if _, ok := p.listeners[ch]; ok {
			delete(p.listeners, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// EnsureDefaults seeds the built-in categories when the collection is empty.
func (p *Provider) EnsureDefaults(ctx context.Context) error {
	docs, err := p.store.Query(ctx, nil)
	if err != nil {
		return err
	}
	if len(docs) > 0 {
		return nil
	}
	for _, c := range domain.DefaultCategories {
		if _, err := p.store.Add(ctx, categoryFields(c)); err != nil {
			return err
		}
	}
	p.log.WithField("count", len(domain.DefaultCategories)).Info("seeded default categories")
	return nil
}

func (p *Provider) consume(sub Subscription) {
	for snap := range sub.Snapshots() {
		if snap.Err != nil {
			p.mu.Lock()
			first := !p.failed
			p.failed = true
			p.mu.Unlock()
			if first {
				p.log.WithError(snap.Err).Error("category subscription failed")
				p.publish(sub, Update{Err: ErrSyncFailed})
			}
			continue
		}

		cats := make([]domain.Category, 0, len(snap.Docs))
		for _, doc := range snap.Docs {
			c, ok := categoryFromDocument(doc)
			if !ok {
				p.log.WithField("id", doc.ID).Warn("dropping malformed category record")
				continue
			}
			cats = append(cats, c)
		}
		sort.SliceStable(cats, func(i, j int) bool { return cats[i].Name < cats[j].Name })

		p.mu.Lock()
		p.failed = false
		p.current = cats
		p.mu.Unlock()
		p.publish(sub, Update{Categories: cats})
	}
}

func (p *Provider) publish(sub Subscription, u Update) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sub != sub {
		return
	}
	// Sending under the lock cannot race with a listener's cancel, which
	// closes the channel under the same lock.
	for ch := range p.listeners {
		select {
		case ch <- u:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- u
		}
	}
}

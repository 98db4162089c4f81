package docstore

import (
	"context"
	"sync"
)

// Snapshot is one full result set delivered by a live subscription. Err is
// set when the underlying query failed; the subscription itself stays open
// and retries on the next notification.
type Snapshot struct {
	Docs []Document
	Err  error
}

type fetchFunc func(ctx context.Context) ([]Document, error)

// Subscription is a cancelable live view over a filtered collection. C
// carries cumulative snapshots; when the consumer lags, a newer snapshot
// replaces the undelivered one, so the last notification always wins. C is
// closed after Cancel.
type Subscription struct {
	C <-chan Snapshot

	ch     chan Snapshot
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newSubscription(notifier *Notifier, collection string, fetch fetchFunc) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		ch:     make(chan Snapshot, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	sub.C = sub.ch
	go sub.run(ctx, notifier, collection, fetch)
	return sub
}

// Snapshots returns the delivery channel. Equivalent to reading C directly.
func (s *Subscription) Snapshots() <-chan Snapshot {
	return s.C
}

// Cancel stops the subscription. It is idempotent and synchronous: once it
// returns, nothing more is delivered on C and C is closed.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

func (s *Subscription) run(ctx context.Context, notifier *Notifier, collection string, fetch fetchFunc) {
	defer func() {
		close(s.ch)
		close(s.done)
	}()

	pubsub := notifier.Subscribe(ctx, collection)
	defer pubsub.Close()
	updates := pubsub.Channel()

	s.deliver(ctx, fetch)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-updates:
			if !ok {
				return
			}
			s.deliver(ctx, fetch)
		}
	}
}

func (s *Subscription) deliver(ctx context.Context, fetch fetchFunc) {
	docs, err := fetch(ctx)
	if ctx.Err() != nil {
		return
	}
	snap := Snapshot{Docs: docs, Err: err}
	for {
		select {
		case <-ctx.Done():
			return
		case s.ch <- snap:
			return
		default:
		}
		// Consumer lagging: drop the stale pending snapshot and retry.
		select {
		case <-s.ch:
		default:
		}
	}
}

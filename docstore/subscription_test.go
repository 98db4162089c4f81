package docstore

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestNotifier(t *testing.T) (*Notifier, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewNotifier(client, "docstore"), client
}

func waitSnapshot(t *testing.T, sub *Subscription) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription channel closed unexpectedly")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return Snapshot{}
}

func TestSubscriptionDeliversInitialSnapshot(t *testing.T) {
	notifier, _ := newTestNotifier(t)

	fetch := func(ctx context.Context) ([]Document, error) {
		return []Document{{ID: "t1"}}, nil
	}
	sub := newSubscription(notifier, "tasks", fetch)
	t.Cleanup(sub.Cancel)

	snap := waitSnapshot(t, sub)
	if snap.Err != nil || len(snap.Docs) != 1 || snap.Docs[0].ID != "t1" {
		t.Fatalf("initial snapshot = %+v", snap)
	}
}

func TestSubscriptionRefreshesOnNotification(t *testing.T) {
	notifier, _ := newTestNotifier(t)

	var generation atomic.Int32
	fetch := func(ctx context.Context) ([]Document, error) {
		n := int(generation.Load())
		docs := make([]Document, n)
		for i := range docs {
			docs[i] = Document{ID: "t"}
		}
		return docs, nil
	}

	sub := newSubscription(notifier, "tasks", fetch)
	t.Cleanup(sub.Cancel)

	if snap := waitSnapshot(t, sub); len(snap.Docs) != 0 {
		t.Fatalf("initial snapshot should be empty, got %d docs", len(snap.Docs))
	}

	generation.Store(2)
	notifier.Publish(context.Background(), "tasks")

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := waitSnapshot(t, sub)
		if len(snap.Docs) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("never observed refreshed snapshot, last had %d docs", len(snap.Docs))
		}
	}
}

func TestSubscriptionReportsQueryErrorAndStaysOpen(t *testing.T) {
	notifier, _ := newTestNotifier(t)

	var fail atomic.Bool
	fail.Store(true)
	fetch := func(ctx context.Context) ([]Document, error) {
		if fail.Load() {
			return nil, errors.New("backend unavailable")
		}
		return []Document{{ID: "t1"}}, nil
	}

	sub := newSubscription(notifier, "tasks", fetch)
	t.Cleanup(sub.Cancel)

	if snap := waitSnapshot(t, sub); snap.Err == nil {
		t.Fatal("expected error snapshot")
	}

	fail.Store(false)
	notifier.Publish(context.Background(), "tasks")

	snap := waitSnapshot(t, sub)
	if snap.Err != nil || len(snap.Docs) != 1 {
		t.Fatalf("subscription did not recover: %+v", snap)
	}
}

func TestSubscriptionCancelIsSynchronousAndIdempotent(t *testing.T) {
	notifier, _ := newTestNotifier(t)

	fetch := func(ctx context.Context) ([]Document, error) {
		return []Document{{ID: "t1"}}, nil
	}
	sub := newSubscription(notifier, "tasks", fetch)

	waitSnapshot(t, sub)
	sub.Cancel()
	sub.Cancel()

	// A notification arriving after Cancel returned must not deliver
	// anything; the channel is already closed.
	notifier.Publish(context.Background(), "tasks")

	select {
	case snap, ok := <-sub.C:
		if ok {
			t.Fatalf("snapshot delivered after cancel: %+v", snap)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("channel should be closed after cancel")
	}
}

func TestSubscriptionLastNotificationWins(t *testing.T) {
	notifier, _ := newTestNotifier(t)

	var generation atomic.Int32
	fetch := func(ctx context.Context) ([]Document, error) {
		n := int(generation.Add(1))
		docs := make([]Document, n)
		for i := range docs {
			docs[i] = Document{ID: "t"}
		}
		return docs, nil
	}

	sub := newSubscription(notifier, "tasks", fetch)
	t.Cleanup(sub.Cancel)

	// Do not read yet: pile up notifications so pending snapshots get
	// replaced rather than queued.
	for i := 0; i < 5; i++ {
		notifier.Publish(context.Background(), "tasks")
	}

	deadline := time.Now().Add(2 * time.Second)
	var last Snapshot
	for {
		last = waitSnapshot(t, sub)
		if len(last.Docs) == int(generation.Load()) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("latest snapshot never surfaced: %d docs, generation %d",
				len(last.Docs), generation.Load())
		}
	}
}

package docstore

import (
	"context"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Notifier fans collection change notifications out over Redis pub/sub so
// every live subscription, on any instance, refreshes its snapshot after a
// write.
type Notifier struct {
	rc     *redis.Client
	prefix string
}

// NewNotifier creates a Notifier publishing on channels named
// "<prefix>:<collection>".
func NewNotifier(rc *redis.Client, prefix string) *Notifier {
	return &Notifier{rc: rc, prefix: prefix}
}

func (n *Notifier) channel(collection string) string {
	return n.prefix + ":" + collection
}

// Publish announces that the collection changed. Failures are logged, not
// returned: the write itself already succeeded and the subscription layer
// recovers on the next notification.
func (n *Notifier) Publish(ctx context.Context, collection string) {
	if err := n.rc.Publish(ctx, n.channel(collection), collection).Err(); err != nil {
		log.Errorf("notify %s changed: %v", collection, err)
	}
}

// Subscribe opens a pub/sub subscription for the collection's change channel.
func (n *Notifier) Subscribe(ctx context.Context, collection string) *redis.PubSub {
	return n.rc.Subscribe(ctx, n.channel(collection))
}

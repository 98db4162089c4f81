package profile

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
)

// CleanupQueue parks accounts whose compensating deletion failed during
// sign-up so an operator (or out-of-band job) can reconcile them. It is a
// parking lot, not a scheduler: nothing in this service consumes it.
type CleanupQueue struct {
	queue *azqueue.QueueClient
}

// NewCleanupQueue wraps the given queue client.
func NewCleanupQueue(queue *azqueue.QueueClient) *CleanupQueue {
	return &CleanupQueue{queue: queue}
}

type orphanMessage struct {
	UserID   string `json:"userId"`
	Reason   string `json:"reason"`
	ParkedAt int64  `json:"parkedAt"`
}

// EnqueueOrphan records an account left behind at the identity provider.
func (c *CleanupQueue) EnqueueOrphan(ctx context.Context, userID, reason string) error {
	msg := orphanMessage{
		UserID:   userID,
		Reason:   reason,
		ParkedAt: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = c.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}

// EnsureQueue creates the cleanup queue when absent.
func EnsureQueue(ctx context.Context, connStr, name string) (*CleanupQueue, error) {
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
	if err != nil {
		return nil, err
	}
	if _, err := q.Create(ctx, nil); err != nil {
		if !isQueueExists(err) {
			return nil, err
		}
	}
	return NewCleanupQueue(q), nil
}

func isQueueExists(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists"
}

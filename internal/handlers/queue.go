package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/imrishuroy/marketplace-orderflow/internal/aws"
	"github.com/imrishuroy/marketplace-orderflow/internal/notifications"
)

// MessageSender publishes queue messages.
type MessageSender interface {
	Send(ctx context.Context, msg aws.Message) error
}

// QueueEnqueuer forwards notifications to the worker queue.
type QueueEnqueuer struct {
	sender MessageSender
}

// NewQueueEnqueuer returns an Enqueuer backed by sender.
func NewQueueEnqueuer(sender MessageSender) *QueueEnqueuer {
	return &QueueEnqueuer{sender: sender}
}

// Enqueue publishes the raw notification grouped by its target key, so a FIFO
// queue delivers one order's notifications in order to one consumer at a time.
func (q *QueueEnqueuer) Enqueue(ctx context.Context, n notifications.Notification, target notifications.Target) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	msg := aws.Message{
		Body:     string(body),
		GroupKey: target.Key(),
		DedupID:  dedupID(n),
		Attributes: map[string]string{
			"topic": target.Topic,
			"key":   target.Key(),
		},
	}
	if err := q.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// dedupID keeps redelivered attempts of one notification distinct.
func dedupID(n notifications.Notification) string {
	if n.ID == "" {
		return ""
	}
	return fmt.Sprintf("%s-%d", n.ID, n.Attempts)
}

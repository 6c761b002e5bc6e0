// Package metrics records notification outcomes for operators.
package metrics

import (
	"context"
	"time"
)

// Recorder receives one observation per processed or dropped notification.
// Implementations must be safe for concurrent use and must not fail the caller.
type Recorder interface {
	ObserveNotification(ctx context.Context, topic, outcome string, elapsed time.Duration)
	NotificationDropped(ctx context.Context, reason string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) ObserveNotification(context.Context, string, string, time.Duration) {}

func (Nop) NotificationDropped(context.Context, string) {}

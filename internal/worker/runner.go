// Package worker runs notification jobs off the request path.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/marketplace-orderflow/internal/lock"
	"github.com/imrishuroy/marketplace-orderflow/internal/notifications"
	"github.com/imrishuroy/marketplace-orderflow/internal/reconciler"
)

var (
	// ErrPanic wraps a panic recovered from a job.
	ErrPanic = errors.New("job panicked")
	// ErrLockUnavailable marks a job that never ran because its key lock could not be taken.
	ErrLockUnavailable = errors.New("key lock unavailable")
)

// Handler processes one notification target.
type Handler interface {
	Handle(ctx context.Context, target notifications.Target) (reconciler.Outcome, error)
}

// Runner executes one job: per-key lock, timeout, panic recovery and logging.
type Runner struct {
	handler Handler
	locker  lock.Locker
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunner returns a Runner. A zero timeout means no per-job deadline.
func NewRunner(handler Handler, locker lock.Locker, timeout time.Duration, logger *zap.Logger) *Runner {
	return &Runner{handler: handler, locker: locker, timeout: timeout, logger: logger.Named("worker")}
}

// Run processes target while holding its key. Jobs for the same key never overlap.
func (r *Runner) Run(ctx context.Context, target notifications.Target) (err error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	key := target.Key()
	log := r.logger.With(zap.String("key", key), zap.String("topic", target.Topic))

	defer func() {
		if p := recover(); p != nil {
			log.Error("job panicked", zap.Any("panic", p), zap.Stack("stack"))
			err = fmt.Errorf("%w: %v", ErrPanic, p)
		}
	}()

	release, err := r.locker.Acquire(ctx, key)
	if err != nil {
		log.Warn("lock not acquired", zap.Error(err))
		return fmt.Errorf("%w: acquire %s: %w", ErrLockUnavailable, key, err)
	}
	defer release()

	start := time.Now()
	outcome, err := r.handler.Handle(ctx, target)
	log.Info("notification processed",
		zap.String("outcome", string(outcome)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	return err
}

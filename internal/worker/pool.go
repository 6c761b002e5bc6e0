package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/imrishuroy/marketplace-orderflow/internal/metrics"
	"github.com/imrishuroy/marketplace-orderflow/internal/notifications"
)

var (
	ErrQueueFull  = errors.New("worker queue full")
	ErrPoolClosed = errors.New("worker pool closed")
)

// PoolConfig sizes a Pool.
type PoolConfig struct {
	Concurrency int
	QueueSize   int
}

// Pool runs jobs on a fixed number of goroutines fed by a bounded queue.
type Pool struct {
	runner      *Runner
	jobs        chan notifications.Target
	concurrency int
	metrics     metrics.Recorder
	logger      *zap.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool returns a Pool. Call Start before jobs are consumed.
func NewPool(runner *Runner, cfg PoolConfig, recorder metrics.Recorder, logger *zap.Logger) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Pool{
		runner:      runner,
		jobs:        make(chan notifications.Target, cfg.QueueSize),
		concurrency: cfg.Concurrency,
		metrics:     recorder,
		logger:      logger.Named("pool"),
	}
}

// Start launches the workers. Jobs inherit ctx; cancelling it or calling Stop aborts them.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.loop(ctx)
	}
	p.logger.Info("worker pool started", zap.Int("concurrency", p.concurrency), zap.Int("queue_size", cap(p.jobs)))
}

func (p *Pool) loop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case target := <-p.jobs:
			_ = p.runner.Run(ctx, target)
		}
	}
}

// Submit queues target without blocking.
func (p *Pool) Submit(target notifications.Target) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- target:
		return nil
	default:
		p.metrics.NotificationDropped(context.Background(), "queue_full")
		p.logger.Warn("queue full, notification dropped", zap.String("key", target.Key()))
		return ErrQueueFull
	}
}

// Enqueue lets the pool back the webhook handler directly.
func (p *Pool) Enqueue(_ context.Context, _ notifications.Notification, target notifications.Target) error {
	return p.Submit(target)
}

// Stop refuses new jobs, cancels running ones and waits for the workers until ctx expires.
// Jobs still queued are dropped; the marketplace redelivers them.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info("worker pool stopped", zap.Int("dropped", len(p.jobs)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

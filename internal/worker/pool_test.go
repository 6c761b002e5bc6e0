package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imrishuroy/marketplace-orderflow/internal/lock"
	"github.com/imrishuroy/marketplace-orderflow/internal/notifications"
	"github.com/imrishuroy/marketplace-orderflow/internal/reconciler"
)

type handlerFunc func(ctx context.Context, target notifications.Target) (reconciler.Outcome, error)

func (f handlerFunc) Handle(ctx context.Context, target notifications.Target) (reconciler.Outcome, error) {
	return f(ctx, target)
}

func order(id string) notifications.Target {
	return notifications.Target{Topic: notifications.TopicOrders, ID: id}
}

func newTestPool(t *testing.T, h Handler, concurrency, queue int, timeout time.Duration) *Pool {
	t.Helper()
	runner := NewRunner(h, lock.NewLocal(), timeout, zap.NewNop())
	p := NewPool(runner, PoolConfig{Concurrency: concurrency, QueueSize: queue}, nil, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Stop(ctx)
	})
	return p
}

func TestPool_ProcessesJobs(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	h := handlerFunc(func(ctx context.Context, target notifications.Target) (reconciler.Outcome, error) {
		mu.Lock()
		defer mu.Unlock()
		seen[target.ID] = true
		return reconciler.OutcomeCreated, nil
	})

	p := newTestPool(t, h, 2, 10, 0)
	p.Start(context.Background())
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(order(fmt.Sprint(i))))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 5
	}, time.Second, 5*time.Millisecond)
}

func TestPool_SameKeyNeverOverlaps(t *testing.T) {
	var active, maxActive, done atomic.Int32
	h := handlerFunc(func(ctx context.Context, target notifications.Target) (reconciler.Outcome, error) {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		done.Add(1)
		return reconciler.OutcomeIgnored, nil
	})

	p := newTestPool(t, h, 4, 20, 0)
	p.Start(context.Background())
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(order("555")))
	}

	assert.Eventually(t, func() bool { return done.Load() == 10 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestPool_DifferentKeysRunInParallel(t *testing.T) {
	const n = 3
	var arrived sync.WaitGroup
	arrived.Add(n)
	release := make(chan struct{})
	var finished atomic.Int32
	h := handlerFunc(func(ctx context.Context, target notifications.Target) (reconciler.Outcome, error) {
		arrived.Done()
		<-release
		finished.Add(1)
		return reconciler.OutcomeIgnored, nil
	})

	p := newTestPool(t, h, n, n, 0)
	p.Start(context.Background())
	for i := 0; i < n; i++ {
		require.NoError(t, p.Submit(order(fmt.Sprint(i))))
	}

	all := make(chan struct{})
	go func() {
		arrived.Wait()
		close(all)
	}()
	select {
	case <-all:
	case <-time.After(time.Second):
		t.Fatal("jobs for different keys did not run concurrently")
	}
	close(release)
	assert.Eventually(t, func() bool { return finished.Load() == n }, time.Second, 5*time.Millisecond)
}

func TestPool_SubmitNeverBlocks(t *testing.T) {
	h := handlerFunc(func(ctx context.Context, target notifications.Target) (reconciler.Outcome, error) {
		return reconciler.OutcomeIgnored, nil
	})
	p := newTestPool(t, h, 1, 1, 0)

	require.NoError(t, p.Submit(order("1")))
	assert.ErrorIs(t, p.Submit(order("2")), ErrQueueFull)
}

func TestPool_SubmitAfterStop(t *testing.T) {
	h := handlerFunc(func(ctx context.Context, target notifications.Target) (reconciler.Outcome, error) {
		return reconciler.OutcomeIgnored, nil
	})
	p := newTestPool(t, h, 1, 1, 0)
	p.Start(context.Background())
	require.NoError(t, p.Stop(context.Background()))

	assert.ErrorIs(t, p.Submit(order("1")), ErrPoolClosed)
	assert.ErrorIs(t, p.Enqueue(context.Background(), notifications.Notification{}, order("1")), ErrPoolClosed)
}

func TestPool_PanicDoesNotKillWorker(t *testing.T) {
	var handled atomic.Int32
	h := handlerFunc(func(ctx context.Context, target notifications.Target) (reconciler.Outcome, error) {
		if target.ID == "boom" {
			panic("nil map")
		}
		handled.Add(1)
		return reconciler.OutcomeIgnored, nil
	})

	p := newTestPool(t, h, 1, 4, 0)
	p.Start(context.Background())
	require.NoError(t, p.Submit(order("boom")))
	require.NoError(t, p.Submit(order("ok")))

	assert.Eventually(t, func() bool { return handled.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestPool_StopCancelsRunningJobs(t *testing.T) {
	started := make(chan struct{})
	var sawCancel atomic.Bool
	h := handlerFunc(func(ctx context.Context, target notifications.Target) (reconciler.Outcome, error) {
		close(started)
		<-ctx.Done()
		sawCancel.Store(true)
		return reconciler.OutcomeFailed, ctx.Err()
	})

	p := newTestPool(t, h, 1, 1, 0)
	p.Start(context.Background())
	require.NoError(t, p.Submit(order("555")))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))
	assert.True(t, sawCancel.Load())
}

func TestRunner_JobTimeout(t *testing.T) {
	h := handlerFunc(func(ctx context.Context, target notifications.Target) (reconciler.Outcome, error) {
		<-ctx.Done()
		return reconciler.OutcomeFailed, ctx.Err()
	})
	r := NewRunner(h, lock.NewLocal(), 10*time.Millisecond, zap.NewNop())

	err := r.Run(context.Background(), order("1"))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRunner_RecoversPanic(t *testing.T) {
	h := handlerFunc(func(ctx context.Context, target notifications.Target) (reconciler.Outcome, error) {
		panic("boom")
	})
	locker := lock.NewLocal()
	r := NewRunner(h, locker, 0, zap.NewNop())

	err := r.Run(context.Background(), order("1"))
	assert.ErrorIs(t, err, ErrPanic)

	// the key must be free again
	release, err := locker.Acquire(context.Background(), order("1").Key())
	require.NoError(t, err)
	release()
}

type failingLocker struct{}

func (failingLocker) Acquire(ctx context.Context, key string) (func(), error) {
	return nil, lock.ErrNotAcquired
}

func TestRunner_LockFailureSkipsHandler(t *testing.T) {
	var called atomic.Bool
	h := handlerFunc(func(ctx context.Context, target notifications.Target) (reconciler.Outcome, error) {
		called.Store(true)
		return reconciler.OutcomeIgnored, nil
	})
	r := NewRunner(h, failingLocker{}, 0, zap.NewNop())

	err := r.Run(context.Background(), order("1"))
	assert.ErrorIs(t, err, lock.ErrNotAcquired)
	assert.ErrorIs(t, err, ErrLockUnavailable)
	assert.False(t, called.Load())
}

// Package lock provides per-key mutual exclusion. Local serializes within one
// process; Dynamo and Redis lease locks serialize across instances.
package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired is returned by a single lease attempt that lost to another owner.
var ErrNotAcquired = errors.New("lock held by another owner")

// Locker acquires an exclusive lock on key. The returned release func is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

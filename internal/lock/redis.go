package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the key only when it still holds our owner token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX.
type RedisLocker struct {
	client       *redis.Client
	keyPrefix    string
	ttl          time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewRedisLocker returns a RedisLocker.
func NewRedisLocker(client *redis.Client, keyPrefix string, ttl, pollInterval time.Duration, logger *zap.Logger) *RedisLocker {
	if keyPrefix == "" {
		keyPrefix = "orderflow:lock:"
	}
	return &RedisLocker{
		client:       client,
		keyPrefix:    keyPrefix,
		ttl:          ttl,
		pollInterval: pollInterval,
		logger:       logger.Named("redis_lock"),
	}
}

// Acquire polls until the key is set or ctx is done.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := l.keyPrefix + key
	owner := uuid.NewString()
	policy := backoff.WithContext(backoff.NewConstantBackOff(l.pollInterval), ctx)

	err := backoff.Retry(func() error {
		ok, err := l.client.SetNX(ctx, redisKey, owner, l.ttl).Result()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("setnx %s: %w", redisKey, err))
		}
		if !ok {
			return ErrNotAcquired
		}
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.client, []string{redisKey}, owner).Err(); err != nil {
				l.logger.Warn("lock release failed", zap.String("key", redisKey), zap.Error(err))
			}
		})
	}, nil
}

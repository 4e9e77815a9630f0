package service

import (
	"context"
	"errors"
	"time"

	"cartflow/pkg/logger"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker is the per-sweep mutual exclusion between scheduler replicas.
// TryLock never blocks: a replica that loses the race skips the tick and the
// next tick retries.
type Locker interface {
	TryLock(ctx context.Context, key string) (release func(), ok bool)
}

type RedisLocker struct {
	cli *redislock.Client
	ttl time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{cli: redislock.New(rdb), ttl: ttl}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(), bool) {
	lock, err := l.cli.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		logger.Debug("scheduler lock held elsewhere, skipping tick", zap.String("key", key))
		return nil, false
	}
	if err != nil {
		logger.Warn("scheduler lock error, skipping tick", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return func() {
		if err := lock.Release(context.Background()); err != nil {
			logger.Warn("scheduler lock release failed", zap.String("key", key), zap.Error(err))
		}
	}, true
}

// NoopLocker always grants the lock. Single-instance deployments and tests.
type NoopLocker struct{}

func (NoopLocker) TryLock(ctx context.Context, key string) (func(), bool) {
	return func() {}, true
}

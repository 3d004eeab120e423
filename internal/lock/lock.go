// Package lock serializes work on a key across processes.
// Without Redis every call goes through the in-process Noop locker and
// correctness relies on the conditional UPDATE in the usage repository.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"crm_backend/internal/config"
	"crm_backend/internal/logger"
)

var ErrNotAcquired = errors.New("lock not acquired")

// Unlock releases a held lock. Safe to call once.
type Unlock func()

type Locker interface {
	Obtain(ctx context.Context, key string) (Unlock, error)
}

// NewRedisClient returns nil when redis.addr is not configured.
func NewRedisClient(cfg *config.Config) *redis.Client {
	if cfg == nil || cfg.Redis.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// New picks redsync when a client is given, Noop otherwise.
func New(client *redis.Client, expiry time.Duration, tries int) Locker {
	if client == nil {
		return Noop{}
	}
	return NewRedisLocker(client, expiry, tries)
}

type RedisLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
	tries  int
}

func NewRedisLocker(client *redis.Client, expiry time.Duration, tries int) *RedisLocker {
	if expiry <= 0 {
		expiry = 5 * time.Second
	}
	if tries <= 0 {
		tries = 32
	}
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		expiry: expiry,
		tries:  tries,
	}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string) (Unlock, error) {
	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(l.tries),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, errors.Join(ErrNotAcquired, err)
	}

	return func() {
		// ctx запроса может быть уже отменен, снимаем лок отдельным контекстом
		unlockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := mutex.UnlockContext(unlockCtx); err != nil {
			logger.Warn("failed to release lock", "key", key, "error", err.Error())
		}
	}, nil
}

// Noop never blocks.
type Noop struct{}

func (Noop) Obtain(context.Context, string) (Unlock, error) {
	return func() {}, nil
}

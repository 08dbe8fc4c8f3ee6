package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/facinv/closing-engine/inventory"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTTL        = 30 * time.Second
	defaultRetryEvery = 100 * time.Millisecond
)

// Redis holds keys in Redis so that every server process sees them.
// The TTL bounds how long a crashed holder can block a company.
type Redis struct {
	client  *redislock.Client
	ttl     time.Duration
	retries int
	prefix  string
	logger  logrus.FieldLogger
}

var _ inventory.Locker = (*Redis)(nil)

// NewRedis obtains keys with linear retries until ttl has elapsed.
func NewRedis(client redis.UniversalClient, ttl time.Duration, logger logrus.FieldLogger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = inventory.NopLogger()
	}
	return &Redis{
		client:  redislock.New(client),
		ttl:     ttl,
		retries: int(ttl / defaultRetryEvery),
		prefix:  "lock:",
		logger:  logger,
	}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := r.prefix + key
	l, err := r.client.Obtain(ctx, lockKey, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(defaultRetryEvery), r.retries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		inventory.LogError(r.logger, "lock", "Lock", "could not obtain lock", lockKey, err)
		return nil, fmt.Errorf("lock %s: %w", key, inventory.ErrConcurrentModification)
	}
	if err != nil {
		inventory.LogError(r.logger, "lock", "Lock", "error obtaining lock", lockKey, err)
		return nil, err
	}

	return func() {
		// The request context may already be cancelled here.
		if err := l.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			r.logger.WithFields(logrus.Fields{"key": lockKey}).Warn("failed to release lock: " + err.Error())
		}
	}, nil
}

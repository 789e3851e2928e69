package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const passLockKey = "gema:anchor:pass_lock"

// Lua compare-and-delete so one relayer cannot release another's lock.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// PassLock guards against two overlapping passes sharing the signing account.
// The scheduler owns mutual exclusion per the deployment contract; this lock
// is defense in depth for misconfigured schedulers.
type PassLock struct {
	client *redis.Client
	ttl    time.Duration
	token  string
	logger zerolog.Logger
}

// NewPassLock builds a lock over the given Redis client.
func NewPassLock(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *PassLock {
	return &PassLock{
		client: client,
		ttl:    ttl,
		token:  uuid.NewString(),
		logger: logger.With().Str("component", "pass_lock").Logger(),
	}
}

// Acquire attempts to take the lock. It returns false when another pass
// already holds it; the caller should treat that as a successful no-op.
func (l *PassLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, passLockKey, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire pass lock: %w", err)
	}

	return ok, nil
}

// Release frees the lock if this instance still holds it. The TTL reclaims
// the lock anyway if the process dies before releasing.
func (l *PassLock) Release(ctx context.Context) {
	if err := releaseScript.Run(ctx, l.client, []string{passLockKey}, l.token).Err(); err != nil {
		l.logger.Warn().Err(err).Msg("failed to release pass lock, ttl will reclaim it")
	}
}

package limiters

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradekart/marketauth/internal/keys"
)

// VerifyConfig holds the verification-failure thresholds.
type VerifyConfig struct {
	MaxFailures   int
	FailureWindow time.Duration
	LockTTL       time.Duration
}

// VerifyLimiter counts failed OTP verifications for an (email, purpose)
// pair and triggers a time-boxed lock when the threshold is reached.
type VerifyLimiter struct {
	redis  redis.UniversalClient
	config VerifyConfig
}

// NewVerifyLimiter creates a [VerifyLimiter] backed by the given Redis client.
func NewVerifyLimiter(redisClient redis.UniversalClient, cfg VerifyConfig) *VerifyLimiter {
	return &VerifyLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Check rejects with [LockedError] while a verification lock is active.
func (l *VerifyLimiter) Check(ctx context.Context, p keys.Purpose, email string) error {
	d, err := l.redis.PTTL(ctx, keys.Lock(p, email)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if d > 0 {
		return &LockedError{RetryAfter: d}
	}
	return nil
}

// RecordFailure increments the failure counter and returns the attempts
// remaining before lockout. Reaching the threshold sets the lock, clears
// the counter, and returns a [LockedError].
func (l *VerifyLimiter) RecordFailure(ctx context.Context, p keys.Purpose, email string) (int, error) {
	counterKey := keys.FailCount(p, email)

	count, err := l.redis.Incr(ctx, counterKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, counterKey, l.config.FailureWindow).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	if count >= int64(l.config.MaxFailures) {
		if err := l.redis.Set(ctx, keys.Lock(p, email), "1", l.config.LockTTL).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if err := l.redis.Del(ctx, counterKey).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return 0, &LockedError{RetryAfter: l.config.LockTTL}
	}

	return l.config.MaxFailures - int(count), nil
}

// Clear removes the failure counter and lock for one email.
func (l *VerifyLimiter) Clear(ctx context.Context, p keys.Purpose, email string) error {
	err := l.redis.Del(ctx, keys.FailCount(p, email), keys.Lock(p, email)).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

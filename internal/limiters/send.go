package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradekart/marketauth/internal/keys"
)

// SendConfig holds the send-path thresholds.
type SendConfig struct {
	Cooldown     time.Duration
	MaxPerEmail  int
	EmailWindow  time.Duration
	EmailLockTTL time.Duration
	MaxPerIP     int
	IPWindow     time.Duration
	IPLockTTL    time.Duration
}

// SendLimiter enforces cooldowns, hourly send caps, and lockouts for OTP
// sends, per email and per client IP.
type SendLimiter struct {
	redis  redis.UniversalClient
	config SendConfig
}

// NewSendLimiter creates a [SendLimiter] backed by the given Redis client.
func NewSendLimiter(redisClient redis.UniversalClient, cfg SendConfig) *SendLimiter {
	return &SendLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

// SendStatus is a read-only snapshot of the send-path state for one email.
type SendStatus struct {
	Cooldown time.Duration
	Lock     time.Duration
	Sent     int
}

// CheckAndReserve evaluates, in order: lock markers, the cooldown marker,
// and the send counters. On pass it increments the counters and arms the
// cooldown. Crossing a counter cap sets a lock marker before rejecting.
// ip may be empty, in which case IP throttling is skipped.
func (l *SendLimiter) CheckAndReserve(ctx context.Context, p keys.Purpose, email, ip string) error {
	if d, err := l.remaining(ctx, keys.Lock(p, email)); err != nil {
		return err
	} else if d > 0 {
		return &LockedError{RetryAfter: d}
	}
	if ip != "" {
		if d, err := l.remaining(ctx, keys.IPLock(ip)); err != nil {
			return err
		} else if d > 0 {
			return &LockedError{RetryAfter: d}
		}
	}

	if d, err := l.remaining(ctx, keys.Cooldown(p, email)); err != nil {
		return err
	} else if d > 0 {
		return &CooldownError{RetryAfter: d}
	}

	if err := l.checkCap(ctx, keys.SentCount(p, email), l.config.MaxPerEmail, keys.Lock(p, email), l.config.EmailLockTTL); err != nil {
		return err
	}
	if ip != "" {
		if err := l.checkCap(ctx, keys.IPSentCount(ip), l.config.MaxPerIP, keys.IPLock(ip), l.config.IPLockTTL); err != nil {
			return err
		}
	}

	// Reserve. The post-increment cap check closes the race where two
	// concurrent requests both read a counter one below the cap.
	if err := l.reserve(ctx, keys.SentCount(p, email), l.config.EmailWindow, l.config.MaxPerEmail, keys.Lock(p, email), l.config.EmailLockTTL); err != nil {
		return err
	}
	if ip != "" {
		if err := l.reserve(ctx, keys.IPSentCount(ip), l.config.IPWindow, l.config.MaxPerIP, keys.IPLock(ip), l.config.IPLockTTL); err != nil {
			return err
		}
	}

	if err := l.redis.Set(ctx, keys.Cooldown(p, email), "1", l.config.Cooldown).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// ClearEmailState removes the cooldown, counters, and lock for one email.
// Called after a successful verification. IP state is left untouched.
func (l *SendLimiter) ClearEmailState(ctx context.Context, p keys.Purpose, email string) error {
	err := l.redis.Del(ctx,
		keys.Cooldown(p, email),
		keys.SentCount(p, email),
		keys.FailCount(p, email),
		keys.Lock(p, email),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Status reads the current send-path state for one email without mutating it.
func (l *SendLimiter) Status(ctx context.Context, p keys.Purpose, email string) (SendStatus, error) {
	var status SendStatus

	cooldown, err := l.remaining(ctx, keys.Cooldown(p, email))
	if err != nil {
		return status, err
	}
	lock, err := l.remaining(ctx, keys.Lock(p, email))
	if err != nil {
		return status, err
	}

	sent, err := l.redis.Get(ctx, keys.SentCount(p, email)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return status, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	status.Cooldown = cooldown
	status.Lock = lock
	status.Sent = int(sent)
	return status, nil
}

func (l *SendLimiter) checkCap(ctx context.Context, counterKey string, max int, lockKey string, lockTTL time.Duration) error {
	count, err := l.redis.Get(ctx, counterKey).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if count >= int64(max) {
		return l.lock(ctx, lockKey, lockTTL)
	}
	return nil
}

func (l *SendLimiter) reserve(ctx context.Context, counterKey string, window time.Duration, max int, lockKey string, lockTTL time.Duration) error {
	count, err := l.redis.Incr(ctx, counterKey).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, counterKey, window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	if count > int64(max) {
		return l.lock(ctx, lockKey, lockTTL)
	}
	return nil
}

func (l *SendLimiter) lock(ctx context.Context, lockKey string, ttl time.Duration) error {
	if err := l.redis.Set(ctx, lockKey, "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &LockedError{RetryAfter: ttl}
}

// remaining returns the TTL left on a marker key, or zero when absent.
func (l *SendLimiter) remaining(ctx context.Context, key string) (time.Duration, error) {
	d, err := l.redis.PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

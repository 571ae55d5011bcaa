package marketauth

import (
	"context"
	"fmt"
)

// GetCooldownStatus reports the send-path state for one email and purpose:
// remaining cooldown, remaining lock, and sends counted in the current
// window. Side-effect-free and safe to poll; reads are served from a
// short-TTL local cache, so values may lag mutations by up to the
// configured cache TTL.
func (e *Engine) GetCooldownStatus(ctx context.Context, p Purpose, email string) (CooldownStatus, error) {
	email = normalizeEmail(email)
	key := statusCacheKey(p, email)

	if status, ok := e.statusCache.Get(key); ok {
		return status, nil
	}

	raw, err := e.sendLimiter.Status(ctx, p, email)
	if err != nil {
		e.metrics.Inc(MetricStoreUnavailable)
		return CooldownStatus{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	status := CooldownStatus{
		CooldownRemaining: raw.Cooldown,
		LockRemaining:     raw.Lock,
		SentThisWindow:    raw.Sent,
	}
	e.statusCache.Set(key, status)
	return status, nil
}

package limiters

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable indicates the limiter backend is unreachable. Callers must
// treat this as fatal for the request; rate limiting is never bypassed.
var ErrUnavailable = errors.New("limiter backend unavailable")

// LockedError rejects an attempt because a lock marker is present or was
// just set by crossing an attempt threshold.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("locked for %s", e.RetryAfter.Round(time.Second))
}

// CooldownError rejects a send because the inter-send cooldown is active.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active for %s", e.RetryAfter.Round(time.Second))
}

package marketauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/tradekart/marketauth/internal/stores"
)

// Refresh rotates a refresh token: the presented token's stored record is
// atomically replaced by a new one, and a fresh pair is issued from
// freshly-read user state so role or verification changes take effect
// immediately. Rotation is single-use; replaying a rotated token fails
// with [ErrTokenInvalid].
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		return nil, mapTokenError(err)
	}

	user, err := e.users.FindByID(ctx, claims.UID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metrics.Inc(MetricRefreshFailure)
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("user store: %w", err)
	}

	pair, rec, newHash, err := e.mintPair(user)
	if err != nil {
		return nil, err
	}

	err = e.refreshTokens.Rotate(ctx, user.ID, refreshTokenHash(refreshToken), newHash, rec, e.config.JWT.RefreshTTL)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrRefreshNotFound):
			e.metrics.Inc(MetricRefreshReplayDetected)
			e.emitAudit(ctx, EventRefresh, user.ID, user.Email, false, ErrTokenInvalid, map[string]string{"reason": "replay"})
			return nil, ErrTokenInvalid
		case errors.Is(err, stores.ErrRefreshUserMismatch):
			e.metrics.Inc(MetricRefreshFailure)
			e.emitAudit(ctx, EventRefresh, user.ID, user.Email, false, ErrTokenInvalid, map[string]string{"reason": "user_mismatch"})
			return nil, ErrTokenInvalid
		default:
			e.metrics.Inc(MetricStoreUnavailable)
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	e.metrics.Inc(MetricRefreshSuccess)
	e.emitAudit(ctx, EventRefresh, user.ID, user.Email, true, nil, nil)
	return pair, nil
}

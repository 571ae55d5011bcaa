package marketauth

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/tradekart/marketauth/internal"
	"github.com/tradekart/marketauth/internal/stores"
	"github.com/tradekart/marketauth/jwt"
)

// Login verifies credentials and issues a token pair. An unknown email and
// a wrong password are deliberately indistinguishable. Each login replaces
// the user's refresh records, so only the newest session can rotate.
func (e *Engine) Login(ctx context.Context, email, pass string) (*TokenPair, error) {
	email = normalizeEmail(email)

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metrics.Inc(MetricLoginFailure)
			e.emitAudit(ctx, EventLogin, "", email, false, ErrInvalidCredentials, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("user store: %w", err)
	}

	ok, err := e.hasher.Verify(pass, user.PasswordHash)
	if err != nil || !ok {
		e.metrics.Inc(MetricLoginFailure)
		e.emitAudit(ctx, EventLogin, user.ID, email, false, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	pair, rec, newHash, err := e.mintPair(user)
	if err != nil {
		return nil, err
	}

	// Single active session: discard any prior refresh records first.
	if err := e.refreshTokens.DeleteAllForUser(ctx, user.ID); err != nil {
		e.metrics.Inc(MetricStoreUnavailable)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.refreshTokens.Save(ctx, newHash, rec, e.config.JWT.RefreshTTL); err != nil {
		e.metrics.Inc(MetricStoreUnavailable)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.emitAudit(ctx, EventLogin, user.ID, email, true, nil, nil)
	return pair, nil
}

// Logout deletes the refresh record behind the presented token. The record
// is removed outright, not marked revoked. Deleting an already-rotated or
// expired record is a no-op.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return mapTokenError(err)
	}

	if err := e.refreshTokens.Delete(ctx, claims.UID, refreshTokenHash(refreshToken)); err != nil {
		e.metrics.Inc(MetricStoreUnavailable)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricLogout)
	e.emitAudit(ctx, EventLogout, claims.UID, "", true, nil, nil)
	return nil
}

// VerifyAccess checks an access token's signature and lifetime and returns
// its claims. Purely computational; no state-store round trip.
func (e *Engine) VerifyAccess(accessToken string) (*jwt.AccessClaims, error) {
	claims, err := e.tokens.ParseAccess(accessToken)
	if err != nil {
		return nil, mapTokenError(err)
	}
	return claims, nil
}

// mintPair builds an access/refresh pair from fresh user state together
// with the refresh record to persist and the hash it is keyed under.
func (e *Engine) mintPair(user *UserRecord) (*TokenPair, stores.RefreshRecord, string, error) {
	now := time.Now()

	access, err := e.tokens.CreateAccess(jwt.AccessClaims{
		UID:             user.ID,
		Email:           user.Email,
		Name:            user.Name,
		Role:            user.Role,
		ProfileImageURL: user.ProfileImageURL,
		IsVerified:      user.IsVerified,
		CreatedAt:       user.CreatedAt.Unix(),
	})
	if err != nil {
		return nil, stores.RefreshRecord{}, "", fmt.Errorf("sign access token: %w", err)
	}

	refresh, jti, err := e.tokens.CreateRefresh(user.ID)
	if err != nil {
		return nil, stores.RefreshRecord{}, "", fmt.Errorf("sign refresh token: %w", err)
	}

	rec := stores.RefreshRecord{
		ID:        jti,
		UserID:    user.ID,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(e.config.JWT.RefreshTTL).Unix(),
	}
	pair := &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(e.config.JWT.AccessTTL),
		RefreshExpiresAt: now.Add(e.config.JWT.RefreshTTL),
	}
	return pair, rec, refreshTokenHash(refresh), nil
}

func refreshTokenHash(token string) string {
	sum := internal.HashToken(token)
	return hex.EncodeToString(sum[:])
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return ErrTokenExpired
	default:
		return ErrTokenInvalid
	}
}

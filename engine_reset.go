package marketauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/tradekart/marketauth/internal/keys"
)

// ForgotPassword starts the password-reset flow. The response never
// reveals whether the email is registered: unknown emails go through the
// same rate-limit accounting and code generation, minus the delivery.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := e.validate.Var(email, "required,email"); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if err := e.reserveSend(ctx, PurposePasswordReset, email); err != nil {
		e.emitAudit(ctx, EventForgotPassword, "", email, false, err, nil)
		return err
	}

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Burn the same work an existing account would, then report
			// success without sending anything.
			if _, genErr := generateCode(e.config.OTP.Digits); genErr != nil {
				return fmt.Errorf("generate code: %w", genErr)
			}
			e.metrics.Inc(MetricResetRequested)
			e.emitAudit(ctx, EventForgotPassword, "", email, true, nil, map[string]string{"registered": "false"})
			return nil
		}
		return fmt.Errorf("user store: %w", err)
	}

	if err := e.issueAndDeliver(ctx, PurposePasswordReset, email); err != nil {
		e.emitAudit(ctx, EventForgotPassword, user.ID, email, false, err, nil)
		return err
	}

	e.metrics.Inc(MetricResetRequested)
	e.emitAudit(ctx, EventForgotPassword, user.ID, email, true, nil, nil)
	return nil
}

// VerifyReset consumes a reset code and arms a short-lived single-use
// marker that authorizes exactly one ResetPassword call.
func (e *Engine) VerifyReset(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)

	if err := e.consumeOTP(ctx, keys.PasswordReset, email, code); err != nil {
		e.emitAudit(ctx, EventVerifyReset, "", email, false, err, nil)
		return err
	}

	e.clearOTPState(ctx, keys.PasswordReset, email)

	if err := e.resetMarkers.Authorize(ctx, email, e.config.Reset.MarkerTTL); err != nil {
		e.metrics.Inc(MetricStoreUnavailable)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, EventVerifyReset, "", email, true, nil, nil)
	return nil
}

// ResetPassword updates the password for an email whose reset marker is
// armed, consuming the marker, and revokes every refresh record the user
// holds so stolen sessions die with the old password.
func (e *Engine) ResetPassword(ctx context.Context, email, newPassword string) error {
	email = normalizeEmail(email)
	if err := e.validate.Var(newPassword, "required,min=8,max=128"); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	authorized, err := e.resetMarkers.Consume(ctx, email)
	if err != nil {
		e.metrics.Inc(MetricStoreUnavailable)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !authorized {
		e.emitAudit(ctx, EventResetPassword, "", email, false, ErrResetNotAuthorized, nil)
		return ErrResetNotAuthorized
	}

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrNotRegistered
		}
		return fmt.Errorf("user store: %w", err)
	}

	passwordHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := e.users.UpdatePassword(ctx, user.ID, passwordHash); err != nil {
		return fmt.Errorf("user store: %w", err)
	}

	if err := e.refreshTokens.DeleteAllForUser(ctx, user.ID); err != nil {
		e.metrics.Inc(MetricStoreUnavailable)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricResetCompleted)
	e.emitAudit(ctx, EventResetPassword, user.ID, email, true, nil, nil)
	return nil
}

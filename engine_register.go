package marketauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tradekart/marketauth/internal/keys"
	"github.com/tradekart/marketauth/internal/stores"
)

// Register starts a two-phase registration. The signup data is buffered,
// not persisted; a durable user appears only after VerifyRegistration
// proves control of the email. Registering again before verification
// replaces the buffer and issues a fresh code, subject to the send limits.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) error {
	req.Email = normalizeEmail(req.Email)
	if err := e.validateStruct(req); err != nil {
		return err
	}

	email := req.Email
	role := req.Role
	if role == "" {
		role = e.config.Registration.DefaultRole
	}
	if !roleAllowed(e.config.Registration.AllowedRoles, role) {
		return fmt.Errorf("%w: role %q not allowed", ErrInvalidInput, role)
	}

	if _, err := e.users.FindByEmail(ctx, email); err == nil {
		e.metrics.Inc(MetricRegisterDuplicate)
		e.emitAudit(ctx, EventRegister, "", email, false, ErrAlreadyExists, nil)
		return ErrAlreadyExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("user store: %w", err)
	}

	if err := e.reserveSend(ctx, PurposeVerification, email); err != nil {
		e.emitAudit(ctx, EventRegister, "", email, false, err, nil)
		return err
	}

	passwordHash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	reg := stores.PendingRegistration{
		Email:           email,
		Name:            req.Name,
		PasswordHash:    passwordHash,
		Role:            role,
		Phone:           req.Phone,
		ProfileImageURL: req.ProfileImageURL,
		CreatedAt:       time.Now().Unix(),
	}
	if err := e.pending.Stash(ctx, reg, e.config.Registration.PendingTTL); err != nil {
		e.metrics.Inc(MetricStoreUnavailable)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.issueAndDeliver(ctx, PurposeVerification, email); err != nil {
		e.emitAudit(ctx, EventRegister, "", email, false, err, nil)
		return err
	}

	e.metrics.Inc(MetricRegisterAccepted)
	e.emitAudit(ctx, EventRegister, "", email, true, nil, map[string]string{"role": role})
	return nil
}

// ResendVerification issues a fresh verification code for a buffered
// registration, invalidating the previous code. The send limits apply.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := e.validate.Var(email, "required,email"); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if _, err := e.users.FindByEmail(ctx, email); err == nil {
		return ErrAlreadyVerified
	} else if !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("user store: %w", err)
	}

	if _, err := e.pending.Fetch(ctx, email); err != nil {
		if errors.Is(err, stores.ErrPendingNotFound) {
			return ErrRegistrationExpired
		}
		e.metrics.Inc(MetricStoreUnavailable)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.reserveSend(ctx, PurposeVerification, email); err != nil {
		e.emitAudit(ctx, EventResendVerification, "", email, false, err, nil)
		return err
	}
	if err := e.issueAndDeliver(ctx, PurposeVerification, email); err != nil {
		e.emitAudit(ctx, EventResendVerification, "", email, false, err, nil)
		return err
	}

	e.emitAudit(ctx, EventResendVerification, "", email, true, nil, nil)
	return nil
}

// VerifyRegistration consumes a verification code and, on success,
// promotes the buffered registration into a durable verified user. Durable
// absence is re-checked immediately before the insert to close the race
// between code issuance and verification; the store's unique constraint is
// the final backstop.
func (e *Engine) VerifyRegistration(ctx context.Context, email, code string) (*UserRecord, error) {
	email = normalizeEmail(email)

	if err := e.consumeOTP(ctx, keys.Verification, email, code); err != nil {
		e.emitAudit(ctx, EventVerifyRegistration, "", email, false, err, nil)
		return nil, err
	}

	reg, err := e.pending.Fetch(ctx, email)
	if err != nil {
		if errors.Is(err, stores.ErrPendingNotFound) {
			return nil, ErrRegistrationExpired
		}
		e.metrics.Inc(MetricStoreUnavailable)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if _, err := e.users.FindByEmail(ctx, email); err == nil {
		e.cleanupRegistration(ctx, email)
		return nil, ErrAlreadyVerified
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("user store: %w", err)
	}

	user, err := e.users.Create(ctx, CreateUserInput{
		Email:           reg.Email,
		Name:            reg.Name,
		PasswordHash:    reg.PasswordHash,
		Role:            reg.Role,
		Phone:           reg.Phone,
		ProfileImageURL: reg.ProfileImageURL,
		IsVerified:      true,
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			e.cleanupRegistration(ctx, email)
			return nil, ErrAlreadyVerified
		}
		return nil, fmt.Errorf("user store: %w", err)
	}

	e.cleanupRegistration(ctx, email)
	e.metrics.Inc(MetricVerifySuccess)
	e.emitAudit(ctx, EventVerifyRegistration, user.ID, email, true, nil, nil)
	return user, nil
}

func (e *Engine) cleanupRegistration(ctx context.Context, email string) {
	e.clearOTPState(ctx, keys.Verification, email)
	if err := e.pending.Clear(ctx, email); err != nil {
		e.logger.Warn("clear pending registration failed", zap.String("email", email), zap.Error(err))
	}
}

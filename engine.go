package marketauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tradekart/marketauth/internal"
	"github.com/tradekart/marketauth/internal/audit"
	"github.com/tradekart/marketauth/internal/cache"
	"github.com/tradekart/marketauth/internal/keys"
	"github.com/tradekart/marketauth/internal/limiters"
	"github.com/tradekart/marketauth/internal/stores"
	"github.com/tradekart/marketauth/jwt"
	"github.com/tradekart/marketauth/notify"
	"github.com/tradekart/marketauth/password"
)

// Engine is the auth orchestrator. It composes the rate limiters, OTP
// lifecycle, pending-registration buffer, and token service into the
// register, verify, login, refresh, and reset flows. Construct one through
// the [Builder]; all methods are safe for concurrent use.
type Engine struct {
	config Config

	redis    redis.UniversalClient
	users    UserStore
	notifier notify.Notifier

	hasher *password.Hasher
	tokens *jwt.Manager

	sendLimiter   *limiters.SendLimiter
	verifyLimiter *limiters.VerifyLimiter
	otps          *stores.OTPStore
	pending       *stores.PendingStore
	resetMarkers  *stores.ResetMarkerStore
	refreshTokens *stores.RefreshStore

	audit       *audit.Dispatcher
	metrics     *Metrics
	validate    *validator.Validate
	statusCache *cache.Cache[CooldownStatus]
	logger      *zap.Logger
}

// Close drains the audit dispatcher. The Redis client and user store stay
// open; they belong to the caller.
func (e *Engine) Close() {
	e.audit.Close()
}

// Metrics exposes the engine's counters.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// AuditDropped reports how many audit events were discarded under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

func (e *Engine) emitAudit(ctx context.Context, eventType, userID, email string, success bool, opErr error, metadata map[string]string) {
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}
	e.audit.Emit(ctx, event)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (e *Engine) validateStruct(v any) error {
	if err := e.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// reserveSend runs the full send-side gate for one OTP issue and maps the
// limiter's rejections into the public taxonomy. Counter-cap rejections
// surface as locks because the limiter has already armed the lock marker.
func (e *Engine) reserveSend(ctx context.Context, p Purpose, email string) error {
	err := e.sendLimiter.CheckAndReserve(ctx, p, email, clientIPFromContext(ctx))
	if err == nil {
		e.statusCache.Invalidate(statusCacheKey(p, email))
		return nil
	}

	var cooldownErr *limiters.CooldownError
	if errors.As(err, &cooldownErr) {
		e.metrics.Inc(MetricOTPSendRateLimited)
		return &RateLimitError{RetryAfter: cooldownErr.RetryAfter, Scope: "email"}
	}
	var lockedErr *limiters.LockedError
	if errors.As(err, &lockedErr) {
		e.metrics.Inc(MetricOTPSendLocked)
		return &LockError{RetryAfter: lockedErr.RetryAfter}
	}
	e.metrics.Inc(MetricStoreUnavailable)
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// issueAndDeliver generates a fresh code, persists its digest, and hands
// the composed message to the notifier. Callers must have reserved the
// send first.
func (e *Engine) issueAndDeliver(ctx context.Context, p Purpose, email string) error {
	code, err := generateCode(e.config.OTP.Digits)
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	if err := e.otps.Save(ctx, p, email, stores.DigestFor(code), e.config.OTP.TTL); err != nil {
		e.metrics.Inc(MetricStoreUnavailable)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	msg := composeOTPMessage(p, email, code, e.config.OTP.TTL)
	if err := e.notifier.Send(ctx, msg); err != nil {
		e.metrics.Inc(MetricDeliveryFailure)
		e.logger.Warn("otp delivery failed",
			zap.String("purpose", p.String()),
			zap.String("email", email),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	e.metrics.Inc(MetricOTPSent)
	return nil
}

// consumeOTP verifies a candidate code against the active record. On a
// mismatch it charges the verify-failure limiter and reports the remaining
// attempts; exhausting them arms the verify lock.
func (e *Engine) consumeOTP(ctx context.Context, p Purpose, email, candidate string) error {
	if err := e.verifyLimiter.Check(ctx, p, email); err != nil {
		var lockedErr *limiters.LockedError
		if errors.As(err, &lockedErr) {
			e.metrics.Inc(MetricVerifyLocked)
			return &LockError{RetryAfter: lockedErr.RetryAfter}
		}
		e.metrics.Inc(MetricStoreUnavailable)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	err := e.otps.Consume(ctx, p, email, stores.DigestFor(candidate))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrOTPMismatch):
		remaining, failErr := e.verifyLimiter.RecordFailure(ctx, p, email)
		if failErr != nil {
			var lockedErr *limiters.LockedError
			if errors.As(failErr, &lockedErr) {
				e.metrics.Inc(MetricVerifyLocked)
				return &LockError{RetryAfter: lockedErr.RetryAfter}
			}
			e.metrics.Inc(MetricStoreUnavailable)
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, failErr)
		}
		e.metrics.Inc(MetricVerifyFailure)
		return &OTPInvalidError{Remaining: remaining}
	case errors.Is(err, stores.ErrOTPNotFound):
		return ErrOTPExpiredOrNotFound
	default:
		e.metrics.Inc(MetricStoreUnavailable)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// clearOTPState wipes the limiter and code state for one identity+purpose
// after a successful verification.
func (e *Engine) clearOTPState(ctx context.Context, p Purpose, email string) {
	if err := e.verifyLimiter.Clear(ctx, p, email); err != nil {
		e.logger.Warn("clear verify state failed", zap.String("email", email), zap.Error(err))
	}
	if err := e.sendLimiter.ClearEmailState(ctx, p, email); err != nil {
		e.logger.Warn("clear send state failed", zap.String("email", email), zap.Error(err))
	}
	if err := e.otps.Drop(ctx, p, email); err != nil {
		e.logger.Warn("drop otp failed", zap.String("email", email), zap.Error(err))
	}
	e.statusCache.Invalidate(statusCacheKey(p, email))
}

func generateCode(digits int) (string, error) {
	return internal.Code(digits)
}

func statusCacheKey(p Purpose, email string) string {
	return p.String() + ":" + email
}

func composeOTPMessage(p Purpose, email, code string, ttl time.Duration) notify.Message {
	minutes := int(ttl.Minutes())
	switch p {
	case keys.PasswordReset:
		return notify.Message{
			To:      email,
			Subject: "Your TradeKart password reset code",
			Body: fmt.Sprintf(
				"Use code %s to reset your TradeKart password. It expires in %d minutes. If you did not request this, ignore this message.",
				code, minutes,
			),
		}
	default:
		return notify.Message{
			To:      email,
			Subject: "Verify your TradeKart account",
			Body: fmt.Sprintf(
				"Your TradeKart verification code is %s. It expires in %d minutes.",
				code, minutes,
			),
		}
	}
}

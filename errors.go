package marketauth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAlreadyExists is returned by Register when a durable user already
	// holds the email.
	ErrAlreadyExists = errors.New("account already exists")
	// ErrNotRegistered is returned when an operation requires a durable user
	// that does not exist.
	ErrNotRegistered = errors.New("account not registered")
	// ErrRegistrationExpired is returned when no pending registration is
	// buffered for the email; the caller must restart registration.
	ErrRegistrationExpired = errors.New("registration session expired")
	// ErrAlreadyVerified is returned when a verification operation targets
	// an email that already has a durable user.
	ErrAlreadyVerified = errors.New("account already verified")
	// ErrOTPExpiredOrNotFound is returned when no active code exists for the
	// identity. Callers must render it as "request a new code", never as
	// "wrong code".
	ErrOTPExpiredOrNotFound = errors.New("code expired or not found")
	// ErrOTPInvalid is the base of [OTPInvalidError].
	ErrOTPInvalid = errors.New("invalid code")
	// ErrRateLimited is the base of [RateLimitError].
	ErrRateLimited = errors.New("rate limited")
	// ErrLocked is the base of [LockError].
	ErrLocked = errors.New("operation locked")
	// ErrInvalidCredentials is returned by Login for a wrong password or an
	// unknown email; the two are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenExpired indicates a token whose signature verified but whose
	// lifetime has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid indicates a token that failed signature or claim
	// validation, or a refresh token whose stored record is gone.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrResetNotAuthorized is returned by ResetPassword when no reset
	// verification marker is armed for the email.
	ErrResetNotAuthorized = errors.New("password reset not authorized")
	// ErrInvalidInput is the base for request validation failures.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStoreUnavailable indicates the state store failed; rate limiting is
	// never silently bypassed on store failure.
	ErrStoreUnavailable = errors.New("state store unavailable")
	// ErrDeliveryFailed indicates every notification strategy failed. The
	// attempted send is already accounted against the rate limits.
	ErrDeliveryFailed = errors.New("notification delivery failed")
	// ErrUserNotFound is the sentinel a [UserStore] returns on a miss.
	ErrUserNotFound = errors.New("user not found")
)

// RateLimitError reports a rejected attempt with the remaining wait and the
// scope that triggered it. It matches [ErrRateLimited] under [errors.Is].
type RateLimitError struct {
	RetryAfter time.Duration
	Scope      string // "email" or "ip"
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (%s): retry after %s", e.Scope, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// LockError reports a time-boxed lockout. It matches [ErrLocked] under
// [errors.Is].
type LockError struct {
	RetryAfter time.Duration
}

func (e *LockError) Error() string {
	return fmt.Sprintf("operation locked: retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *LockError) Is(target error) bool { return target == ErrLocked }

// OTPInvalidError reports a mismatched code and how many attempts remain
// before the identity is locked. It matches [ErrOTPInvalid] under
// [errors.Is].
type OTPInvalidError struct {
	Remaining int
}

func (e *OTPInvalidError) Error() string {
	return fmt.Sprintf("invalid code: %d attempts remaining", e.Remaining)
}

func (e *OTPInvalidError) Is(target error) bool { return target == ErrOTPInvalid }

package marketauth

import (
	"context"
	"time"

	"github.com/tradekart/marketauth/internal/keys"
)

// Purpose distinguishes the two independent OTP flows. Each purpose keeps
// its own code, counters, and locks, so a user can have a verification code
// and a reset code in flight without mutual invalidation.
type Purpose = keys.Purpose

const (
	PurposeVerification  = keys.Verification
	PurposePasswordReset = keys.PasswordReset
)

// UserRecord is the durable user row as seen by this subsystem.
type UserRecord struct {
	ID              string
	Email           string
	Name            string
	PasswordHash    string
	Role            string
	Phone           string
	ProfileImageURL string
	IsVerified      bool
	CreatedAt       time.Time
}

// CreateUserInput carries a verified registration into the durable store.
type CreateUserInput struct {
	Email           string
	Name            string
	PasswordHash    string
	Role            string
	Phone           string
	ProfileImageURL string
	IsVerified      bool
}

// UserStore is the durable user storage the host application supplies.
//
// FindByEmail returns [ErrUserNotFound] on a miss. Create must enforce
// email uniqueness and return [ErrAlreadyExists] on a duplicate; the
// store's unique constraint is the final backstop behind the engine's own
// existence re-check. UpdatePassword returns [ErrUserNotFound] when the id
// does not exist.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*UserRecord, error)
	FindByID(ctx context.Context, id string) (*UserRecord, error)
	Create(ctx context.Context, input CreateUserInput) (*UserRecord, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// RegisterRequest is the payload accepted by Register.
type RegisterRequest struct {
	Email           string `validate:"required,email,max=254"`
	Password        string `validate:"required,min=8,max=128"`
	Name            string `validate:"required,min=2,max=100"`
	Role            string `validate:"omitempty,max=32"`
	Phone           string `validate:"omitempty,e164"`
	ProfileImageURL string `validate:"omitempty,url,max=512"`
}

// TokenPair is the result of a successful login or rotation.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// CooldownStatus is the side-effect-free view of an email's send state,
// safe to poll. Values may lag mutations by up to the configured status
// cache TTL.
type CooldownStatus struct {
	CooldownRemaining time.Duration
	LockRemaining     time.Duration
	SentThisWindow    int
}

package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradekart/marketauth/internal/keys"
)

var (
	// ErrPendingNotFound indicates no registration is buffered for the email,
	// either because none was started or because the buffer expired.
	ErrPendingNotFound = errors.New("pending registration not found")
	// ErrPendingUnavailable indicates the buffer backend is unreachable.
	ErrPendingUnavailable = errors.New("pending registration backend unavailable")
)

// PendingRegistration is the unpromoted signup data held until email
// ownership is proven. Only the password hash is ever buffered.
type PendingRegistration struct {
	Email           string `json:"email"`
	Name            string `json:"name"`
	PasswordHash    string `json:"password_hash"`
	Role            string `json:"role"`
	Phone           string `json:"phone,omitempty"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
	CreatedAt       int64  `json:"created_at"`
}

// PendingStore buffers registrations keyed by email with a bounded lifetime.
type PendingStore struct {
	redis redis.UniversalClient
}

// NewPendingStore creates a [PendingStore] backed by the given Redis client.
func NewPendingStore(redisClient redis.UniversalClient) *PendingStore {
	return &PendingStore{redis: redisClient}
}

// Stash writes the registration, replacing any previous buffer for the
// email and restarting its lifetime.
func (s *PendingStore) Stash(ctx context.Context, reg PendingRegistration, ttl time.Duration) error {
	encoded, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}
	if err := s.redis.Set(ctx, keys.Pending(reg.Email), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}
	return nil
}

// Fetch returns the buffered registration for the email.
func (s *PendingStore) Fetch(ctx context.Context, email string) (PendingRegistration, error) {
	var reg PendingRegistration

	data, err := s.redis.Get(ctx, keys.Pending(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return reg, ErrPendingNotFound
		}
		return reg, fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}

	if err := json.Unmarshal(data, &reg); err != nil {
		return reg, fmt.Errorf("%w: corrupt record: %v", ErrPendingUnavailable, err)
	}
	return reg, nil
}

// Clear removes the buffered registration, if any.
func (s *PendingStore) Clear(ctx context.Context, email string) error {
	if err := s.redis.Del(ctx, keys.Pending(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}
	return nil
}

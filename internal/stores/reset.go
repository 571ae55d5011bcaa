package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradekart/marketauth/internal/keys"
)

// ErrResetUnavailable indicates the reset marker backend is unreachable.
var ErrResetUnavailable = errors.New("reset marker backend unavailable")

// ResetMarkerStore holds the short-lived "reset authorized" marker set by a
// successful reset-code verification and consumed exactly once by the
// password update.
type ResetMarkerStore struct {
	redis redis.UniversalClient
}

// NewResetMarkerStore creates a [ResetMarkerStore] backed by the given
// Redis client.
func NewResetMarkerStore(redisClient redis.UniversalClient) *ResetMarkerStore {
	return &ResetMarkerStore{redis: redisClient}
}

// Authorize arms the marker for the email.
func (s *ResetMarkerStore) Authorize(ctx context.Context, email string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, keys.ResetVerified(email), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrResetUnavailable, err)
	}
	return nil
}

// Consume removes the marker and reports whether it was present. GETDEL
// keeps check-and-remove a single round-trip, so two concurrent resets
// cannot both observe the marker.
func (s *ResetMarkerStore) Consume(ctx context.Context, email string) (bool, error) {
	_, err := s.redis.GetDel(ctx, keys.ResetVerified(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrResetUnavailable, err)
	}
	return true, nil
}

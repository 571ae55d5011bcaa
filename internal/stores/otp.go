package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradekart/marketauth/internal"
	"github.com/tradekart/marketauth/internal/keys"
)

var (
	// ErrOTPNotFound indicates no active code exists for the identity.
	// Covers natural expiry and already-consumed codes alike.
	ErrOTPNotFound = errors.New("otp record not found")
	// ErrOTPMismatch indicates the candidate did not match the stored digest.
	ErrOTPMismatch = errors.New("otp mismatch")
	// ErrOTPUnavailable indicates the OTP backend is unreachable.
	ErrOTPUnavailable = errors.New("otp backend unavailable")
)

// consumeOTPLua performs GET → compare → DEL in one atomic step.
// KEYS[1] = record key, ARGV[1] = provided digest (32 raw bytes).
// The digest comparison happens on SHA-256 output, never on the code
// itself, so Lua's non-constant-time string compare leaks nothing a
// caller could use to reconstruct the code.
var consumeOTPLua = redis.NewScript(`
local stored = redis.call('GET', KEYS[1])
if not stored then
  return 0
end
if stored ~= ARGV[1] then
  return -1
end
redis.call('DEL', KEYS[1])
return 1
`)

// OTPStore holds the active code digest for each (email, purpose) pair.
// Saving overwrites any prior record, so only the latest code verifies.
type OTPStore struct {
	redis redis.UniversalClient
}

// NewOTPStore creates an [OTPStore] backed by the given Redis client.
func NewOTPStore(redisClient redis.UniversalClient) *OTPStore {
	return &OTPStore{redis: redisClient}
}

// Save stores the digest of a freshly issued code with the given TTL,
// invalidating any previously issued code for the same identity.
func (s *OTPStore) Save(ctx context.Context, p keys.Purpose, email string, digest [32]byte, ttl time.Duration) error {
	if err := s.redis.Set(ctx, keys.OTP(p, email), string(digest[:]), ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}
	return nil
}

// Consume atomically deletes the record when the provided digest matches.
// A mismatch leaves the record in place; failure accounting is the
// limiter's job. A second call after a successful consume reports
// [ErrOTPNotFound], never a stale match.
func (s *OTPStore) Consume(ctx context.Context, p keys.Purpose, email string, provided [32]byte) error {
	result, err := consumeOTPLua.Run(ctx, s.redis, []string{keys.OTP(p, email)}, string(provided[:])).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}

	switch result {
	case 1:
		return nil
	case -1:
		return ErrOTPMismatch
	default:
		return ErrOTPNotFound
	}
}

// Drop removes any active record for the identity.
func (s *OTPStore) Drop(ctx context.Context, p keys.Purpose, email string) error {
	if err := s.redis.Del(ctx, keys.OTP(p, email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}
	return nil
}

// DigestFor is a convenience wrapper over the digest used throughout the
// OTP paths.
func DigestFor(code string) [32]byte {
	return internal.HashCode(code)
}

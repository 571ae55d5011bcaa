package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradekart/marketauth/internal/keys"
)

const refreshRecordVersion = "1"

var (
	// ErrRefreshNotFound indicates no record exists for the presented hash.
	// After a rotation this is what a replayed old token observes.
	ErrRefreshNotFound = errors.New("refresh record not found")
	// ErrRefreshUserMismatch indicates the record belongs to another user.
	ErrRefreshUserMismatch = errors.New("refresh record user mismatch")
	// ErrRefreshUnavailable indicates the refresh backend is unreachable.
	ErrRefreshUnavailable = errors.New("refresh backend unavailable")
)

// rotateRefreshLua replaces one refresh record with its successor in a
// single atomic step. Of two concurrent rotations of the same token, the
// second finds the old key gone and fails.
//
// KEYS[1] = old record key, KEYS[2] = new record key, KEYS[3] = user index
// ARGV[1] = expected user id, ARGV[2] = old hash, ARGV[3] = encoded new
// record, ARGV[4] = ttl millis, ARGV[5] = new hash
var rotateRefreshLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return 0
end
local nl1 = string.find(data, "\n", 1, true)
local nl2 = string.find(data, "\n", nl1 + 1, true)
local uid = string.sub(data, nl1 + 1, nl2 - 1)
if uid ~= ARGV[1] then
  return -1
end
redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[3], ARGV[2])
redis.call('SET', KEYS[2], ARGV[3], 'PX', ARGV[4])
redis.call('SADD', KEYS[3], ARGV[5])
redis.call('PEXPIRE', KEYS[3], ARGV[4])
return 1
`)

// RefreshRecord is the stored side of one refresh token. The token itself
// is never persisted; records are keyed by the hex SHA-256 of the token.
type RefreshRecord struct {
	ID        string
	UserID    string
	CreatedAt int64
	ExpiresAt int64
}

// RefreshStore keeps refresh-token records plus a per-user index used for
// full revocation on logout and password reset.
type RefreshStore struct {
	redis redis.UniversalClient
}

// NewRefreshStore creates a [RefreshStore] backed by the given Redis client.
func NewRefreshStore(redisClient redis.UniversalClient) *RefreshStore {
	return &RefreshStore{redis: redisClient}
}

// Save writes a record under the token hash and indexes it for the user.
func (s *RefreshStore) Save(ctx context.Context, tokenHash string, rec RefreshRecord, ttl time.Duration) error {
	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, keys.Refresh(tokenHash), encodeRefreshRecord(rec), ttl)
	pipe.SAdd(ctx, keys.RefreshIndex(rec.UserID), tokenHash)
	pipe.PExpire(ctx, keys.RefreshIndex(rec.UserID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}
	return nil
}

// Find returns the record stored under the token hash.
func (s *RefreshStore) Find(ctx context.Context, tokenHash string) (RefreshRecord, error) {
	data, err := s.redis.Get(ctx, keys.Refresh(tokenHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return RefreshRecord{}, ErrRefreshNotFound
		}
		return RefreshRecord{}, fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}
	return decodeRefreshRecord(data)
}

// Rotate atomically replaces the record under oldHash with next under
// newHash. Rotation is single-use: once a token's record is replaced, a
// second rotation of the same token fails with [ErrRefreshNotFound].
func (s *RefreshStore) Rotate(ctx context.Context, userID, oldHash, newHash string, next RefreshRecord, ttl time.Duration) error {
	result, err := rotateRefreshLua.Run(ctx, s.redis,
		[]string{keys.Refresh(oldHash), keys.Refresh(newHash), keys.RefreshIndex(userID)},
		userID,
		oldHash,
		encodeRefreshRecord(next),
		ttl.Milliseconds(),
		newHash,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}

	switch result {
	case 1:
		return nil
	case -1:
		return ErrRefreshUserMismatch
	default:
		return ErrRefreshNotFound
	}
}

// Delete removes one record outright. Used by logout; deleting a record
// that is already gone is not an error.
func (s *RefreshStore) Delete(ctx context.Context, userID, tokenHash string) error {
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, keys.Refresh(tokenHash))
	pipe.SRem(ctx, keys.RefreshIndex(userID), tokenHash)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}
	return nil
}

// DeleteAllForUser removes every record indexed for the user. Used on
// login (single active session) and on password reset (full revocation).
func (s *RefreshStore) DeleteAllForUser(ctx context.Context, userID string) error {
	indexKey := keys.RefreshIndex(userID)

	hashes, err := s.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}

	del := make([]string, 0, len(hashes)+1)
	for _, h := range hashes {
		del = append(del, keys.Refresh(h))
	}
	del = append(del, indexKey)

	if err := s.redis.Del(ctx, del...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}
	return nil
}

func encodeRefreshRecord(rec RefreshRecord) string {
	return strings.Join([]string{
		refreshRecordVersion,
		rec.UserID,
		rec.ID,
		strconv.FormatInt(rec.CreatedAt, 10),
		strconv.FormatInt(rec.ExpiresAt, 10),
	}, "\n")
}

func decodeRefreshRecord(data string) (RefreshRecord, error) {
	parts := strings.Split(data, "\n")
	if len(parts) != 5 || parts[0] != refreshRecordVersion {
		return RefreshRecord{}, fmt.Errorf("%w: corrupt record", ErrRefreshUnavailable)
	}

	createdAt, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return RefreshRecord{}, fmt.Errorf("%w: corrupt record", ErrRefreshUnavailable)
	}
	expiresAt, err := strconv.ParseInt(parts[4], 10, 64)
	if err != nil {
		return RefreshRecord{}, fmt.Errorf("%w: corrupt record", ErrRefreshUnavailable)
	}

	return RefreshRecord{
		ID:        parts[2],
		UserID:    parts[1],
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}, nil
}

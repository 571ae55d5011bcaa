package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStreamSink appends events to a Redis stream, capped at a maximum
// approximate length so the trail cannot grow without bound. The stream key
// itself carries a TTL refreshed on every append.
type RedisStreamSink struct {
	redis  redis.UniversalClient
	stream string
	maxLen int64
	ttl    time.Duration
}

func NewRedisStreamSink(redisClient redis.UniversalClient, stream string, maxLen int64, ttl time.Duration) *RedisStreamSink {
	if stream == "" {
		stream = "auth_audit"
	}
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisStreamSink{
		redis:  redisClient,
		stream: stream,
		maxLen: maxLen,
		ttl:    ttl,
	}
}

func (s *RedisStreamSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.redis == nil {
		return
	}

	values := map[string]any{
		"timestamp":  event.Timestamp.UnixMilli(),
		"event_type": event.EventType,
		"success":    boolField(event.Success),
	}
	if event.UserID != "" {
		values["user_id"] = event.UserID
	}
	if event.Email != "" {
		values["email"] = event.Email
	}
	if event.IP != "" {
		values["ip"] = event.IP
	}
	if event.Error != "" {
		values["error"] = event.Error
	}
	if len(event.Metadata) > 0 {
		if meta, err := json.Marshal(event.Metadata); err == nil {
			values["metadata"] = string(meta)
		}
	}

	pipe := s.redis.Pipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	})
	if s.ttl > 0 {
		pipe.Expire(ctx, s.stream, s.ttl)
	}
	_, _ = pipe.Exec(ctx)
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

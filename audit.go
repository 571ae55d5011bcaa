package marketauth

import (
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tradekart/marketauth/internal/audit"
)

// AuditEvent is one security-relevant event emitted by the engine. Events
// carry identity and outcome only; codes, tokens, and password material are
// never included.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's async dispatcher.
type AuditSink = audit.Sink

// Audit event types emitted by the engine.
const (
	EventRegister           = "register"
	EventResendVerification = "resend_verification"
	EventVerifyRegistration = "verify_registration"
	EventLogin              = "login"
	EventRefresh            = "refresh"
	EventLogout             = "logout"
	EventForgotPassword     = "forgot_password"
	EventVerifyReset        = "verify_reset"
	EventResetPassword      = "reset_password"
)

// NewChannelAuditSink returns a sink that buffers events in a channel,
// readable via its Events method. Useful for tests and custom pipelines.
func NewChannelAuditSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONAuditSink returns a sink that writes one JSON object per line.
func NewJSONAuditSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewRedisStreamAuditSink returns a sink that appends events to a capped
// Redis stream whose key expires ttl after the last append.
func NewRedisStreamAuditSink(client redis.UniversalClient, stream string, maxLen int64, ttl time.Duration) *audit.RedisStreamSink {
	return audit.NewRedisStreamSink(client, stream, maxLen, ttl)
}

// NewZapAuditSink returns a sink that logs events through a zap logger.
func NewZapAuditSink(logger *zap.Logger) *audit.ZapSink {
	return audit.NewZapSink(logger)
}

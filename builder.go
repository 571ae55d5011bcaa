package marketauth

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tradekart/marketauth/internal/audit"
	"github.com/tradekart/marketauth/internal/cache"
	"github.com/tradekart/marketauth/internal/limiters"
	"github.com/tradekart/marketauth/internal/stores"
	"github.com/tradekart/marketauth/jwt"
	"github.com/tradekart/marketauth/notify"
	"github.com/tradekart/marketauth/password"
)

// Builder assembles an [Engine]. A builder is single-use: Build succeeds at
// most once.
type Builder struct {
	config Config

	redis     redis.UniversalClient
	userStore UserStore
	notifier  notify.Notifier
	auditSink AuditSink
	logger    *zap.Logger

	built bool
}

// New returns a builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the state-store client. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the durable user store. Required.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.userStore = store
	return b
}

// WithNotifier sets the outbound notifier. Required.
func (b *Builder) WithNotifier(n notify.Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink sets the destination for audit events. Optional; without a
// sink, events are dropped.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Optional; defaults to a no-op.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithJWTSecrets sets the two signing secrets on the current configuration.
func (b *Builder) WithJWTSecrets(access, refresh []byte) *Builder {
	b.config.JWT.AccessSecret = cloneBytes(access)
	b.config.JWT.RefreshSecret = cloneBytes(refresh)
	return b
}

// Build validates the configuration, wires every component, and returns
// the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.userStore == nil {
		return nil, errors.New("user store required")
	}
	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:   cfg,
		redis:    b.redis,
		users:    b.userStore,
		notifier: b.notifier,
		hasher:   hasher,
		tokens:   tokens,
		sendLimiter: limiters.NewSendLimiter(b.redis, limiters.SendConfig{
			Cooldown:     cfg.RateLimit.SendCooldown,
			MaxPerEmail:  cfg.RateLimit.MaxSendsPerEmail,
			EmailWindow:  cfg.RateLimit.EmailSendWindow,
			EmailLockTTL: cfg.RateLimit.EmailLockTTL,
			MaxPerIP:     cfg.RateLimit.MaxSendsPerIP,
			IPWindow:     cfg.RateLimit.IPSendWindow,
			IPLockTTL:    cfg.RateLimit.IPLockTTL,
		}),
		verifyLimiter: limiters.NewVerifyLimiter(b.redis, limiters.VerifyConfig{
			MaxFailures:   cfg.RateLimit.MaxVerifyFailures,
			FailureWindow: cfg.RateLimit.VerifyFailureWindow,
			LockTTL:       cfg.RateLimit.VerifyLockTTL,
		}),
		otps:          stores.NewOTPStore(b.redis),
		pending:       stores.NewPendingStore(b.redis),
		resetMarkers:  stores.NewResetMarkerStore(b.redis),
		refreshTokens: stores.NewRefreshStore(b.redis),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics:     NewMetrics(true),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		statusCache: cache.New[CooldownStatus](cfg.StatusCache.TTL),
		logger:      logger,
	}

	b.built = true

	return engine, nil
}

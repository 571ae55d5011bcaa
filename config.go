package marketauth

import (
	"errors"
	"fmt"
	"time"
)

// Config holds all tunables of the engine, grouped by concern. Instances
// are set before Build and treated as immutable afterwards; the builder
// clones what it is given.
type Config struct {
	JWT          JWTConfig
	Password     PasswordConfig
	OTP          OTPConfig
	RateLimit    RateLimitConfig
	Registration RegistrationConfig
	Reset        ResetConfig
	Audit        AuditConfig
	StatusCache  StatusCacheConfig
}

// JWTConfig configures token signing. Access and refresh secrets must
// differ so one token class can never pass as the other.
type JWTConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
}

// PasswordConfig carries Argon2id cost parameters.
type PasswordConfig struct {
	Memory           uint32 // in KB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

// OTPConfig configures one-time codes.
type OTPConfig struct {
	Digits int
	TTL    time.Duration
}

// RateLimitConfig configures the send and verify throttles.
type RateLimitConfig struct {
	SendCooldown        time.Duration
	MaxSendsPerEmail    int
	EmailSendWindow     time.Duration
	EmailLockTTL        time.Duration
	MaxSendsPerIP       int
	IPSendWindow        time.Duration
	IPLockTTL           time.Duration
	MaxVerifyFailures   int
	VerifyFailureWindow time.Duration
	VerifyLockTTL       time.Duration
}

// RegistrationConfig configures the pending-registration buffer.
type RegistrationConfig struct {
	PendingTTL   time.Duration
	DefaultRole  string
	AllowedRoles []string
}

// ResetConfig configures the password-reset flow.
type ResetConfig struct {
	MarkerTTL time.Duration
}

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// StatusCacheConfig bounds the staleness of CooldownStatus reads. Zero TTL
// disables the cache.
type StatusCacheConfig struct {
	TTL time.Duration
}

// DefaultConfig returns the production defaults: 6-digit codes with a
// 5-minute life, 60-second resend cooldown, 5 sends per email and 10 per
// IP per hour, 5 verify failures before a 15-minute lock, 30-minute
// pending registrations, 10-minute reset markers, 15-minute access and
// 7-day refresh tokens. Secrets are not defaulted.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "tradekart",
			Leeway:     30 * time.Second,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		OTP: OTPConfig{
			Digits: 6,
			TTL:    5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			SendCooldown:        60 * time.Second,
			MaxSendsPerEmail:    5,
			EmailSendWindow:     time.Hour,
			EmailLockTTL:        time.Hour,
			MaxSendsPerIP:       10,
			IPSendWindow:        time.Hour,
			IPLockTTL:           60 * time.Minute,
			MaxVerifyFailures:   5,
			VerifyFailureWindow: 15 * time.Minute,
			VerifyLockTTL:       15 * time.Minute,
		},
		Registration: RegistrationConfig{
			PendingTTL:   30 * time.Minute,
			DefaultRole:  "customer",
			AllowedRoles: []string{"customer", "seller"},
		},
		Reset: ResetConfig{
			MarkerTTL: 10 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		StatusCache: StatusCacheConfig{
			TTL: 2 * time.Second,
		},
	}
}

// Validate checks internal consistency of the configuration.
func (c Config) Validate() error {
	if len(c.JWT.AccessSecret) < 32 || len(c.JWT.RefreshSecret) < 32 {
		return errors.New("JWT secrets must be at least 32 bytes")
	}
	if string(c.JWT.AccessSecret) == string(c.JWT.RefreshSecret) {
		return errors.New("JWT access and refresh secrets must differ")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT TTLs must be positive")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("access TTL must be shorter than refresh TTL")
	}
	if c.OTP.Digits < 4 || c.OTP.Digits > 9 {
		return errors.New("OTP digits must be between 4 and 9")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be positive")
	}
	if c.RateLimit.SendCooldown <= 0 ||
		c.RateLimit.EmailSendWindow <= 0 ||
		c.RateLimit.IPSendWindow <= 0 ||
		c.RateLimit.VerifyFailureWindow <= 0 {
		return errors.New("rate limit windows must be positive")
	}
	if c.RateLimit.MaxSendsPerEmail <= 0 ||
		c.RateLimit.MaxSendsPerIP <= 0 ||
		c.RateLimit.MaxVerifyFailures <= 0 {
		return errors.New("rate limit caps must be positive")
	}
	if c.RateLimit.EmailLockTTL <= 0 ||
		c.RateLimit.IPLockTTL <= 0 ||
		c.RateLimit.VerifyLockTTL <= 0 {
		return errors.New("lock TTLs must be positive")
	}
	if c.Registration.PendingTTL <= 0 {
		return errors.New("pending registration TTL must be positive")
	}
	if c.Registration.PendingTTL <= c.OTP.TTL {
		return errors.New("pending registration TTL must exceed OTP TTL")
	}
	if c.Registration.DefaultRole == "" {
		return errors.New("default role is required")
	}
	if !roleAllowed(c.Registration.AllowedRoles, c.Registration.DefaultRole) {
		return fmt.Errorf("default role %q is not in allowed roles", c.Registration.DefaultRole)
	}
	if c.Reset.MarkerTTL <= 0 {
		return errors.New("reset marker TTL must be positive")
	}
	if c.StatusCache.TTL < 0 {
		return errors.New("status cache TTL must not be negative")
	}
	return nil
}

func roleAllowed(allowed []string, role string) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	out.Registration.AllowedRoles = append([]string(nil), cfg.Registration.AllowedRoles...)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

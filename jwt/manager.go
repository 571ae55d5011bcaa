package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrExpired indicates a token whose signature verified but whose
	// lifetime has passed.
	ErrExpired = errors.New("token expired")
	// ErrInvalid indicates a token that failed signature, structure, or
	// claim validation.
	ErrInvalid = errors.New("token invalid")
)

// Config holds signing material and lifetimes for both token classes.
// Config instances are intended to be set during initialization and then
// treated as immutable.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
}

// AccessClaims is the payload of an access token: enough identity for a
// resource server to authorize a request without a user-store read.
type AccessClaims struct {
	UID             string `json:"uid"`
	Email           string `json:"email"`
	Name            string `json:"name,omitempty"`
	Role            string `json:"role,omitempty"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
	IsVerified      bool   `json:"is_verified"`
	CreatedAt       int64  `json:"created_at,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. The ID (jti) makes every
// issued refresh token unique even for the same user within one second.
type RefreshClaims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}

// Manager issues and verifies both token classes.
type Manager struct {
	config Config
}

// NewManager validates the configuration and returns a [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("access and refresh secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Manager{config: cfg}, nil
}

// AccessTTL reports the configured access-token lifetime.
func (j *Manager) AccessTTL() time.Duration { return j.config.AccessTTL }

// RefreshTTL reports the configured refresh-token lifetime.
func (j *Manager) RefreshTTL() time.Duration { return j.config.RefreshTTL }

// CreateAccess signs an access token for the given claims, stamping
// lifetime and issuer from configuration.
func (j *Manager) CreateAccess(claims AccessClaims) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(j.config.AccessTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    j.config.Issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.config.AccessSecret)
}

// CreateRefresh signs a refresh token for the user and returns the token
// string together with its jti.
func (j *Manager) CreateRefresh(uid string) (string, string, error) {
	now := time.Now()
	claims := RefreshClaims{
		UID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.config.RefreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.config.RefreshSecret)
	if err != nil {
		return "", "", err
	}
	return signed, claims.ID, nil
}

// ParseAccess verifies an access token and returns its claims.
func (j *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := j.parse(tokenStr, claims, j.config.AccessSecret); err != nil {
		return nil, err
	}
	if claims.UID == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token and returns its claims.
func (j *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := j.parse(tokenStr, claims, j.config.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.UID == "" || claims.ID == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

func (j *Manager) parse(tokenStr string, claims jwt.Claims, secret []byte) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpired
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !token.Valid {
		return ErrInvalid
	}
	return nil
}

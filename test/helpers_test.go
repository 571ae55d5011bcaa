//go:build integration
// +build integration

package test

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tradekart/marketauth"
	"github.com/tradekart/marketauth/notify"
)

const testPassword = "correct-horse-battery"

func newIntegrationEngine(t *testing.T) (*marketauth.Engine, *miniredis.Miniredis, *codeCapture) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	cfg := marketauth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("test-access-secret-0123456789abcdef")
	cfg.JWT.RefreshSecret = []byte("test-refresh-secret-0123456789abcdef")
	cfg.Password = marketauth.PasswordConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

	mailer := &codeCapture{}
	engine, err := marketauth.New().
		WithConfig(cfg).
		WithRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()})).
		WithUserStore(newMemoryStore()).
		WithNotifier(mailer).
		Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, mr, mailer
}

func registerVerifiedUser(t *testing.T, engine *marketauth.Engine, mailer *codeCapture, email string) *marketauth.UserRecord {
	t.Helper()

	ctx := context.Background()
	err := engine.Register(ctx, marketauth.RegisterRequest{
		Email:    email,
		Password: testPassword,
		Name:     "Alice Example",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	user, err := engine.VerifyRegistration(ctx, email, mailer.lastCode(t))
	if err != nil {
		t.Fatalf("VerifyRegistration failed: %v", err)
	}
	return user
}

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

type codeCapture struct {
	mu   sync.Mutex
	last string
}

func (c *codeCapture) Name() string { return "capture" }

func (c *codeCapture) Send(_ context.Context, msg notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = msg.Body
	return nil
}

func (c *codeCapture) lastCode(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	m := codePattern.FindStringSubmatch(c.last)
	if m == nil {
		t.Fatalf("no code found in %q", c.last)
	}
	return m[1]
}

type memoryStore struct {
	mu      sync.Mutex
	byEmail map[string]*marketauth.UserRecord
	byID    map[string]*marketauth.UserRecord
	nextID  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		byEmail: make(map[string]*marketauth.UserRecord),
		byID:    make(map[string]*marketauth.UserRecord),
	}
}

func (s *memoryStore) FindByEmail(_ context.Context, email string) (*marketauth.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byEmail[email]
	if !ok {
		return nil, marketauth.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *memoryStore) FindByID(_ context.Context, id string) (*marketauth.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[id]
	if !ok {
		return nil, marketauth.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *memoryStore) Create(_ context.Context, input marketauth.CreateUserInput) (*marketauth.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[input.Email]; ok {
		return nil, marketauth.ErrAlreadyExists
	}
	s.nextID++
	user := &marketauth.UserRecord{
		ID:           fmt.Sprintf("user-%d", s.nextID),
		Email:        input.Email,
		Name:         input.Name,
		PasswordHash: input.PasswordHash,
		Role:         input.Role,
		IsVerified:   input.IsVerified,
	}
	s.byEmail[user.Email] = user
	s.byID[user.ID] = user
	copied := *user
	return &copied, nil
}

func (s *memoryStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[id]
	if !ok {
		return marketauth.ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	return nil
}

package middleware_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tradekart/marketauth"
	"github.com/tradekart/marketauth/middleware"
	"github.com/tradekart/marketauth/notify"
)

func TestGuardRejectsMissingAndGarbageTokens(t *testing.T) {
	engine, _ := newGuardedEngine(t)
	handler := middleware.Guard(engine)(okHandler(t))

	for _, header := range []string{"", "Bearer ", "Bearer garbage", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rec.Code)
		}
	}
}

func TestGuardInjectsClaims(t *testing.T) {
	engine, pair := newGuardedEngine(t)

	var gotUID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.ClaimsFromContext(r.Context())
		if !ok {
			t.Fatal("expected claims in context")
		}
		gotUID = claims.UID
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	middleware.Guard(engine)(inner).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotUID == "" {
		t.Fatal("expected a user id in the claims")
	}
}

func TestRequireRole(t *testing.T) {
	engine, pair := newGuardedEngine(t)

	sellerOnly := middleware.Guard(engine)(
		middleware.RequireRole("seller")(okHandler(t)),
	)
	customerOK := middleware.Guard(engine)(
		middleware.RequireRole("customer", "seller")(okHandler(t)),
	)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)

	rec := httptest.NewRecorder()
	sellerOnly.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("customer on seller route: expected 403, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	customerOK.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("customer on customer route: expected 200, got %d", rec.Code)
	}
}

func okHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// newGuardedEngine builds an engine, registers a verified customer, and
// returns a logged-in token pair.
func newGuardedEngine(t *testing.T) (*marketauth.Engine, *marketauth.TokenPair) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
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
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	ctx := context.Background()
	err = engine.Register(ctx, marketauth.RegisterRequest{
		Email:    "alice@example.com",
		Password: "correct-horse-battery",
		Name:     "Alice Example",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := engine.VerifyRegistration(ctx, "alice@example.com", mailer.lastCode(t)); err != nil {
		t.Fatalf("VerifyRegistration failed: %v", err)
	}

	pair, err := engine.Login(ctx, "alice@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return engine, pair
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

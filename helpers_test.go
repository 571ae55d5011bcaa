package marketauth

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tradekart/marketauth/notify"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte("test-access-secret-0123456789abcdef")
	cfg.JWT.RefreshSecret = []byte("test-refresh-secret-0123456789abcdef")
	// Cheapest parameters the hasher accepts, to keep tests fast.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

// mockUserStore is an in-memory UserStore with a unique email constraint.
type mockUserStore struct {
	mu      sync.Mutex
	byEmail map[string]*UserRecord
	byID    map[string]*UserRecord
	nextID  int
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		byEmail: map[string]*UserRecord{},
		byID:    map[string]*UserRecord{},
	}
}

func (s *mockUserStore) FindByEmail(_ context.Context, email string) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byEmail[email]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, ErrUserNotFound
}

func (s *mockUserStore) FindByID(_ context.Context, id string) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byID[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, ErrUserNotFound
}

func (s *mockUserStore) Create(_ context.Context, input CreateUserInput) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[input.Email]; ok {
		return nil, ErrAlreadyExists
	}
	s.nextID++
	u := &UserRecord{
		ID:              fmt.Sprintf("u%d", s.nextID),
		Email:           input.Email,
		Name:            input.Name,
		PasswordHash:    input.PasswordHash,
		Role:            input.Role,
		Phone:           input.Phone,
		ProfileImageURL: input.ProfileImageURL,
		IsVerified:      input.IsVerified,
	}
	s.byEmail[u.Email] = u
	s.byID[u.ID] = u
	copied := *u
	return &copied, nil
}

func (s *mockUserStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

// captureNotifier records delivered messages instead of sending them.
type captureNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
	fail     bool
}

func (n *captureNotifier) Name() string { return "capture" }

func (n *captureNotifier) Send(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return fmt.Errorf("capture notifier configured to fail")
	}
	n.messages = append(n.messages, msg)
	return nil
}

func (n *captureNotifier) lastCode(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.messages) == 0 {
		t.Fatal("no messages delivered")
	}
	m := codePattern.FindStringSubmatch(n.messages[len(n.messages)-1].Body)
	if m == nil {
		t.Fatalf("no code found in message body: %q", n.messages[len(n.messages)-1].Body)
	}
	return m[1]
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func newTestEngine(t *testing.T, rdb *redis.Client, users UserStore, mailer notify.Notifier) *Engine {
	t.Helper()

	engine, err := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithUserStore(users).
		WithNotifier(mailer).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func registerAndVerify(t *testing.T, engine *Engine, mailer *captureNotifier, email string) *UserRecord {
	t.Helper()

	ctx := context.Background()
	err := engine.Register(ctx, RegisterRequest{
		Email:    email,
		Password: "correct-horse-battery",
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

// Command marketauth-loadtest measures login and refresh-rotation latency
// against a real or embedded Redis. Users are seeded directly into an
// in-memory store with a shared password hash so the phases measure the
// engine and Redis, not Argon2 seeding.
//
//	go run ./cmd/marketauth-loadtest -users 10000 -ops 50000 -concurrency 128
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tradekart/marketauth"
	"github.com/tradekart/marketauth/notify"
	"github.com/tradekart/marketauth/password"
)

const seedPassword = "loadtest-password-1"

type userState struct {
	email   string
	refresh string
	mu      sync.Mutex
}

func main() {
	var (
		users       = flag.Int("users", 10000, "number of users to seed")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase (login + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := marketauth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("loadtest-access-secret-0123456789abcdef")
	cfg.JWT.RefreshSecret = []byte("loadtest-refresh-secret-0123456789abcdef")
	// Cheap hashing keeps login throughput bounded by Redis, not CPU.
	cfg.Password = marketauth.PasswordConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	cfg.Audit.Enabled = false

	store := newMemoryStore()
	engine, err := marketauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(store).
		WithNotifier(notify.Func(func(context.Context, notify.Message) error { return nil })).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d users...\n", *users)
	startSeed := time.Now()
	states, err := seedUsers(ctx, engine, store, *users)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	loginStats := runLoginPhase(ctx, engine, states, *ops, *concurrency)
	refreshStats := runRefreshPhase(ctx, engine, states, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("refresh", refreshStats)
}

// seedUsers writes users straight into the store with one shared hash, then
// logs each in once so the refresh phase starts with a live session.
func seedUsers(ctx context.Context, engine *marketauth.Engine, store *memoryStore, n int) ([]userState, error) {
	hasher, err := password.NewHasher(password.Config{
		Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	if err != nil {
		return nil, err
	}
	hash, err := hasher.Hash(seedPassword)
	if err != nil {
		return nil, err
	}

	states := make([]userState, n)
	for i := 0; i < n; i++ {
		email := fmt.Sprintf("user-%d@loadtest.example", i)
		store.seed(email, hash)
		states[i] = userState{email: email}
	}

	for i := range states {
		pair, err := engine.Login(ctx, states[i].email, seedPassword)
		if err != nil {
			return nil, fmt.Errorf("seed login %s: %w", states[i].email, err)
		}
		states[i].refresh = pair.RefreshToken
	}
	return states, nil
}

func runLoginPhase(ctx context.Context, engine *marketauth.Engine, states []userState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]

				// Login replaces the active session, so the stored refresh
				// token must follow it.
				state.mu.Lock()
				t0 := time.Now()
				pair, err := engine.Login(ctx, state.email, seedPassword)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				} else {
					state.refresh = pair.RefreshToken
				}
				state.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

func runRefreshPhase(ctx context.Context, engine *marketauth.Engine, states []userState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]

				state.mu.Lock()
				t0 := time.Now()
				pair, err := engine.Refresh(ctx, state.refresh)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				} else {
					state.refresh = pair.RefreshToken
				}
				state.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

type memoryStore struct {
	mu      sync.RWMutex
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

func (s *memoryStore) seed(email, passwordHash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	user := &marketauth.UserRecord{
		ID:           fmt.Sprintf("user-%d", s.nextID),
		Email:        email,
		Name:         "Load Test",
		PasswordHash: passwordHash,
		Role:         "customer",
		IsVerified:   true,
		CreatedAt:    time.Now(),
	}
	s.byEmail[email] = user
	s.byID[user.ID] = user
}

func (s *memoryStore) FindByEmail(_ context.Context, email string) (*marketauth.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.byEmail[email]
	if !ok {
		return nil, marketauth.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *memoryStore) FindByID(_ context.Context, id string) (*marketauth.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
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
		CreatedAt:    time.Now(),
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

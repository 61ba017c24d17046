package authcore

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// fakeStore is an in-package AccountStore. The store adapters live in
// subpackages that import this one.
type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	nextID   int

	delay   time.Duration
	failErr error
	creates int
	updates int

	updateErr      error
	updateFailures int
}

func newFakeStore() *fakeStore {
	return &fakeStore{accounts: map[string]*Account{}}
}

func (s *fakeStore) wait(ctx context.Context) error {
	s.mu.Lock()
	delay, failErr := s.delay, s.failErr
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return failErr
}

func (s *fakeStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.Email == email {
			return acc.Clone(), nil
		}
	}
	return nil, ErrAccountNotFound
}

func (s *fakeStore) FindByEmailAndName(ctx context.Context, email, name string) (*Account, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.Email == email || acc.Name == name {
			return acc.Clone(), nil
		}
	}
	return nil, ErrAccountNotFound
}

func (s *fakeStore) FindByRefreshToken(ctx context.Context, tokenHash string) (*Account, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	if tokenHash == "" {
		return nil, ErrAccountNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.RefreshTokenHash == tokenHash {
			return acc.Clone(), nil
		}
	}
	return nil, ErrAccountNotFound
}

func (s *fakeStore) Create(ctx context.Context, acc *Account) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if existing.Email == acc.Email {
			return ErrDuplicateAccount
		}
	}
	s.nextID++
	if acc.ID == "" {
		acc.ID = "acc-" + strconv.Itoa(s.nextID)
	}
	now := time.Now().UTC()
	acc.CreatedAt = now
	acc.UpdatedAt = now
	acc.Version = 1
	s.accounts[acc.ID] = acc.Clone()
	s.creates++
	return nil
}

func (s *fakeStore) Update(ctx context.Context, id string, acc *Account) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateFailures > 0 {
		s.updateFailures--
		return s.updateErr
	}
	cur, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	if cur.Version != acc.Version {
		return ErrConcurrentUpdate
	}
	acc.Version++
	acc.UpdatedAt = time.Now().UTC()
	stored := acc.Clone()
	stored.ID = id
	s.accounts[id] = stored
	s.updates++
	return nil
}

func (s *fakeStore) get(t *testing.T, email string) *Account {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.Email == email {
			return acc.Clone()
		}
	}
	t.Fatalf("account %q not in store", email)
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

func (s *fakeStore) setDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

func (s *fakeStore) setFailure(err error) {
	s.mu.Lock()
	s.failErr = err
	s.mu.Unlock()
}

// failUpdates makes the next n Update calls return err.
func (s *fakeStore) failUpdates(n int, err error) {
	s.mu.Lock()
	s.updateFailures = n
	s.updateErr = err
	s.mu.Unlock()
}

type sentCode struct {
	kind  string
	email string
	code  string
}

// fakeNotifier records every code it is asked to send.
type fakeNotifier struct {
	mu    sync.Mutex
	sent  []sentCode
	err   error
	delay time.Duration
}

func (n *fakeNotifier) send(ctx context.Context, kind, email, code string) error {
	n.mu.Lock()
	delay, err := n.delay, n.err
	n.mu.Unlock()

	if delay > 0 {
		// Ignores ctx on purpose so the engine bound is what ends the call.
		time.Sleep(delay)
	}
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.sent = append(n.sent, sentCode{kind: kind, email: email, code: code})
	n.mu.Unlock()
	return nil
}

func (n *fakeNotifier) SendOTPEmail(ctx context.Context, email, code string) error {
	return n.send(ctx, "otp", email, code)
}

func (n *fakeNotifier) SendPasswordResetEmail(ctx context.Context, email, code string) error {
	return n.send(ctx, "reset", email, code)
}

func (n *fakeNotifier) last(t *testing.T, kind, email string) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].kind == kind && n.sent[i].email == email {
			return n.sent[i].code
		}
	}
	t.Fatalf("no %s code sent to %s", kind, email)
	return ""
}

func (n *fakeNotifier) total() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte(testSecret)
	cfg.JWT.Issuer = "authcore-test"
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Timeouts.Store = time.Second
	cfg.Timeouts.Notification = time.Second
	cfg.Metrics.Enabled = true
	return cfg
}

type testEnv struct {
	engine   *Engine
	store    *fakeStore
	notifier *fakeNotifier
	clock    *testClock
}

type testOption func(*Builder)

func withRedis(rdb redis.UniversalClient) testOption {
	return func(b *Builder) { b.WithRedis(rdb) }
}

func withAuditSink(sink AuditSink) testOption {
	return func(b *Builder) { b.WithAuditSink(sink) }
}

func newTestEnv(t *testing.T, cfg Config, opts ...testOption) *testEnv {
	t.Helper()

	env := &testEnv{
		store:    newFakeStore(),
		notifier: &fakeNotifier{},
		clock:    newTestClock(),
	}
	b := New().
		WithConfig(cfg).
		WithAccountStore(env.store).
		WithNotifier(env.notifier).
		WithClock(env.clock.Now)
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

// signup registers an account and returns the verification code sent to it.
func (env *testEnv) signup(t *testing.T, email, name, password string) (SignupResult, string) {
	t.Helper()
	res, err := env.engine.Signup(context.Background(), email, name, password)
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	return res, env.notifier.last(t, "otp", strings.ToLower(email))
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

// wrongCode returns a code of the same shape that differs from code.
func wrongCode(code string) string {
	if strings.HasPrefix(code, "0") {
		return "1" + code[1:]
	}
	return "0" + code[1:]
}

var errBackend = errors.New("backend exploded")

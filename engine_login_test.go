package authcore

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/password"
	"github.com/redis/go-redis/v9"
)

func TestLoginRotatesRefreshToken(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	signup, _ := env.signup(t, "a@x.com", "Ann", "pw123")

	res, err := env.engine.Login(ctx, "a@x.com", "pw123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.AccountID != signup.AccountID || res.Name != "Ann" || res.Verified {
		t.Fatalf("unexpected login result %+v", res)
	}
	if res.Tokens.RefreshToken == signup.Tokens.RefreshToken {
		t.Fatal("expected a new refresh token")
	}

	if _, err := env.engine.RefreshToken(ctx, signup.Tokens.RefreshToken); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected replaced refresh token to fail with ErrAccountNotFound, got %v", err)
	}
	if _, err := env.engine.RefreshToken(ctx, res.Tokens.RefreshToken); err != nil {
		t.Fatalf("expected current refresh token to work, got %v", err)
	}
}

func TestLoginFailures(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	env.signup(t, "a@x.com", "Ann", "pw123")

	if _, err := env.engine.Login(ctx, "nobody@x.com", "pw123"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "a@x.com", "pw124"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "a@x.com", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty password, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "bad", "pw123"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricLoginFailure]; got != 4 {
		t.Fatalf("expected 4 login failures, got %d", got)
	}
}

func TestLoginNormalizesEmail(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.signup(t, "a@x.com", "Ann", "pw123")

	if _, err := env.engine.Login(context.Background(), "  A@X.COM ", "pw123"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
}

func TestLoginOAuthOnlyAccountHasNoPassword(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	if _, err := env.engine.OAuthCallback(ctx, googleProfile("g@x.com", "sub-1")); err != nil {
		t.Fatalf("OAuthCallback failed: %v", err)
	}
	if _, err := env.engine.Login(ctx, "g@x.com", "anything"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginRateLimited(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := testConfig()
	cfg.Security.MaxLoginAttempts = 3
	env := newTestEnv(t, cfg, withRedis(rdb))
	ctx := context.Background()
	env.signup(t, "a@x.com", "Ann", "pw123")

	for i := 0; i < 3; i++ {
		if _, err := env.engine.Login(ctx, "a@x.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
	if _, err := env.engine.Login(ctx, "a@x.com", "pw123"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricLoginRateLimited]; got != 1 {
		t.Fatalf("expected rate limited metric 1, got %d", got)
	}
}

func TestLoginSuccessResetsThrottle(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := testConfig()
	cfg.Security.MaxLoginAttempts = 3
	env := newTestEnv(t, cfg, withRedis(rdb))
	ctx := context.Background()
	env.signup(t, "a@x.com", "Ann", "pw123")

	for i := 0; i < 2; i++ {
		_, _ = env.engine.Login(ctx, "a@x.com", "wrong")
	}
	if _, err := env.engine.Login(ctx, "a@x.com", "pw123"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		_, _ = env.engine.Login(ctx, "a@x.com", "wrong")
	}
	if _, err := env.engine.Login(ctx, "a@x.com", "pw123"); err != nil {
		t.Fatalf("expected counter reset by earlier success, got %v", err)
	}
}

func TestLoginThrottleFailsClosedWhenRedisDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	env := newTestEnv(t, testConfig(), withRedis(rdb))
	env.signup(t, "a@x.com", "Ann", "pw123")
	mr.Close()

	if _, err := env.engine.Login(context.Background(), "a@x.com", "pw123"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited with redis down, got %v", err)
	}
}

// stallHook delays every Redis command by delay while it ignores the
// command context.
type stallHook struct {
	delay atomic.Int64
}

func (h *stallHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *stallHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		time.Sleep(time.Duration(h.delay.Load()))
		return next(ctx, cmd)
	}
}

func (h *stallHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		time.Sleep(time.Duration(h.delay.Load()))
		return next(ctx, cmds)
	}
}

func TestThrottleCallsAreBoundedByStoreTimeout(t *testing.T) {
	_, rdb := newTestRedis(t)
	hook := &stallHook{}
	rdb.AddHook(hook)

	cfg := testConfig()
	cfg.Timeouts.Store = 50 * time.Millisecond
	env := newTestEnv(t, cfg, withRedis(rdb))
	ctx := context.Background()
	_, code := env.signup(t, "a@x.com", "Ann", "pw123")
	hook.delay.Store(int64(500 * time.Millisecond))

	_, err := env.engine.Login(ctx, "a@x.com", "pw123")
	if !errors.Is(err, ErrRateLimited) || !errors.Is(err, ErrDependencyTimeout) {
		t.Fatalf("expected login to fail closed with ErrDependencyTimeout, got %v", err)
	}
	if err := env.engine.VerifyOTP(ctx, "a@x.com", code); !errors.Is(err, ErrDependencyTimeout) {
		t.Fatalf("expected code throttle to time out, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricDependencyTimeout]; got < 2 {
		t.Fatalf("expected dependency timeouts to be counted, got %d", got)
	}
}

func TestLoginUpgradesOutdatedHash(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	env.signup(t, "a@x.com", "Ann", "pw123")

	weak, err := password.NewArgon2(password.Config{
		Memory:      8192,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	oldHash, err := weak.Hash("pw123")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	acc := env.store.get(t, "a@x.com")
	acc.PasswordHash = oldHash
	if err := env.store.Update(ctx, acc.ID, acc); err != nil {
		t.Fatalf("seed update failed: %v", err)
	}

	if _, err := env.engine.Login(ctx, "a@x.com", "pw123"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if env.store.get(t, "a@x.com").PasswordHash == oldHash {
		t.Fatal("expected password hash to be upgraded")
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricPasswordHashUpgraded]; got != 1 {
		t.Fatalf("expected upgrade metric 1, got %d", got)
	}
	if _, err := env.engine.Login(ctx, "a@x.com", "pw123"); err != nil {
		t.Fatalf("Login with upgraded hash failed: %v", err)
	}
}

func TestLoginConcurrentUpdateSurfaces(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	env.signup(t, "a@x.com", "Ann", "pw123")

	stale := env.store.get(t, "a@x.com")
	if _, err := env.engine.Login(ctx, "a@x.com", "pw123"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := env.store.Update(ctx, stale.ID, stale); !errors.Is(err, ErrConcurrentUpdate) {
		t.Fatalf("expected stale write to be rejected, got %v", err)
	}
}

func TestValidateAccess(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	signup, code := env.signup(t, "a@x.com", "Ann", "pw123")
	if err := env.engine.VerifyOTP(ctx, "a@x.com", code); err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}

	if _, err := env.engine.ValidateAccess(ctx, ""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	if _, err := env.engine.ValidateAccess(ctx, "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := env.engine.ValidateAccess(ctx, signup.Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected refresh token to be rejected as access token, got %v", err)
	}

	login, err := env.engine.Login(ctx, "a@x.com", "pw123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	res, err := env.engine.ValidateAccess(ctx, login.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess failed: %v", err)
	}
	if !res.Verified || res.AccountID != signup.AccountID || res.TokenID == "" {
		t.Fatalf("unexpected access result %+v", res)
	}
	if want := env.clock.Now().Add(15 * time.Minute); !res.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, res.ExpiresAt)
	}

	env.clock.Advance(20 * time.Minute)
	if _, err := env.engine.ValidateAccess(ctx, login.Tokens.AccessToken); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	env.signup(t, "a@x.com", "Ann", "pw123")

	login, err := env.engine.Login(ctx, "a@x.com", "pw123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := env.engine.Logout(ctx, ""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	if err := env.engine.Logout(ctx, login.Tokens.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if env.store.get(t, "a@x.com").RefreshTokenHash != "" {
		t.Fatal("expected refresh digest to be cleared")
	}
	if _, err := env.engine.RefreshToken(ctx, login.Tokens.RefreshToken); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound after logout, got %v", err)
	}
	if err := env.engine.Logout(ctx, login.Tokens.RefreshToken); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected second logout to fail with ErrAccountNotFound, got %v", err)
	}
}

package authcore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSignupThenVerifyScenario(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	res, code := env.signup(t, "a@x.com", "Ann", "pw123")
	if res.AccountID == "" || res.Tokens.AccessToken == "" || res.Tokens.RefreshToken == "" {
		t.Fatalf("expected account id and token pair, got %+v", res)
	}
	if !res.Delivery.Sent {
		t.Fatalf("expected otp delivery, got %+v", res.Delivery)
	}

	acc := env.store.get(t, "a@x.com")
	if acc.Verified {
		t.Fatal("expected new account to be unverified")
	}
	if acc.OTP == nil || acc.OTP.Purpose != OTPVerification {
		t.Fatalf("expected pending verification code, got %+v", acc.OTP)
	}
	if acc.OTP.CodeHash == code {
		t.Fatal("expected stored code to be hashed")
	}
	if acc.PasswordHash == "" || acc.PasswordHash == "pw123" {
		t.Fatal("expected hashed password")
	}
	if acc.RefreshTokenHash == "" || acc.RefreshTokenHash == res.Tokens.RefreshToken {
		t.Fatal("expected refresh token digest to be stored")
	}

	if err := env.engine.VerifyOTP(ctx, "a@x.com", wrongCode(code)); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP, got %v", err)
	}
	if env.store.get(t, "a@x.com").Verified {
		t.Fatal("expected account to stay unverified after wrong code")
	}

	if err := env.engine.VerifyOTP(ctx, "a@x.com", code); err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}
	acc = env.store.get(t, "a@x.com")
	if !acc.Verified || acc.OTP != nil {
		t.Fatalf("expected verified account with cleared code, got verified=%v otp=%+v", acc.Verified, acc.OTP)
	}
}

func TestSignupAccessTokenReferencesCreatedAccount(t *testing.T) {
	env := newTestEnv(t, testConfig())

	res, _ := env.signup(t, "b@x.com", "Bea", "secret-1")
	claims, err := env.engine.ValidateAccess(context.Background(), res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess failed: %v", err)
	}
	if claims.AccountID != res.AccountID || claims.Email != "b@x.com" || claims.Verified {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestSignupDuplicateCreatesNothing(t *testing.T) {
	tests := []struct {
		name  string
		email string
		user  string
	}{
		{name: "same email", email: "a@x.com", user: "Other"},
		{name: "same email different case", email: "A@X.com", user: "Other"},
		{name: "same name", email: "other@x.com", user: "Ann"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, testConfig())
			env.signup(t, "a@x.com", "Ann", "pw123")
			sentBefore := env.notifier.total()

			res, err := env.engine.Signup(context.Background(), tt.email, tt.user, "pw456")
			if !errors.Is(err, ErrDuplicateAccount) {
				t.Fatalf("expected ErrDuplicateAccount, got %v", err)
			}
			if res.Tokens.AccessToken != "" || res.AccountID != "" {
				t.Fatalf("expected no tokens on duplicate, got %+v", res)
			}
			if env.store.count() != 1 {
				t.Fatalf("expected 1 account, got %d", env.store.count())
			}
			if env.notifier.total() != sentBefore {
				t.Fatal("expected no notification on duplicate")
			}
			if got := env.engine.MetricsSnapshot().Counters[MetricSignupDuplicate]; got != 1 {
				t.Fatalf("expected duplicate metric 1, got %d", got)
			}
		})
	}
}

func TestSignupRejectsInvalidInput(t *testing.T) {
	cfg := testConfig()
	cfg.Password.MinLength = 5
	env := newTestEnv(t, cfg)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		user     string
		password string
		want     error
	}{
		{name: "empty email", email: "", user: "Ann", password: "pw123", want: ErrInvalidInput},
		{name: "malformed email", email: "not-an-email", user: "Ann", password: "pw123", want: ErrInvalidInput},
		{name: "display form email", email: "Ann <a@x.com>", user: "Ann", password: "pw123", want: ErrInvalidInput},
		{name: "blank name", email: "a@x.com", user: "   ", password: "pw123", want: ErrInvalidInput},
		{name: "long name", email: "a@x.com", user: strings.Repeat("n", maxNameLength+1), password: "pw123", want: ErrInvalidInput},
		{name: "short password", email: "a@x.com", user: "Ann", password: "pw1", want: ErrPasswordPolicy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.engine.Signup(ctx, tt.email, tt.user, tt.password); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if env.store.count() != 0 {
		t.Fatalf("expected no accounts, got %d", env.store.count())
	}
}

func TestSignupNotificationBestEffort(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.notifier.err = errBackend

	res, err := env.engine.Signup(context.Background(), "a@x.com", "Ann", "pw123")
	if err != nil {
		t.Fatalf("expected best-effort signup to succeed, got %v", err)
	}
	if res.Delivery.Sent || !errors.Is(res.Delivery.Err, ErrNotificationFailed) {
		t.Fatalf("expected failed delivery report, got %+v", res.Delivery)
	}
	if res.Tokens.AccessToken == "" {
		t.Fatal("expected tokens despite failed delivery")
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricNotificationFailure]; got != 1 {
		t.Fatalf("expected notification failure metric 1, got %d", got)
	}
}

func TestSignupNotificationRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Notification.Policy = NotifyRequired
	env := newTestEnv(t, cfg)
	env.notifier.err = errBackend

	res, err := env.engine.Signup(context.Background(), "a@x.com", "Ann", "pw123")
	if !errors.Is(err, ErrNotificationFailed) {
		t.Fatalf("expected ErrNotificationFailed, got %v", err)
	}
	if !errors.Is(err, errBackend) {
		t.Fatalf("expected cause to be kept, got %v", err)
	}
	if res.AccountID == "" {
		t.Fatal("expected account id of persisted account")
	}
	// The account stays persisted; a later resend can deliver a new code.
	if env.store.count() != 1 {
		t.Fatalf("expected persisted account, got %d", env.store.count())
	}
}

func TestSignupNotificationTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Notification.Policy = NotifyRequired
	cfg.Timeouts.Notification = 30 * time.Millisecond
	env := newTestEnv(t, cfg)
	env.notifier.delay = 300 * time.Millisecond

	start := time.Now()
	_, err := env.engine.Signup(context.Background(), "a@x.com", "Ann", "pw123")
	if !errors.Is(err, ErrDependencyTimeout) || !errors.Is(err, ErrNotificationFailed) {
		t.Fatalf("expected timeout notification failure, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Fatalf("expected bounded wait, took %v", elapsed)
	}
}

func TestSignupStoreTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Timeouts.Store = 20 * time.Millisecond
	env := newTestEnv(t, cfg)
	env.store.setDelay(200 * time.Millisecond)

	_, err := env.engine.Signup(context.Background(), "a@x.com", "Ann", "pw123")
	if !errors.Is(err, ErrDependencyTimeout) {
		t.Fatalf("expected ErrDependencyTimeout, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricDependencyTimeout]; got == 0 {
		t.Fatal("expected dependency timeout metric")
	}
}

func TestSignupStoreFailureWrapped(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.store.setFailure(errBackend)

	_, err := env.engine.Signup(context.Background(), "a@x.com", "Ann", "pw123")
	if !errors.Is(err, ErrStoreUnavailable) || !errors.Is(err, errBackend) {
		t.Fatalf("expected wrapped store failure, got %v", err)
	}
}

func TestSignupCanceledContext(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := env.engine.Signup(ctx, "a@x.com", "Ann", "pw123"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if env.store.count() != 0 {
		t.Fatal("expected no account after cancellation")
	}
}

func TestSignupRetryCompletesPendingAccount(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	env.store.failUpdates(1, errBackend)

	failed, err := env.engine.Signup(ctx, "a@x.com", "Ann", "pw123")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if failed.AccountID == "" || env.store.count() != 1 || env.notifier.total() != 0 {
		t.Fatalf("expected created account without delivery, got %+v (accounts=%d sent=%d)", failed, env.store.count(), env.notifier.total())
	}

	for _, other := range []struct{ email, name, password string }{
		{email: "a@x.com", name: "Ann", password: "other-pw"},
		{email: "a@x.com", name: "Anna", password: "pw123"},
		{email: "b@x.com", name: "Ann", password: "pw123"},
	} {
		if _, err := env.engine.Signup(ctx, other.email, other.name, other.password); !errors.Is(err, ErrDuplicateAccount) {
			t.Fatalf("Signup(%q, %q): expected ErrDuplicateAccount, got %v", other.email, other.name, err)
		}
	}

	res, code := env.signup(t, "a@x.com", "Ann", "pw123")
	if res.AccountID != failed.AccountID || env.store.count() != 1 {
		t.Fatalf("expected the pending account to be completed, got %+v (accounts=%d)", res, env.store.count())
	}
	if res.Tokens.AccessToken == "" || res.Tokens.RefreshToken == "" || !res.Delivery.Sent {
		t.Fatalf("expected tokens and delivery, got %+v", res)
	}
	if err := env.engine.VerifyOTP(ctx, "a@x.com", code); err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}

	if _, err := env.engine.Signup(ctx, "a@x.com", "Ann", "pw123"); !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected completed account to be a duplicate, got %v", err)
	}
}

package authcore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/MrEthical07/authcore/jwt"
)

// signingPair returns two engines over one store and notifier. signer holds
// the Ed25519 private key; verifier can only check tokens.
func signingPair(t *testing.T) (signer, verifier *Engine, store *fakeStore, notifier *fakeNotifier) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	cfg := testConfig()
	cfg.JWT.SigningMethod = "ed25519"
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub

	verifyOnly, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.MethodEd25519,
		PublicKey:     pub,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	store = newFakeStore()
	notifier = &fakeNotifier{}
	build := func(b *Builder) *Engine {
		engine, err := b.WithConfig(cfg).WithAccountStore(store).WithNotifier(notifier).Build()
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		t.Cleanup(engine.Close)
		return engine
	}
	return build(New()), build(New().WithTokenIssuer(verifyOnly)), store, notifier
}

func TestIssuingOperationsReportSigningError(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		run  func(t *testing.T, signer, verifier *Engine) error
	}{
		{
			name: "login",
			run: func(t *testing.T, signer, verifier *Engine) error {
				if _, err := signer.Signup(ctx, "a@x.com", "Ann", "pw123"); err != nil {
					t.Fatalf("Signup failed: %v", err)
				}
				_, err := verifier.Login(ctx, "a@x.com", "pw123")
				return err
			},
		},
		{
			name: "refresh",
			run: func(t *testing.T, signer, verifier *Engine) error {
				res, err := signer.Signup(ctx, "a@x.com", "Ann", "pw123")
				if err != nil {
					t.Fatalf("Signup failed: %v", err)
				}
				_, err = verifier.RefreshToken(ctx, res.Tokens.RefreshToken)
				return err
			},
		},
		{
			name: "oauth",
			run: func(t *testing.T, _, verifier *Engine) error {
				_, err := verifier.OAuthCallback(ctx, googleProfile("g@x.com", "sub-1"))
				return err
			},
		},
		{
			name: "signup",
			run: func(t *testing.T, _, verifier *Engine) error {
				_, err := verifier.Signup(ctx, "a@x.com", "Ann", "pw123")
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer, verifier, _, _ := signingPair(t)
			if err := tt.run(t, signer, verifier); !errors.Is(err, ErrSigning) {
				t.Fatalf("expected ErrSigning, got %v", err)
			}
		})
	}
}

func TestSignupAfterSigningFailureCanBeRetried(t *testing.T) {
	signer, verifier, store, notifier := signingPair(t)
	ctx := context.Background()

	failed, err := verifier.Signup(ctx, "a@x.com", "Ann", "pw123")
	if !errors.Is(err, ErrSigning) {
		t.Fatalf("expected ErrSigning, got %v", err)
	}
	if failed.AccountID == "" || failed.Tokens.AccessToken != "" {
		t.Fatalf("expected account id without tokens, got %+v", failed)
	}
	if notifier.total() != 0 {
		t.Fatal("expected no code to be sent for a failed signup")
	}

	if _, err := verifier.Signup(ctx, "a@x.com", "Ann", "pw123"); !errors.Is(err, ErrSigning) {
		t.Fatalf("expected retry to report ErrSigning again, got %v", err)
	}

	res, err := signer.Signup(ctx, "a@x.com", "Ann", "pw123")
	if err != nil {
		t.Fatalf("expected retry with a working signer to succeed, got %v", err)
	}
	if res.AccountID != failed.AccountID || store.count() != 1 {
		t.Fatalf("expected the pending account to be completed, got %+v (accounts=%d)", res, store.count())
	}
	if err := signer.VerifyOTP(ctx, "a@x.com", notifier.last(t, "otp", "a@x.com")); err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}
}

func TestOAuthCallbackAfterSigningFailureCanBeRetried(t *testing.T) {
	signer, verifier, store, _ := signingPair(t)
	ctx := context.Background()

	if _, err := verifier.OAuthCallback(ctx, googleProfile("g@x.com", "sub-1")); !errors.Is(err, ErrSigning) {
		t.Fatalf("expected ErrSigning, got %v", err)
	}
	res, err := signer.OAuthCallback(ctx, googleProfile("g@x.com", "sub-1"))
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if res.Tokens.RefreshToken == "" || store.count() != 1 {
		t.Fatalf("unexpected retry result %+v (accounts=%d)", res, store.count())
	}
}

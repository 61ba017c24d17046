package authcore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorResponseStatus(t *testing.T) {
	tests := []struct {
		op   Operation
		err  error
		want int
	}{
		{op: OpSignup, err: ErrDuplicateAccount, want: http.StatusConflict},
		{op: OpLogin, err: ErrAccountNotFound, want: http.StatusNotFound},
		{op: OpLogin, err: ErrInvalidCredentials, want: http.StatusUnauthorized},
		{op: OpVerifyOTP, err: ErrInvalidOTP, want: http.StatusBadRequest},
		{op: OpResetPassword, err: ErrInvalidResetCode, want: http.StatusBadRequest},
		{op: OpRefreshToken, err: ErrMissingToken, want: http.StatusBadRequest},
		{op: OpRefreshToken, err: ErrAccountNotFound, want: http.StatusUnauthorized},
		{op: OpRefreshToken, err: errors.Join(ErrExpiredToken, errors.New("exp")), want: http.StatusUnauthorized},
		{op: OpValidateAccess, err: ErrMissingToken, want: http.StatusUnauthorized},
		{op: OpLogin, err: ErrSigning, want: http.StatusInternalServerError},
		{op: OpOAuthCallback, err: ErrProviderAuthFailed, want: http.StatusUnauthorized},
		{op: OpSignup, err: errors.Join(ErrNotificationFailed, ErrDependencyTimeout), want: http.StatusGatewayTimeout},
		{op: OpSignup, err: ErrNotificationFailed, want: http.StatusBadGateway},
		{op: OpLogin, err: ErrRateLimited, want: http.StatusTooManyRequests},
		{op: OpSignup, err: ErrPasswordPolicy, want: http.StatusBadRequest},
		{op: OpSignup, err: fmt.Errorf("wrapped: %w", ErrStoreUnavailable), want: http.StatusServiceUnavailable},
		{op: OpLogin, err: ErrConcurrentUpdate, want: http.StatusConflict},
		{op: OpLogin, err: errors.New("unexpected"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%v", tt.op, tt.err), func(t *testing.T) {
			got := ErrorResponse(tt.op, tt.err, false)
			if got.Status != tt.want {
				t.Fatalf("expected status %d, got %d (%q)", tt.want, got.Status, got.Message)
			}
			if got.OK() {
				t.Fatal("expected error response not to be OK")
			}
		})
	}
}

func TestErrorResponseMasksEnumeration(t *testing.T) {
	loginMissing := ErrorResponse(OpLogin, ErrAccountNotFound, true)
	loginWrong := ErrorResponse(OpLogin, ErrInvalidCredentials, true)
	if loginMissing != loginWrong {
		t.Fatalf("expected identical masked login responses, got %+v and %+v", loginMissing, loginWrong)
	}

	if r := ErrorResponse(OpResendOTP, ErrAccountNotFound, true); r != ResendOTPResponse(Delivery{Sent: true}) {
		t.Fatalf("expected masked resend to look like success, got %+v", r)
	}
	if r := ErrorResponse(OpRequestPasswordReset, ErrAccountNotFound, true); r != PasswordResetRequestResponse(Delivery{Sent: true}) {
		t.Fatalf("expected masked reset request to look like success, got %+v", r)
	}
	if r := ErrorResponse(OpVerifyOTP, ErrAccountNotFound, true); r != ErrorResponse(OpVerifyOTP, ErrInvalidOTP, true) {
		t.Fatalf("expected masked verify to look like wrong code, got %+v", r)
	}
	if r := ErrorResponse(OpResetPassword, ErrAccountNotFound, true); r != ErrorResponse(OpResetPassword, ErrInvalidResetCode, true) {
		t.Fatalf("expected masked reset to look like wrong code, got %+v", r)
	}

	unmasked := ErrorResponse(OpLogin, ErrAccountNotFound, false)
	if unmasked == loginWrong {
		t.Fatal("expected unmasked responses to differ")
	}
}

func TestSuccessResponses(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	signup, err := env.engine.Signup(ctx, "a@x.com", "Ann", "pw123")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	r := SignupResponse(signup)
	if r.Status != http.StatusCreated || r.AccessToken != signup.Tokens.AccessToken {
		t.Fatalf("unexpected signup response %+v", r)
	}

	welcome, err := env.engine.OAuthCallback(ctx, googleProfile("g@x.com", "s"))
	if err != nil {
		t.Fatalf("OAuthCallback failed: %v", err)
	}
	if r := OAuthResponse(welcome); r.Status != http.StatusCreated || r.Message != "Welcome Gina Gale" {
		t.Fatalf("unexpected welcome response %+v", r)
	}
	back, err := env.engine.OAuthCallback(ctx, googleProfile("g@x.com", "s"))
	if err != nil {
		t.Fatalf("OAuthCallback failed: %v", err)
	}
	if r := OAuthResponse(back); r.Status != http.StatusOK || r.Message != "Welcome Again Gina Gale" {
		t.Fatalf("unexpected welcome back response %+v", r)
	}
}

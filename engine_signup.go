package authcore

import (
	"context"
	"errors"
)

// Signup registers a new unverified account and returns its first token
// pair.
//
// Signup fails with ErrDuplicateAccount when any account holds the email or
// the name; nothing is created and no token is issued in that case. The
// account is created before tokens referencing its ID are signed. The
// verification code is dispatched last; how a failed dispatch affects the
// result depends on Config.Notification.Policy.
//
// An attempt that created the account but failed before its tokens were
// stored can be repeated with the same email, name and password: the
// pending account is completed instead of being reported as a duplicate.
func (e *Engine) Signup(ctx context.Context, email, name, password string) (SignupResult, error) {
	if err := e.ready(); err != nil {
		return SignupResult{}, err
	}

	email = normalizeEmail(email)
	name = normalizeName(name)
	if !validEmail(email) || !validName(name) {
		return SignupResult{}, e.fail(ctx, MetricSignupFailure, auditEventSignupFailure, "", ErrInvalidInput, "invalid_input")
	}
	if err := e.checkPasswordPolicy(password); err != nil {
		return SignupResult{}, e.fail(ctx, MetricSignupFailure, auditEventSignupFailure, "", err, "password_policy")
	}

	existing, err := e.findByEmailOrName(ctx, email, name)
	switch {
	case err == nil:
		if e.pendingSignup(existing, email, name, password) {
			return e.resumeSignup(ctx, existing)
		}
		e.metricInc(MetricSignupDuplicate)
		e.emitAudit(ctx, auditEventSignupDuplicate, false, existing.ID, ErrDuplicateAccount, nil)
		return SignupResult{}, ErrDuplicateAccount
	case !errors.Is(err, ErrAccountNotFound):
		return SignupResult{}, e.fail(ctx, MetricSignupFailure, auditEventSignupFailure, "", err, "lookup_failed")
	}

	hash, err := e.hasher.Hash(password)
	if err != nil {
		return SignupResult{}, e.fail(ctx, MetricSignupFailure, auditEventSignupFailure, "", err, "hash_failed")
	}

	code, state, err := e.newCode(OTPVerification)
	if err != nil {
		return SignupResult{}, e.fail(ctx, MetricSignupFailure, auditEventSignupFailure, "", err, "code_generation")
	}

	acc := &Account{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		OTP:          state,
	}
	if err := e.createAccount(ctx, acc); err != nil {
		if errors.Is(err, ErrDuplicateAccount) {
			e.metricInc(MetricSignupDuplicate)
			e.emitAudit(ctx, auditEventSignupDuplicate, false, "", err, nil)
			return SignupResult{}, err
		}
		return SignupResult{}, e.fail(ctx, MetricSignupFailure, auditEventSignupFailure, "", err, "create_failed")
	}
	return e.completeSignup(ctx, acc, code, false)
}

// pendingSignup reports whether acc was left behind by a signup that failed
// after the create step, and whether the caller is the one who started it.
// Such an account is unverified, was never handed a refresh token, and
// holds the same email, name and password.
func (e *Engine) pendingSignup(acc *Account, email, name, password string) bool {
	if acc.Verified || acc.RefreshTokenHash != "" || acc.OAuthID != "" || acc.PasswordHash == "" {
		return false
	}
	if acc.Email != email || acc.Name != name {
		return false
	}
	ok, err := e.hasher.Verify(password, acc.PasswordHash)
	return err == nil && ok
}

// resumeSignup replaces the undelivered code of a pending account and
// completes it.
func (e *Engine) resumeSignup(ctx context.Context, acc *Account) (SignupResult, error) {
	code, state, err := e.newCode(OTPVerification)
	if err != nil {
		return SignupResult{}, e.fail(ctx, MetricSignupFailure, auditEventSignupFailure, acc.ID, err, "code_generation")
	}
	acc.OTP = state
	return e.completeSignup(ctx, acc, code, true)
}

// completeSignup issues the token pair for a created account, persists it
// and dispatches code.
func (e *Engine) completeSignup(ctx context.Context, acc *Account, code string, resumed bool) (SignupResult, error) {
	tokens, err := e.issuePair(ctx, acc)
	if err != nil {
		return SignupResult{AccountID: acc.ID}, e.fail(ctx, MetricSignupFailure, auditEventSignupFailure, acc.ID, err, "issue_tokens")
	}
	if err := e.updateAccount(ctx, acc); err != nil {
		return SignupResult{AccountID: acc.ID}, e.fail(ctx, MetricSignupFailure, auditEventSignupFailure, acc.ID, err, "store_refresh")
	}

	delivery, err := e.deliver(ctx, "otp", acc, func(ctx context.Context) error {
		return e.notifier.SendOTPEmail(ctx, acc.Email, code)
	})
	if err != nil {
		return SignupResult{AccountID: acc.ID, Delivery: delivery}, e.fail(ctx, MetricSignupFailure, auditEventSignupFailure, acc.ID, err, "notification")
	}

	e.metricInc(MetricSignupSuccess)
	e.emitAudit(ctx, auditEventSignupSuccess, true, acc.ID, nil, func() map[string]string {
		if !resumed {
			return nil
		}
		return map[string]string{"resumed": "true"}
	})

	return SignupResult{
		AccountID: acc.ID,
		Tokens:    tokens,
		Delivery:  delivery,
	}, nil
}

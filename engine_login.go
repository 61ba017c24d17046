package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/internal/rate"
)

// Login authenticates email and password and rotates the account's refresh
// token.
//
// Login returns ErrAccountNotFound when no account holds the email and
// ErrInvalidCredentials when the password does not match or the account has
// no password. The two are distinct here; ErrorResponse can mask the
// difference at the wire boundary. When throttling is enabled a spent
// failure budget yields ErrRateLimited.
func (e *Engine) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if err := e.ready(); err != nil {
		return LoginResult{}, err
	}
	defer e.observe(MetricLoginLatency, e.now())

	email = normalizeEmail(email)
	if !validEmail(email) {
		return LoginResult{}, e.fail(ctx, MetricLoginFailure, auditEventLoginFailure, "", ErrInvalidInput, "invalid_input")
	}

	ip := clientIPFromContext(ctx)
	if e.limiter != nil {
		err := e.limiterCall(ctx, func(ctx context.Context) error {
			return e.limiter.CheckLogin(ctx, email, ip)
		})
		if err != nil {
			return LoginResult{}, e.loginRateLimited(ctx, "", email, err)
		}
	}

	acc, err := e.findByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			return LoginResult{}, e.fail(ctx, MetricLoginFailure, auditEventLoginFailure, "", err, "lookup_failed")
		}
		e.dummyVerify(password)
		return LoginResult{}, e.loginFailed(ctx, "", email, ip, err, "account_not_found")
	}

	if acc.PasswordHash == "" {
		e.dummyVerify(password)
		return LoginResult{}, e.loginFailed(ctx, acc.ID, email, ip, ErrInvalidCredentials, "no_password")
	}
	ok, err := e.hasher.Verify(password, acc.PasswordHash)
	if err != nil || !ok {
		return LoginResult{}, e.loginFailed(ctx, acc.ID, email, ip, ErrInvalidCredentials, "password_mismatch")
	}

	if e.config.Password.UpgradeOnLogin {
		e.upgradeHash(ctx, acc, password)
	}

	tokens, err := e.issuePair(ctx, acc)
	if err != nil {
		return LoginResult{}, e.fail(ctx, MetricLoginFailure, auditEventLoginFailure, acc.ID, err, "issue_tokens")
	}
	if err := e.updateAccount(ctx, acc); err != nil {
		return LoginResult{}, e.fail(ctx, MetricLoginFailure, auditEventLoginFailure, acc.ID, err, "store_refresh")
	}

	if e.limiter != nil {
		err := e.limiterCall(ctx, func(ctx context.Context) error {
			return e.limiter.ResetLogin(ctx, email)
		})
		if err != nil {
			e.logger.WarnContext(ctx, "login throttle reset failed", "error", err)
		}
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, acc.ID, nil, nil)

	return LoginResult{
		AccountID: acc.ID,
		Name:      acc.Name,
		Verified:  acc.Verified,
		Tokens:    tokens,
	}, nil
}

// upgradeHash rehashes password with the current parameters when the stored
// digest is outdated. Failures keep the old digest.
func (e *Engine) upgradeHash(ctx context.Context, acc *Account, password string) {
	needs, err := e.hasher.NeedsUpgrade(acc.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := e.hasher.Hash(password)
	if err != nil {
		e.logger.WarnContext(ctx, "password rehash failed", "account_id", acc.ID, "error", err)
		return
	}
	acc.PasswordHash = hash
	e.metricInc(MetricPasswordHashUpgraded)
}

// loginFailed counts a failed attempt against the throttle and records it.
// A failure that spends the budget is reported as ErrRateLimited.
func (e *Engine) loginFailed(ctx context.Context, accountID, email, ip string, err error, reason string) error {
	if e.limiter != nil {
		incErr := e.limiterCall(ctx, func(ctx context.Context) error {
			return e.limiter.IncrementLogin(ctx, email, ip)
		})
		if incErr != nil {
			return e.loginRateLimited(ctx, accountID, email, incErr)
		}
	}
	return e.fail(ctx, MetricLoginFailure, auditEventLoginFailure, accountID, err, reason)
}

func (e *Engine) loginRateLimited(ctx context.Context, accountID, email string, cause error) error {
	e.metricInc(MetricLoginRateLimited)
	e.emitAudit(ctx, auditEventLoginRateLimited, false, accountID, ErrRateLimited, func() map[string]string {
		return map[string]string{
			"identifier": email,
		}
	})
	e.emitRateLimit(ctx, "login", email)
	if errors.Is(cause, rate.ErrRateLimited) {
		return ErrRateLimited
	}
	return errors.Join(ErrRateLimited, cause)
}

// Logout revokes the refresh token. Access tokens already issued stay
// valid until they expire.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if refreshToken == "" {
		return ErrMissingToken
	}
	if _, err := e.tokens.ParseRefresh(refreshToken); err != nil {
		return tokenErr(err)
	}

	acc, err := e.findByRefreshToken(ctx, refreshToken)
	if err != nil {
		return err
	}
	acc.RefreshTokenHash = ""
	if err := e.updateAccount(ctx, acc); err != nil {
		return err
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, acc.ID, nil, nil)
	return nil
}

// ValidateAccess verifies an access token and returns its claims. It does
// not consult the account store.
func (e *Engine) ValidateAccess(ctx context.Context, token string) (*AccessResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	defer e.observe(MetricValidateLatency, e.now())

	if token == "" {
		return nil, ErrMissingToken
	}
	if err := ctx.Err(); err != nil {
		return nil, contextErr(err)
	}

	claims, err := e.tokens.ParseAccess(token)
	if err != nil {
		return nil, tokenErr(err)
	}

	res := &AccessResult{
		AccountID: claims.AccountID,
		Email:     claims.Email,
		Verified:  claims.Verified,
		TokenID:   claims.ID,
	}
	if claims.ExpiresAt != nil {
		res.ExpiresAt = claims.ExpiresAt.Time
	}
	return res, nil
}

package authcore

import (
	"context"

	"github.com/MrEthical07/authcore/internal/rate"
)

// RequestPasswordReset stores a reset code as the account's pending code
// and dispatches it by email. A pending verification code is replaced.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (Delivery, error) {
	if err := e.ready(); err != nil {
		return Delivery{}, err
	}

	email = normalizeEmail(email)
	if !validEmail(email) {
		return Delivery{}, e.fail(ctx, MetricPasswordResetFailure, auditEventPasswordResetRequest, "", ErrInvalidInput, "invalid_input")
	}

	acc, err := e.findByEmail(ctx, email)
	if err != nil {
		return Delivery{}, e.fail(ctx, MetricPasswordResetFailure, auditEventPasswordResetRequest, "", err, "lookup_failed")
	}

	code, state, err := e.newCode(OTPPasswordReset)
	if err != nil {
		return Delivery{}, e.fail(ctx, MetricPasswordResetFailure, auditEventPasswordResetRequest, acc.ID, err, "code_generation")
	}
	acc.OTP = state
	if err := e.updateAccount(ctx, acc); err != nil {
		return Delivery{}, e.fail(ctx, MetricPasswordResetFailure, auditEventPasswordResetRequest, acc.ID, err, "store_update")
	}

	delivery, err := e.deliver(ctx, "password_reset", acc, func(ctx context.Context) error {
		return e.notifier.SendPasswordResetEmail(ctx, acc.Email, code)
	})
	if err != nil {
		return delivery, e.fail(ctx, MetricPasswordResetFailure, auditEventPasswordResetRequest, acc.ID, err, "notification")
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, acc.ID, nil, nil)
	return delivery, nil
}

// ResetPassword replaces the password of the account holding email when
// code is its live reset code.
//
// On success the pending code is cleared, the login failure counter is
// reset and, with Config.Security.RevokeRefreshOnReset, the stored refresh
// token is revoked. Verification codes are never accepted here.
func (e *Engine) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}

	email = normalizeEmail(email)
	if !validEmail(email) {
		return e.fail(ctx, MetricPasswordResetFailure, auditEventPasswordResetConfirm, "", ErrInvalidInput, "invalid_input")
	}
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return e.fail(ctx, MetricPasswordResetFailure, auditEventPasswordResetConfirm, "", err, "password_policy")
	}
	if err := e.throttleCode(ctx, rate.ScopeReset, email); err != nil {
		return e.fail(ctx, MetricPasswordResetFailure, auditEventPasswordResetConfirm, "", err, "rate_limited")
	}

	acc, err := e.findByEmail(ctx, email)
	if err != nil {
		return e.fail(ctx, MetricPasswordResetFailure, auditEventPasswordResetConfirm, "", err, "lookup_failed")
	}
	if !e.codeMatches(acc.OTP, OTPPasswordReset, code) {
		e.recordCodeFailure(ctx, rate.ScopeReset, email)
		return e.fail(ctx, MetricPasswordResetFailure, auditEventPasswordResetConfirm, acc.ID, ErrInvalidResetCode, "code_mismatch")
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return e.fail(ctx, MetricPasswordResetFailure, auditEventPasswordResetConfirm, acc.ID, err, "hash_failed")
	}
	acc.PasswordHash = hash
	acc.OTP = nil
	if e.config.Security.RevokeRefreshOnReset {
		acc.RefreshTokenHash = ""
	}
	if err := e.updateAccount(ctx, acc); err != nil {
		return e.fail(ctx, MetricPasswordResetFailure, auditEventPasswordResetConfirm, acc.ID, err, "store_update")
	}

	e.clearCodeFailures(ctx, rate.ScopeReset, email)
	if e.limiter != nil {
		err := e.limiterCall(ctx, func(ctx context.Context) error {
			return e.limiter.ResetLogin(ctx, email)
		})
		if err != nil {
			e.logger.WarnContext(ctx, "login throttle reset failed", "error", err)
		}
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, acc.ID, nil, nil)
	return nil
}

package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/internal/rate"
)

// VerifyOTP confirms the account's email with the pending verification
// code.
//
// A correct, unexpired code clears the pending code and marks the account
// verified. A wrong code leaves the pending code in place and fails with
// ErrInvalidOTP, as does an absent, expired or reset-purpose code.
func (e *Engine) VerifyOTP(ctx context.Context, email, code string) error {
	if err := e.ready(); err != nil {
		return err
	}

	email = normalizeEmail(email)
	if !validEmail(email) {
		return e.fail(ctx, MetricOTPVerifyFailure, auditEventOTPVerifyFailure, "", ErrInvalidInput, "invalid_input")
	}
	if err := e.throttleCode(ctx, rate.ScopeOTP, email); err != nil {
		return e.fail(ctx, MetricOTPVerifyFailure, auditEventOTPVerifyFailure, "", err, "rate_limited")
	}

	acc, err := e.findByEmail(ctx, email)
	if err != nil {
		return e.fail(ctx, MetricOTPVerifyFailure, auditEventOTPVerifyFailure, "", err, "lookup_failed")
	}

	if !e.codeMatches(acc.OTP, OTPVerification, code) {
		e.recordCodeFailure(ctx, rate.ScopeOTP, email)
		return e.fail(ctx, MetricOTPVerifyFailure, auditEventOTPVerifyFailure, acc.ID, ErrInvalidOTP, "code_mismatch")
	}

	acc.OTP = nil
	acc.Verified = true
	if err := e.updateAccount(ctx, acc); err != nil {
		return e.fail(ctx, MetricOTPVerifyFailure, auditEventOTPVerifyFailure, acc.ID, err, "store_update")
	}
	e.clearCodeFailures(ctx, rate.ScopeOTP, email)

	e.metricInc(MetricOTPVerifySuccess)
	e.emitAudit(ctx, auditEventOTPVerifySuccess, true, acc.ID, nil, nil)
	return nil
}

// ResendOTP replaces the pending code with a fresh verification code and
// dispatches it. Any previously issued code stops matching.
func (e *Engine) ResendOTP(ctx context.Context, email string) (Delivery, error) {
	if err := e.ready(); err != nil {
		return Delivery{}, err
	}

	email = normalizeEmail(email)
	if !validEmail(email) {
		return Delivery{}, ErrInvalidInput
	}

	acc, err := e.findByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			e.logger.WarnContext(ctx, "otp resend lookup failed", "error", err)
		}
		return Delivery{}, err
	}

	code, state, err := e.newCode(OTPVerification)
	if err != nil {
		return Delivery{}, err
	}
	acc.OTP = state
	if err := e.updateAccount(ctx, acc); err != nil {
		return Delivery{}, err
	}

	delivery, err := e.deliver(ctx, "otp", acc, func(ctx context.Context) error {
		return e.notifier.SendOTPEmail(ctx, acc.Email, code)
	})
	if err != nil {
		return delivery, err
	}

	e.metricInc(MetricOTPResend)
	e.emitAudit(ctx, auditEventOTPResend, true, acc.ID, nil, nil)
	return delivery, nil
}

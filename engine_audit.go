package authcore

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventSignupSuccess        = "signup_success"
	auditEventSignupFailure        = "signup_failure"
	auditEventSignupDuplicate      = "signup_duplicate"
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventOTPVerifySuccess     = "otp_verify_success"
	auditEventOTPVerifyFailure     = "otp_verify_failure"
	auditEventOTPResend            = "otp_resend"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshFailure       = "refresh_failure"
	auditEventOAuthAccountCreated  = "oauth_account_created"
	auditEventOAuthLogin           = "oauth_login"
	auditEventOAuthFailure         = "oauth_failure"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordResetConfirm = "password_reset_confirm"
	auditEventLogout               = "logout"
	auditEventNotificationFailure  = "notification_failure"
	auditEventRateLimitTriggered   = "rate_limit_triggered"
)

// AuditErrorCode is the stable error label carried by audit events.
type AuditErrorCode string

const (
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrAccountNotFound    AuditErrorCode = "account_not_found"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrInvalidOTP         AuditErrorCode = "invalid_otp"
	auditErrInvalidResetCode   AuditErrorCode = "invalid_reset_code"
	auditErrMissingToken       AuditErrorCode = "missing_token"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrExpiredToken       AuditErrorCode = "expired_token"
	auditErrSigning            AuditErrorCode = "signing_error"
	auditErrProviderAuth       AuditErrorCode = "provider_auth_failed"
	auditErrTimeout            AuditErrorCode = "dependency_timeout"
	auditErrNotification       AuditErrorCode = "notification_failed"
	auditErrInvalidInput       AuditErrorCode = "invalid_input"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrConcurrentUpdate   AuditErrorCode = "concurrent_update"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrCanceled           AuditErrorCode = "canceled"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string, identifier string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", ErrRateLimited, func() map[string]string {
		return map[string]string{
			"scope":      scope,
			"identifier": identifier,
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	// Timeouts first: a required notification that timed out carries both
	// ErrNotificationFailed and ErrDependencyTimeout.
	switch {
	case errors.Is(err, ErrDependencyTimeout):
		return auditErrTimeout
	case errors.Is(err, ErrDuplicateAccount):
		return auditErrDuplicate
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrInvalidOTP):
		return auditErrInvalidOTP
	case errors.Is(err, ErrInvalidResetCode):
		return auditErrInvalidResetCode
	case errors.Is(err, ErrMissingToken):
		return auditErrMissingToken
	case errors.Is(err, ErrExpiredToken):
		return auditErrExpiredToken
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrSigning):
		return auditErrSigning
	case errors.Is(err, ErrProviderAuthFailed):
		return auditErrProviderAuth
	case errors.Is(err, ErrNotificationFailed):
		return auditErrNotification
	case errors.Is(err, ErrInvalidInput):
		return auditErrInvalidInput
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrConcurrentUpdate):
		return auditErrConcurrentUpdate
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	case errors.Is(err, context.Canceled):
		return auditErrCanceled
	default:
		return auditErrInternal
	}
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observe(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, e.now().Sub(start))
}

// fail records a failed operation and returns err unchanged.
func (e *Engine) fail(ctx context.Context, metric MetricID, eventType, accountID string, err error, reason string) error {
	e.metricInc(metric)
	e.emitAudit(ctx, eventType, false, accountID, err, func() map[string]string {
		return map[string]string{
			"reason": reason,
		}
	})
	return err
}

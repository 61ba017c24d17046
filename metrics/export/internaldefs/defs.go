package internaldefs

import (
	"github.com/MrEthical07/authcore"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricSignupSuccess, Name: "authcore_signup_success_total", Help: "Accounts created by signup."},
	{ID: authcore.MetricSignupDuplicate, Name: "authcore_signup_duplicate_total", Help: "Signups rejected because the email or name is taken."},
	{ID: authcore.MetricSignupFailure, Name: "authcore_signup_failure_total", Help: "Signups failed for other reasons."},
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful password logins."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed password logins."},
	{ID: authcore.MetricLoginRateLimited, Name: "authcore_login_rate_limited_total", Help: "Logins refused by the failure budget."},
	{ID: authcore.MetricOTPVerifySuccess, Name: "authcore_otp_verify_success_total", Help: "Accepted verification codes."},
	{ID: authcore.MetricOTPVerifyFailure, Name: "authcore_otp_verify_failure_total", Help: "Rejected verification codes."},
	{ID: authcore.MetricOTPResend, Name: "authcore_otp_resend_total", Help: "Verification codes reissued."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful token refreshes."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Failed token refreshes."},
	{ID: authcore.MetricRefreshRotated, Name: "authcore_refresh_rotated_total", Help: "Refresh tokens rotated on use."},
	{ID: authcore.MetricOAuthAccountCreated, Name: "authcore_oauth_account_created_total", Help: "Accounts created by an OAuth callback."},
	{ID: authcore.MetricOAuthLogin, Name: "authcore_oauth_login_total", Help: "OAuth logins into existing accounts."},
	{ID: authcore.MetricOAuthFailure, Name: "authcore_oauth_failure_total", Help: "Rejected OAuth callbacks."},
	{ID: authcore.MetricPasswordResetRequest, Name: "authcore_password_reset_request_total", Help: "Password reset codes issued."},
	{ID: authcore.MetricPasswordResetSuccess, Name: "authcore_password_reset_success_total", Help: "Completed password resets."},
	{ID: authcore.MetricPasswordResetFailure, Name: "authcore_password_reset_failure_total", Help: "Failed password resets."},
	{ID: authcore.MetricPasswordHashUpgraded, Name: "authcore_password_hash_upgraded_total", Help: "Password digests rehashed with current parameters."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Refresh tokens revoked by logout."},
	{ID: authcore.MetricNotificationSent, Name: "authcore_notification_sent_total", Help: "Codes handed to the notifier."},
	{ID: authcore.MetricNotificationFailure, Name: "authcore_notification_failure_total", Help: "Codes the notifier failed to deliver."},
	{ID: authcore.MetricDependencyTimeout, Name: "authcore_dependency_timeout_total", Help: "Store or notifier calls that exceeded their bound."},
	{ID: authcore.MetricConcurrentUpdate, Name: "authcore_concurrent_update_total", Help: "Writes rejected by a stale account version."},
	{ID: authcore.MetricRateLimitHit, Name: "authcore_rate_limit_hit_total", Help: "Requests denied by any failure budget."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricLoginLatency, Name: "authcore_login_latency_seconds", Help: "Login latency histogram."},
	{ID: authcore.MetricRefreshLatency, Name: "authcore_refresh_latency_seconds", Help: "Refresh latency histogram."},
	{ID: authcore.MetricValidateLatency, Name: "authcore_validate_latency_seconds", Help: "Access token validation latency histogram."},
}

// HistogramBounds are the upper bounds, in seconds, of the engine buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix are HistogramBounds spelled for instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies up to eight raw bucket counts.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

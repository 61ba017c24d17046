package authcore

import "time"

// SecurityReport summarizes the security-relevant settings of an Engine.
type SecurityReport struct {
	SigningAlgorithm     string
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	RefreshRotateOnUse   bool
	RevokeRefreshOnReset bool
	Argon2               PasswordConfigReport
	OTPLength            int
	OTPAlphanumeric      bool
	OTPTTL               time.Duration
	ResetCodeTTL         time.Duration
	OAuthVerifiedOnly    bool
	NotificationRequired bool
	RateLimitingActive   bool
	IPThrottleActive     bool
	AuditEnabled         bool
}

// PasswordConfigReport summarizes the hashing cost and length policy.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
	MaxLength   int
}

// SecurityReport describes the security posture of the running
// configuration. It contains no key material.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		SigningAlgorithm:     e.config.JWT.SigningMethod,
		AccessTTL:            e.config.JWT.AccessTTL,
		RefreshTTL:           e.config.JWT.RefreshTTL,
		RefreshRotateOnUse:   e.config.JWT.RotateRefreshOnUse,
		RevokeRefreshOnReset: e.config.Security.RevokeRefreshOnReset,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
			MinLength:   e.config.Password.MinLength,
			MaxLength:   e.config.Password.MaxLength,
		},
		OTPLength:            e.config.OTP.Length,
		OTPAlphanumeric:      e.config.OTP.Alphanumeric,
		OTPTTL:               e.config.OTP.TTL,
		ResetCodeTTL:         e.config.OTP.ResetTTL,
		OAuthVerifiedOnly:    e.config.OAuth.RequireVerifiedEmail,
		NotificationRequired: e.config.Notification.Policy == NotifyRequired,
		RateLimitingActive:   e.limiter != nil,
		IPThrottleActive:     e.limiter != nil && e.config.Security.EnableIPThrottle,
		AuditEnabled:         e.config.Audit.Enabled,
	}
}

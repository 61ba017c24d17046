package envconfig

import (
	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/oauth"
)

// AuthConfig derives the engine configuration. The result is validated.
func (s Settings) AuthConfig() (authcore.Config, error) {
	cfg := authcore.DefaultConfig()

	cfg.JWT.SigningMethod = s.JWT.SigningMethod
	cfg.JWT.Issuer = s.JWT.Issuer
	cfg.JWT.Audience = s.JWT.Audience
	cfg.JWT.KeyID = s.JWT.KeyID
	cfg.JWT.AccessTTL = s.JWT.AccessTTL
	cfg.JWT.RefreshTTL = s.JWT.RefreshTTL
	cfg.JWT.Leeway = s.JWT.Leeway
	cfg.JWT.RotateRefreshOnUse = s.JWT.RotateRefresh
	cfg.JWT.RequireIAT = s.JWT.RequireIAT
	cfg.JWT.MaxFutureIAT = s.JWT.MaxFutureIAT
	if s.JWT.PrivateKey != "" {
		cfg.JWT.PrivateKey = []byte(s.JWT.PrivateKey)
	}
	if s.JWT.PublicKey != "" {
		cfg.JWT.PublicKey = []byte(s.JWT.PublicKey)
	}

	cfg.Password.Memory = s.Password.Memory
	cfg.Password.Time = s.Password.Time
	cfg.Password.Parallelism = s.Password.Parallelism
	cfg.Password.MinLength = s.Password.MinLength
	cfg.Password.MaxLength = s.Password.MaxLength

	cfg.OTP.Length = s.OTP.Length
	cfg.OTP.Alphanumeric = s.OTP.Alphanumeric
	cfg.OTP.TTL = s.OTP.TTL
	cfg.OTP.ResetTTL = s.OTP.ResetTTL

	cfg.OAuth.RequireVerifiedEmail = s.Security.RequireVerifiedOAuth

	cfg.Security.RedisPrefix = s.Security.RedisPrefix
	cfg.Security.MaxLoginAttempts = s.Security.MaxLoginAttempts
	cfg.Security.LoginCooldownDuration = s.Security.LoginCooldown
	cfg.Security.MaxCodeAttempts = s.Security.MaxCodeAttempts
	cfg.Security.CodeCooldownDuration = s.Security.CodeCooldown
	cfg.Security.EnableIPThrottle = s.Security.IPThrottle
	cfg.Security.RevokeRefreshOnReset = s.Security.RevokeRefreshOnReset

	policy, err := s.notificationPolicy()
	if err != nil {
		return authcore.Config{}, err
	}
	cfg.Notification.Policy = policy
	cfg.Timeouts.Store = s.StoreTimeout
	cfg.Timeouts.Notification = s.NotifyTimeout

	cfg.Audit.Enabled = s.AuditEnabled
	cfg.Audit.BufferSize = s.AuditBuffer
	cfg.Audit.SinkTimeout = s.AuditTimeout
	cfg.Metrics.Enabled = s.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = s.MetricsEnabled && s.MetricsLatency

	if err := cfg.Validate(); err != nil {
		return authcore.Config{}, err
	}
	return cfg, nil
}

// MailerConfig returns the template settings for notify.NewMailer.
func (s Settings) MailerConfig() notify.MailerConfig {
	return notify.MailerConfig{
		AppName:  s.AppName,
		OTPTTL:   s.OTP.TTL,
		ResetTTL: s.OTP.ResetTTL,
	}
}

// PostmarkConfig returns the Postmark sender settings.
func (s Settings) PostmarkConfig() notify.PostmarkConfig {
	return notify.PostmarkConfig{
		ServerToken:  s.Mail.PostmarkServerToken,
		AccountToken: s.Mail.PostmarkAcctToken,
		From:         s.Mail.From,
		ReplyTo:      s.Mail.ReplyTo,
	}
}

// GoogleConfig returns the Google provider settings and whether Google
// sign-in is enabled.
func (s Settings) GoogleConfig() (oauth.GoogleConfig, bool) {
	if s.Google.ClientID == "" {
		return oauth.GoogleConfig{}, false
	}
	return oauth.GoogleConfig{
		ClientID:     s.Google.ClientID,
		ClientSecret: s.Google.ClientSecret,
		RedirectURL:  s.Google.RedirectURL,
		StateTTL:     s.Google.StateTTL,
	}, true
}

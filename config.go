package authcore

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/password"
)

// Config holds every engine setting. Start from [DefaultConfig] and
// override fields; the Builder validates the result.
type Config struct {
	JWT          JWTConfig
	Password     PasswordConfig
	OTP          OTPConfig
	OAuth        OAuthConfig
	Notification NotificationConfig
	Timeouts     TimeoutConfig
	Security     SecurityConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig carries signing key material and token lifetimes.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte

	// RequireIAT rejects tokens without an iat claim or with one in the
	// future beyond Leeway.
	RequireIAT bool
	// MaxFutureIAT bounds how far in the future iat may lie when
	// RequireIAT is off. Zero selects 10 minutes.
	MaxFutureIAT time.Duration

	// RotateRefreshOnUse issues a new refresh token on every RefreshToken
	// call. When false the refresh token is rotated only by Login and
	// OAuthCallback.
	RotateRefreshOnUse bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id cost parameters and the length policy.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int // bytes
	MaxLength      int // bytes
	UpgradeOnLogin bool
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls verification and reset codes.
type OTPConfig struct {
	Length       int
	Alphanumeric bool
	TTL          time.Duration // verification codes
	ResetTTL     time.Duration // password reset codes
}

// OAuthConfig controls OAuthCallback.
type OAuthConfig struct {
	// RequireVerifiedEmail rejects profiles whose provider has not
	// verified the email address.
	RequireVerifiedEmail bool
}

// NotificationPolicy decides how a failed notification affects the
// operation that triggered it.
type NotificationPolicy int

const (
	// NotifyBestEffort keeps the operation successful and reports the
	// failure in Delivery.
	NotifyBestEffort NotificationPolicy = iota
	// NotifyRequired fails the operation with ErrNotificationFailed. State
	// changes made before the notification stay persisted.
	NotifyRequired
)

// NotificationConfig selects the notification policy.
type NotificationConfig struct {
	Policy NotificationPolicy
}

// TimeoutConfig bounds each call into an adapter. Zero disables the bound.
type TimeoutConfig struct {
	Store        time.Duration
	Notification time.Duration
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds throttling and revocation settings. Throttling is
// active only when the Builder was given a Redis client.
type SecurityConfig struct {
	RevokeRefreshOnReset  bool
	RedisPrefix           string
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
	MaxCodeAttempts       int
	CodeCooldownDuration  time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled     bool
	BufferSize  int
	DropIfFull  bool
	SinkTimeout time.Duration // per sink call, zero for none
}

// MetricsConfig controls in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. Key material is left empty
// and must be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:          15 * time.Minute,
			RefreshTTL:         7 * 24 * time.Hour,
			SigningMethod:      "ed25519",
			Leeway:             30 * time.Second,
			RequireIAT:         true,
			MaxFutureIAT:       10 * time.Minute,
			RotateRefreshOnUse: false,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      1,
			MaxLength:      password.DefaultMaxPasswordBytes,
			UpgradeOnLogin: true,
		},
		OTP: OTPConfig{
			Length:   6,
			TTL:      10 * time.Minute,
			ResetTTL: 10 * time.Minute,
		},
		OAuth: OAuthConfig{
			RequireVerifiedEmail: true,
		},
		Notification: NotificationConfig{
			Policy: NotifyBestEffort,
		},
		Timeouts: TimeoutConfig{
			Store:        3 * time.Second,
			Notification: 10 * time.Second,
		},
		Security: SecurityConfig{
			RevokeRefreshOnReset:  true,
			RedisPrefix:           "authcore",
			EnableIPThrottle:      false,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
			MaxCodeAttempts:       5,
			CodeCooldownDuration:  15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:     false,
			BufferSize:  1024,
			DropIfFull:  true,
			SinkTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting. Errors from several
// sections are not combined.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	// Key material is checked by jwt.NewManager, unless a custom issuer
	// replaces it.
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if c.JWT.MaxFutureIAT < 0 || c.JWT.MaxFutureIAT > 24*time.Hour {
		return errors.New("JWT MaxFutureIAT must be between 0 and 24h")
	}
	if c.JWT.Audience != "" && strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Audience must not be blank")
	}

	// Password
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}

	// OTP
	if c.OTP.Length < 4 || c.OTP.Length > 12 {
		return errors.New("OTP Length must be between 4 and 12")
	}
	if c.OTP.TTL <= 0 || c.OTP.ResetTTL <= 0 {
		return errors.New("OTP TTL and ResetTTL must be > 0")
	}

	// Notification
	if c.Notification.Policy != NotifyBestEffort && c.Notification.Policy != NotifyRequired {
		return errors.New("unsupported notification policy")
	}

	// Timeouts
	if c.Timeouts.Store < 0 || c.Timeouts.Notification < 0 {
		return errors.New("Timeouts must be >= 0")
	}

	// Security
	if c.Security.MaxLoginAttempts <= 0 || c.Security.LoginCooldownDuration <= 0 {
		return errors.New("Security login throttle requires MaxLoginAttempts and LoginCooldownDuration > 0")
	}
	if c.Security.MaxCodeAttempts <= 0 || c.Security.CodeCooldownDuration <= 0 {
		return errors.New("Security code throttle requires MaxCodeAttempts and CodeCooldownDuration > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	if c.Audit.SinkTimeout < 0 {
		return errors.New("Audit SinkTimeout must be >= 0")
	}

	return nil
}

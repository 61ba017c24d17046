package authcore

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/otp"
)

// OTPPurpose binds a stored code to the operation that may consume it.
type OTPPurpose string

const (
	// OTPVerification codes confirm an email address.
	OTPVerification OTPPurpose = "verification"
	// OTPPasswordReset codes authorize a password reset.
	OTPPasswordReset OTPPurpose = "password_reset"
)

// OTPState is the pending code of an account. Only the digest is stored.
type OTPState struct {
	CodeHash string     `json:"code_hash"`
	Purpose  OTPPurpose `json:"purpose"`
	IssuedAt time.Time  `json:"issued_at"`
}

// Account is the persisted user record.
//
// Email is unique across accounts. Verified never goes back to false. At
// most one refresh token is valid at a time: RefreshTokenHash holds its
// SHA-256 hex digest, and an empty value means none. Version is maintained
// by the store and used for optimistic concurrency.
type Account struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	PasswordHash     string    `json:"password_hash,omitempty"`
	Verified         bool      `json:"verified"`
	OTP              *OTPState `json:"otp,omitempty"`
	RefreshTokenHash string    `json:"refresh_token_hash,omitempty"`
	OAuthID          string    `json:"oauth_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Version          int64     `json:"version"`
}

// Clone returns a deep copy of a.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	if a.OTP != nil {
		o := *a.OTP
		cp.OTP = &o
	}
	return &cp
}

// AccountStore persists accounts.
//
// Lookups return ErrAccountNotFound when nothing matches. Create assigns
// ID (when empty), CreatedAt, UpdatedAt and Version 1 on acc, and returns
// ErrDuplicateAccount when the email is taken. Update replaces the record
// stored under id only when its version equals acc.Version, then advances
// acc.Version and acc.UpdatedAt; a mismatch yields ErrConcurrentUpdate.
// Other failures should wrap ErrStoreUnavailable. Implementations must not
// retain acc.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	// FindByEmailAndName returns an account whose email or name matches.
	FindByEmailAndName(ctx context.Context, email, name string) (*Account, error)
	FindByRefreshToken(ctx context.Context, tokenHash string) (*Account, error)
	Create(ctx context.Context, acc *Account) error
	Update(ctx context.Context, id string, acc *Account) error
}

// Notifier delivers codes to the account holder.
type Notifier interface {
	SendOTPEmail(ctx context.Context, email, code string) error
	SendPasswordResetEmail(ctx context.Context, email, code string) error
}

// PasswordHasher hashes and verifies passwords. *password.Argon2 satisfies it.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// CodeGenerator produces one-time codes. *otp.Generator satisfies it.
type CodeGenerator interface {
	Generate() (otp.Code, error)
}

// TokenIssuer signs and verifies session tokens. *jwt.Manager satisfies it.
type TokenIssuer interface {
	IssueAccess(accountID, email string, verified bool) (string, error)
	IssueRefresh() (string, error)
	ParseAccess(token string) (*jwt.AccessClaims, error)
	ParseRefresh(token string) (*jwt.RefreshClaims, error)
}

// ProviderProfile is an identity already authenticated by an OAuth
// provider.
type ProviderProfile struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	GivenName     string
	FamilyName    string
}

// TokenPair is an access token and its companion refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Delivery reports the outcome of a notification attempt. Under the
// best-effort policy a failed delivery does not fail the operation.
type Delivery struct {
	Sent bool
	Err  error
}

// SignupResult is returned by Signup.
type SignupResult struct {
	AccountID string
	Tokens    TokenPair
	Delivery  Delivery
}

// LoginResult is returned by Login.
type LoginResult struct {
	AccountID string
	Name      string
	Verified  bool
	Tokens    TokenPair
}

// RefreshResult is returned by RefreshToken. RefreshToken is empty unless
// rotation on use is enabled.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
}

// OAuthOutcome distinguishes a first OAuth login from a returning one.
type OAuthOutcome int

const (
	// OAuthWelcome means the account was created by this callback.
	OAuthWelcome OAuthOutcome = iota + 1
	// OAuthWelcomeBack means an existing account was signed in.
	OAuthWelcomeBack
)

// String returns "welcome" or "welcome_back".
func (o OAuthOutcome) String() string {
	switch o {
	case OAuthWelcome:
		return "welcome"
	case OAuthWelcomeBack:
		return "welcome_back"
	default:
		return "unknown"
	}
}

// OAuthResult is returned by OAuthCallback.
type OAuthResult struct {
	Outcome   OAuthOutcome
	AccountID string
	Name      string
	Tokens    TokenPair
}

// AccessResult is the verified content of an access token.
type AccessResult struct {
	AccountID string
	Email     string
	Verified  bool
	TokenID   string
	ExpiresAt time.Time
}

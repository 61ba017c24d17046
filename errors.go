package authcore

import "errors"

var (
	// ErrDuplicateAccount is returned by Signup when the email or name is taken.
	ErrDuplicateAccount = errors.New("account already exists")
	// ErrAccountNotFound is returned when no account matches the lookup.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidCredentials is returned by Login on a password mismatch.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidOTP is returned by VerifyOTP for an absent, expired or wrong code.
	ErrInvalidOTP = errors.New("invalid otp")
	// ErrInvalidResetCode is returned by ResetPassword for an absent, expired or wrong code.
	ErrInvalidResetCode = errors.New("invalid reset code")
	// ErrMissingToken is returned when no token was presented.
	ErrMissingToken = errors.New("token missing")
	// ErrInvalidToken is returned when a token fails verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when a token is past its expiry.
	ErrExpiredToken = errors.New("token expired")
	// ErrSigning is returned when a token cannot be signed.
	ErrSigning = errors.New("token signing failed")
	// ErrProviderAuthFailed is returned by OAuthCallback for an unusable provider profile.
	ErrProviderAuthFailed = errors.New("provider authentication failed")
	// ErrDependencyTimeout is returned when a store or notifier call exceeds its bound.
	ErrDependencyTimeout = errors.New("dependency timeout")
	// ErrNotificationFailed is returned when a required notification was not delivered.
	ErrNotificationFailed = errors.New("notification failed")

	// ErrInvalidInput is returned for malformed email or name input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPasswordPolicy is returned when a password violates the length policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrRateLimited is returned when a failure budget is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrConcurrentUpdate is returned by stores when the account changed since it was read.
	ErrConcurrentUpdate = errors.New("concurrent account update")
	// ErrStoreUnavailable wraps account store failures that are not one of the above.
	ErrStoreUnavailable = errors.New("account store unavailable")
	// ErrEngineNotReady is returned when an Engine method runs on a nil or partially built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

package authcore

import (
	"context"
	"errors"
	"net/http"
)

// Operation names an Engine operation for response mapping.
type Operation string

// Operations accepted by ErrorResponse.
const (
	OpSignup               Operation = "signup"
	OpLogin                Operation = "login"
	OpVerifyOTP            Operation = "verify_otp"
	OpResendOTP            Operation = "resend_otp"
	OpRefreshToken         Operation = "refresh_token"
	OpOAuthCallback        Operation = "oauth_callback"
	OpRequestPasswordReset Operation = "request_password_reset"
	OpResetPassword        Operation = "reset_password"
	OpLogout               Operation = "logout"
	OpValidateAccess       Operation = "validate_access"
)

// Response is the transport-neutral result of an operation: an HTTP-style
// status, a message and optional tokens. Status is not serialized.
type Response struct {
	Status       int    `json:"-"`
	Message      string `json:"message"`
	AccessToken  string `json:"token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// OK reports whether Status is in the 2xx range.
func (r Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// SignupResponse answers 201 with the new token pair. The message tells the
// caller when the verification code could not be sent.
func SignupResponse(res SignupResult) Response {
	msg := "User Created Successfully, We Sent Otp Please Verify Email"
	if !res.Delivery.Sent {
		msg = "User Created Successfully, Otp Could Not Be Sent Please Request A New One"
	}
	return Response{
		Status:       http.StatusCreated,
		Message:      msg,
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
	}
}

// LoginResponse answers 200 with the rotated token pair.
func LoginResponse(res LoginResult) Response {
	return Response{
		Status:       http.StatusOK,
		Message:      "User Logged In Successfully",
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
	}
}

// VerifyOTPResponse answers 200 once the account is verified.
func VerifyOTPResponse() Response {
	return Response{Status: http.StatusOK, Message: "Otp Verified"}
}

// ResendOTPResponse answers 200. The delivery report is not exposed, so an
// unknown email can be answered the same way.
func ResendOTPResponse(Delivery) Response {
	return Response{Status: http.StatusOK, Message: "Otp Sent"}
}

// RefreshResponse answers 200 with the new access token, and the new
// refresh token when rotation is enabled.
func RefreshResponse(res RefreshResult) Response {
	return Response{
		Status:       http.StatusOK,
		Message:      "Token Refreshed",
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	}
}

// OAuthResponse answers 201 for a new account and 200 for a returning one.
func OAuthResponse(res OAuthResult) Response {
	r := Response{
		Status:       http.StatusOK,
		Message:      "Welcome Again " + res.Name,
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
	}
	if res.Outcome == OAuthWelcome {
		r.Status = http.StatusCreated
		r.Message = "Welcome " + res.Name
	}
	return r
}

// PasswordResetRequestResponse answers 200 regardless of the delivery
// report, like ResendOTPResponse.
func PasswordResetRequestResponse(Delivery) Response {
	return Response{Status: http.StatusOK, Message: "Password Reset Code Sent To Your Email"}
}

// PasswordResetResponse answers 200 once the new password is stored.
func PasswordResetResponse() Response {
	return Response{Status: http.StatusOK, Message: "Password Reset Successfully"}
}

// LogoutResponse answers 200 once the refresh token is revoked.
func LogoutResponse() Response {
	return Response{Status: http.StatusOK, Message: "Logged Out Successfully"}
}

// ErrorResponse maps an error returned by op to a Response. Only sentinel
// identity is inspected, never message text.
//
// With mask set, answers that would reveal whether an email is registered
// are flattened: a login for an unknown email reads as a wrong password,
// code checks for an unknown email read as a wrong code, and resend or reset
// requests for an unknown email read as success.
func ErrorResponse(op Operation, err error, mask bool) Response {
	if err == nil {
		return Response{Status: http.StatusOK, Message: "OK"}
	}

	if mask && errors.Is(err, ErrAccountNotFound) {
		switch op {
		case OpLogin:
			err = ErrInvalidCredentials
		case OpVerifyOTP:
			err = ErrInvalidOTP
		case OpResetPassword:
			err = ErrInvalidResetCode
		case OpResendOTP:
			return ResendOTPResponse(Delivery{})
		case OpRequestPasswordReset:
			return PasswordResetRequestResponse(Delivery{})
		}
	}

	switch {
	case errors.Is(err, ErrDependencyTimeout):
		return Response{Status: http.StatusGatewayTimeout, Message: "Service Timed Out"}
	case errors.Is(err, ErrDuplicateAccount):
		return Response{Status: http.StatusConflict, Message: "User Already Exist"}
	case errors.Is(err, ErrAccountNotFound):
		if op == OpRefreshToken || op == OpLogout {
			return Response{Status: http.StatusUnauthorized, Message: "Refresh Token Not Recognized"}
		}
		return Response{Status: http.StatusNotFound, Message: "User Not Found"}
	case errors.Is(err, ErrInvalidCredentials):
		if mask {
			return Response{Status: http.StatusUnauthorized, Message: "Invalid Email Or Password"}
		}
		return Response{Status: http.StatusUnauthorized, Message: "Invalid Password"}
	case errors.Is(err, ErrInvalidOTP):
		return Response{Status: http.StatusBadRequest, Message: "Invalid Otp"}
	case errors.Is(err, ErrInvalidResetCode):
		return Response{Status: http.StatusBadRequest, Message: "Invalid Reset Code"}
	case errors.Is(err, ErrMissingToken):
		if op == OpRefreshToken || op == OpLogout {
			return Response{Status: http.StatusBadRequest, Message: "Refresh Token Not Found"}
		}
		return Response{Status: http.StatusUnauthorized, Message: "Token Not Found"}
	case errors.Is(err, ErrExpiredToken):
		return Response{Status: http.StatusUnauthorized, Message: "Token Expired"}
	case errors.Is(err, ErrInvalidToken):
		return Response{Status: http.StatusUnauthorized, Message: "Invalid Token"}
	case errors.Is(err, ErrProviderAuthFailed):
		return Response{Status: http.StatusUnauthorized, Message: "Provider Login Failed"}
	case errors.Is(err, ErrInvalidInput):
		return Response{Status: http.StatusBadRequest, Message: "Invalid Input"}
	case errors.Is(err, ErrPasswordPolicy):
		return Response{Status: http.StatusBadRequest, Message: "Password Does Not Meet Requirements"}
	case errors.Is(err, ErrRateLimited):
		return Response{Status: http.StatusTooManyRequests, Message: "Too Many Attempts"}
	case errors.Is(err, ErrConcurrentUpdate):
		return Response{Status: http.StatusConflict, Message: "Request Conflicted, Please Retry"}
	case errors.Is(err, ErrNotificationFailed):
		return Response{Status: http.StatusBadGateway, Message: "Email Could Not Be Sent"}
	case errors.Is(err, ErrSigning):
		return Response{Status: http.StatusInternalServerError, Message: "Token Could Not Be Issued"}
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrEngineNotReady):
		return Response{Status: http.StatusServiceUnavailable, Message: "Service Unavailable"}
	case errors.Is(err, context.Canceled):
		return Response{Status: http.StatusServiceUnavailable, Message: "Request Canceled"}
	default:
		return Response{Status: http.StatusInternalServerError, Message: "Internal Error"}
	}
}

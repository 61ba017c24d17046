// Package middleware exposes HTTP middleware that authenticates requests
// with authcore access tokens.
//
// # Guards
//
//   - [Guard]: verifies the bearer token with Engine.ValidateAccess and
//     injects the result into the request context.
//   - [RequireVerified]: rejects requests whose account has not confirmed
//     its email. Mount it after Guard.
//
// Rejections are written as authcore.Response JSON with masking on.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does not
// parse tokens or touch the account store.
package middleware

// Package otp generates short one-time codes for email verification and
// password reset, and provides the hashing helpers used to store and
// compare them.
//
// Codes come from crypto/rand. Callers persist only [Hash] of a code together
// with its issue time and enforce the TTL with [Expired] when the code is
// presented back.
package otp

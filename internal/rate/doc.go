// Package rate provides the Redis-backed failure counters behind login,
// email verification and password reset throttling.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys are
// namespaced under the configured prefix:
//   - <prefix>:rl:login:<email>
//   - <prefix>:rl:login-ip:<ip>
//   - <prefix>:rl:otp:<email> and <prefix>:rl:reset:<email>
//
// A counter at or above its maximum blocks further attempts until the
// window expires.
package rate

// Package internal holds helpers private to authcore.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - envconfig: environment-driven process configuration
//   - rate: Redis-backed failure counters
package internal

// Package audit implements async event dispatching for account operations.
//
// # Components
//
//   - [Sink] is the interface for event consumers (channel, JSON writer, slog, no-op).
//   - [Dispatcher] is a buffered async relay that either drops or blocks when full.
//   - [Event] is the structured audit record.
//
// The package owns buffering and sink delivery. Which events to emit is
// decided by the engine. It must not import authcore or any sibling
// internal package.
package audit

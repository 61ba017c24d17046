package authcore

import "github.com/MrEthical07/authcore/internal/audit"

// AuditEvent is one security-relevant outcome of an engine operation.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink discards audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers audit events in a channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes audit events as JSON lines.
type JSONWriterSink = audit.JSONWriterSink

// SlogSink logs audit events through a *slog.Logger.
type SlogSink = audit.SlogSink

var (
	// NewChannelSink returns a ChannelSink with the given buffer.
	NewChannelSink = audit.NewChannelSink
	// NewJSONWriterSink returns a JSONWriterSink over w.
	NewJSONWriterSink = audit.NewJSONWriterSink
	// NewSlogSink returns a SlogSink over logger, or slog.Default when nil.
	NewSlogSink = audit.NewSlogSink
)

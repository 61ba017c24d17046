// Package otel publishes authcore engine metrics through an OpenTelemetry
// Meter.
//
// Counters become Int64ObservableCounter instruments with the same names the
// Prometheus exporter uses. Each latency histogram becomes one
// Int64ObservableGauge "<name>_bucket" carrying an "le" attribute per
// cumulative bucket, plus a "<name>_count" gauge. One callback reads
// Engine.MetricsSnapshot per collection. The caller owns the MeterProvider.
package otel

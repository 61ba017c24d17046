// Package prometheus renders authcore engine metrics in the Prometheus text
// exposition format.
//
// Exporter reads Engine.MetricsSnapshot on every scrape; mount Handler on
// the metrics route. Nothing is registered globally.
package prometheus

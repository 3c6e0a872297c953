// Package metrics defines the Prometheus instrumentation exposed on
// /metrics: execution counts and durations, the active container gauge,
// image pulls, and file registration/reaping counters.
package metrics

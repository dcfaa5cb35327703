// Package metric provides Prometheus metrics for minikv.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: the Registry, its instruments and HTTP handler
//   - collector.go: a collector reading pub/sub broker statistics
//
// Metrics include:
//
//   - Connection gauges and counters
//   - Commands by name, protocol errors and rate-limited commands
//   - Work bridge submissions, completions and in-flight tasks
//   - Pub/sub topic count and dropped messages
//
// Recording methods are safe on a nil *Registry, so components can be
// built without metrics.
package metric

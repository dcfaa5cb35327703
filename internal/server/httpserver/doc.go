// Package httpserver provides the operations HTTP endpoint for minikv.
//
// It uses the Go standard library net/http and serves:
//
//   - GET /health: liveness
//   - GET /ready: readiness of the key/value listener
//   - GET /status: connection and pub/sub counters as JSON
//   - GET /metrics: Prometheus exposition
//
// Every route runs behind the RequestID, Recover and AccessLog middleware.
package httpserver

// Package main provides the entry point for minikv-server.
//
// minikv-server serves the RESP key/value protocol (GET, SET, PUBLISH,
// SUBSCRIBE, UNSUBSCRIBE) and, when metrics.addr is set, an operations
// HTTP endpoint with /health, /ready, /status and /metrics.
//
// Usage:
//
//	minikv-server [flags]
//	minikv-server --config /path/to/minikv.yaml
//
// Configuration priority is flag > environment (MINIKV_*, .env) > file >
// default. Changes to log.level in the config file apply without restart.
package main

// Package connection provides the minikv-cli client for the server's
// operations HTTP endpoint (/health, /ready, /status).
//
// Key/value traffic does not go through this package; commands use
// pkg/client over RESP for that.
package connection

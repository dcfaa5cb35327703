// Package main provides the entry point for minikv-cli.
//
// minikv-cli is the command-line client for minikv. It reads and writes
// keys, publishes and subscribes over RESP, drives load through a work
// bridge, and queries the server's operations endpoint.
//
// Usage:
//
//	minikv-cli [--server ADDR] [--output table|json|yaml] COMMAND [args]
package main

// Package logger provides structured logging for minikv.
//
// It wraps the standard library log/slog:
//
//   - logger.go: handler construction, runtime level control, default logger
//   - context.go: context propagation of loggers, connection and task IDs
//   - redact.go: shortening of stored values and message payloads
//
// Features:
//
//   - JSON and text output formats
//   - Log level filtering, adjustable at runtime
//   - Value previews instead of full payloads
//   - The configured handler is also installed as the slog default, so
//     components that take a *slog.Logger share the same output
package logger

// Package config provides server configuration for minikv.
//
// This package defines the server configuration structure and validation:
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Validation (address syntax, store mode, limits)
//   - logvalue.go: Structured logging of the effective configuration
//
// Configuration is loaded via internal/infra/confloader and supports
// multiple sources: files, .env files, environment variables, and flags.
package config

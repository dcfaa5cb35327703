// Package buildinfo provides build information for minikv.
//
// This package exposes build-time information injected via ldflags:
//
//   - Version: Semantic version (e.g., "1.0.0")
//   - Commit: Git commit hash
//   - BuildTime: Build timestamp
//   - GoVersion: Go compiler version
//
// Fields left unset fall back to what the Go toolchain embeds in the binary.
package buildinfo

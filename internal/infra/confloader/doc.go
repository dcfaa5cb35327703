// Package confloader provides configuration loading mechanism.
//
// This package implements a configuration loader that supports multiple
// sources using koanf as the underlying library, and a file watcher for
// settings that can change while the process runs.
//
// Features:
//
//   - Multiple Sources: YAML files, .env files, environment variables, maps
//   - Type Safety: Unmarshaling into typed structs via koanf tags
//   - Watch Support: callbacks when a watched config file changes
//
// Priority (highest to lowest):
//
//  1. Command-line flags (loaded with LoadMap)
//  2. Environment variables (a .env file fills in unset ones)
//  3. Configuration files
//  4. Default values
package confloader

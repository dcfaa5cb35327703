// Package memory provides in-memory implementations of storage.Store.
//
// Store is a plain map with no locking. It is owned by exactly one
// connection worker and discarded when the connection ends, so writes made
// on one connection are never visible on another.
//
// Shared is the alternative selected by the "shared" store mode: a single
// instance backed by a sharded concurrent map and safe for use by every
// worker at once.
//
// Both copy values on Set, so callers may reuse their buffers.
package memory

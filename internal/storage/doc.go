// Package storage defines the key/value store used by connection workers.
//
// Implementations live in sub-packages:
//
//   - memory.NewStore: an unsynchronised map owned by a single connection
//   - memory.NewShared: one instance shared by every connection
//
// Values are byte strings. Expiry is checked lazily on read; an entry whose
// deadline has passed behaves exactly like an absent key. Sweep reclaims the
// memory of expired entries and is never needed for correctness.
package storage

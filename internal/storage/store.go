package storage

import "time"

// Store maps string keys to byte-string values.
type Store interface {
	// Get returns the value for key. An expired entry is reported absent.
	// The returned slice must not be modified by the caller.
	Get(key string) ([]byte, bool)

	// Set stores value under key with no expiry, replacing any previous
	// entry and its expiry.
	Set(key string, value []byte)

	// SetWithExpiry stores value under key. The entry becomes absent once
	// ttl has elapsed. A non-positive ttl behaves like Set.
	SetWithExpiry(key string, value []byte, ttl time.Duration)

	// Len returns the number of entries, including expired entries that
	// have not been reclaimed yet.
	Len() int

	// Sweep removes expired entries and returns how many were removed.
	Sweep() int
}

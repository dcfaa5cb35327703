package memory

import (
	"time"

	"github.com/yndnr/minikv/internal/storage"
)

var (
	_ storage.Store = (*Store)(nil)
	_ storage.Store = (*Shared)(nil)
)

type entry struct {
	value []byte

	// expiresAt is zero for entries that never expire.
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

type options struct {
	now func() time.Time
}

// Option configures a store.
type Option func(*options)

// WithClock replaces time.Now as the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newEntry(value []byte, ttl time.Duration, now func() time.Time) entry {
	e := entry{value: append([]byte(nil), value...)}
	if e.value == nil {
		e.value = []byte{}
	}
	if ttl > 0 {
		e.expiresAt = now().Add(ttl)
	}
	return e
}

// Store is a single-owner store. It is not safe for concurrent use.
type Store struct {
	items map[string]entry
	now   func() time.Time
}

// NewStore creates an empty single-owner store.
func NewStore(opts ...Option) *Store {
	o := buildOptions(opts)
	return &Store{
		items: make(map[string]entry),
		now:   o.now,
	}
}

// Get returns the value for key. An expired entry is deleted and reported
// absent.
func (s *Store) Get(key string) ([]byte, bool) {
	e, ok := s.items[key]
	if !ok {
		return nil, false
	}
	if e.expired(s.now()) {
		delete(s.items, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with no expiry.
func (s *Store) Set(key string, value []byte) {
	s.items[key] = newEntry(value, 0, s.now)
}

// SetWithExpiry stores value under key until ttl has elapsed.
func (s *Store) SetWithExpiry(key string, value []byte, ttl time.Duration) {
	s.items[key] = newEntry(value, ttl, s.now)
}

// Len returns the number of entries held.
func (s *Store) Len() int {
	return len(s.items)
}

// Sweep removes expired entries.
func (s *Store) Sweep() int {
	now := s.now()
	removed := 0
	for k, e := range s.items {
		if e.expired(now) {
			delete(s.items, k)
			removed++
		}
	}
	return removed
}

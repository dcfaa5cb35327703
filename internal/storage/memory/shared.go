package memory

import (
	"time"

	"github.com/yndnr/minikv/pkg/cmap"
)

// Shared is a store safe for concurrent use by many connections.
type Shared struct {
	items *cmap.Map[entry]
	now   func() time.Time
}

// NewShared creates an empty shared store.
func NewShared(opts ...Option) *Shared {
	o := buildOptions(opts)
	return &Shared{
		items: cmap.New[entry](),
		now:   o.now,
	}
}

// Get returns the value for key. An expired entry is deleted and reported
// absent.
func (s *Shared) Get(key string) ([]byte, bool) {
	e, ok := s.items.Get(key)
	if !ok {
		return nil, false
	}
	now := s.now()
	if e.expired(now) {
		// A concurrent Set may have replaced the entry since the read.
		s.items.DeleteIf(key, func(cur entry) bool { return cur.expired(now) })
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with no expiry.
func (s *Shared) Set(key string, value []byte) {
	s.items.Set(key, newEntry(value, 0, s.now))
}

// SetWithExpiry stores value under key until ttl has elapsed.
func (s *Shared) SetWithExpiry(key string, value []byte, ttl time.Duration) {
	s.items.Set(key, newEntry(value, ttl, s.now))
}

// Len returns the number of entries held.
func (s *Shared) Len() int {
	return s.items.Count()
}

// Sweep removes expired entries.
func (s *Shared) Sweep() int {
	now := s.now()
	return s.items.RemoveAll(func(_ string, e entry) bool { return e.expired(now) })
}

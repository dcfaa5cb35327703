package pubsub

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultBuffer is the per-subscriber message buffer used when none is
// configured.
const DefaultBuffer = 64

// Message is a payload published on a channel.
type Message struct {
	Channel string
	Payload []byte
}

// Hub routes published messages to subscribers.
type Hub struct {
	// topics maps a channel name to its subscribers. Slices are replaced,
	// never modified in place, so Publish can iterate without a lock.
	topics  *xsync.MapOf[string, []*Subscriber]
	buffer  int
	dropped atomic.Uint64
}

// Option configures a Hub.
type Option func(*Hub)

// WithBuffer sets the per-subscriber buffer size.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// New creates an empty hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		topics: xsync.NewMapOf[string, []*Subscriber](),
		buffer: DefaultBuffer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish delivers payload to every current subscriber of channel and
// returns how many received it.
func (h *Hub) Publish(channel string, payload []byte) int {
	subs, ok := h.topics.Load(channel)
	if !ok {
		return 0
	}

	msg := Message{Channel: channel, Payload: append([]byte(nil), payload...)}
	n := 0
	for _, s := range subs {
		switch s.deliver(msg) {
		case delivered:
			n++
		case dropped:
			h.dropped.Add(1)
		}
	}
	return n
}

// Dropped returns the number of messages discarded because a subscriber's
// buffer was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Topics returns the number of channels with at least one subscriber.
func (h *Hub) Topics() int {
	return h.topics.Size()
}

// NewSubscriber creates a subscriber with no channels.
func (h *Hub) NewSubscriber() *Subscriber {
	return &Subscriber{
		hub:      h,
		ch:       make(chan Message, h.buffer),
		channels: make(map[string]struct{}),
	}
}

func (h *Hub) add(channel string, s *Subscriber) {
	h.topics.Compute(channel, func(old []*Subscriber, _ bool) ([]*Subscriber, bool) {
		next := make([]*Subscriber, 0, len(old)+1)
		next = append(next, old...)
		return append(next, s), false
	})
}

func (h *Hub) remove(channel string, s *Subscriber) {
	h.topics.Compute(channel, func(old []*Subscriber, loaded bool) ([]*Subscriber, bool) {
		if !loaded {
			return nil, true
		}
		next := make([]*Subscriber, 0, len(old))
		for _, o := range old {
			if o != s {
				next = append(next, o)
			}
		}
		return next, len(next) == 0
	})
}

// Subscriber receives messages for the channels it is subscribed to.
//
// Subscribe, Unsubscribe and Close are meant to be called by the single
// owner of the subscriber. Messages are read from C.
type Subscriber struct {
	hub *Hub
	ch  chan Message

	mu       sync.Mutex
	channels map[string]struct{}
	closed   bool
}

// C returns the channel messages are delivered on. It is closed by Close.
func (s *Subscriber) C() <-chan Message {
	return s.ch
}

// Subscribe adds channel and returns the number of channels the subscriber
// is now listening on. Subscribing twice to a channel has no effect.
func (s *Subscriber) Subscribe(channel string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0
	}
	if _, ok := s.channels[channel]; !ok {
		s.channels[channel] = struct{}{}
		s.hub.add(channel, s)
	}
	return len(s.channels)
}

// Unsubscribe removes channel and returns the number of channels the
// subscriber is still listening on.
func (s *Subscriber) Unsubscribe(channel string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[channel]; ok {
		delete(s.channels, channel)
		s.hub.remove(channel, s)
	}
	return len(s.channels)
}

// Channels returns the subscribed channel names in sorted order.
func (s *Subscriber) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.channels))
	for ch := range s.channels {
		out = append(out, ch)
	}
	slices.Sort(out)
	return out
}

// Has reports whether the subscriber is listening on channel.
func (s *Subscriber) Has(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.channels[channel]
	return ok
}

// Count returns the number of subscribed channels.
func (s *Subscriber) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.channels)
}

// Close unsubscribes from every channel and closes C. It is safe to call
// more than once.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	for ch := range s.channels {
		s.hub.remove(ch, s)
	}
	clear(s.channels)
	s.closed = true
	close(s.ch)
}

type outcome int

const (
	skipped outcome = iota
	delivered
	dropped
)

func (s *Subscriber) deliver(msg Message) outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The hub's slice may still list a subscriber that has just left.
	if s.closed {
		return skipped
	}
	if _, ok := s.channels[msg.Channel]; !ok {
		return skipped
	}
	select {
	case s.ch <- msg:
		return delivered
	default:
		return dropped
	}
}

package client

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/yndnr/minikv/internal/protocol/command"
	"github.com/yndnr/minikv/internal/protocol/resp"
)

// Message is a payload published on a channel.
type Message struct {
	Channel string
	Payload []byte
}

// Subscriber receives messages for the channels it is subscribed to.
//
// NextMessage, Subscribe and Unsubscribe take turns on the connection; a
// call waits while another is in progress. Channels and Close may be called
// at any time.
type Subscriber struct {
	client *Client

	mu      sync.Mutex
	pending []*Message

	chMu     sync.Mutex
	channels map[string]struct{}
}

// NextMessage blocks until a message arrives. It returns io.EOF once the
// server closes the connection.
//
// If ctx ends first NextMessage returns ctx.Err() and the subscriber stays
// usable.
func (s *Subscriber) NextMessage(ctx context.Context) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) > 0 {
		msg := s.pending[0]
		s.pending = s.pending[1:]
		return msg, nil
	}

	for {
		f, err := s.read(ctx)
		if err != nil {
			return nil, err
		}
		p, err := parsePush(f)
		if err != nil {
			return nil, err
		}
		if p.kind == "message" {
			return p.message(), nil
		}
		s.track(p)
	}
}

// Subscribe adds channels to the subscription and waits for the server to
// confirm each one. Messages arriving meanwhile are kept for NextMessage.
func (s *Subscriber) Subscribe(ctx context.Context, channels ...string) error {
	if len(channels) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.send(ctx, command.Subscribe{Channels: channels}); err != nil {
		return err
	}

	confirmed := 0
	return s.await(ctx, func(p push) bool {
		if p.kind == "subscribe" {
			confirmed++
		}
		return confirmed == len(channels)
	})
}

// Unsubscribe removes channels from the subscription, or every channel when
// none are given, and waits for the server to confirm.
func (s *Subscriber) Unsubscribe(ctx context.Context, channels ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.send(ctx, command.Unsubscribe{Channels: channels}); err != nil {
		return err
	}

	confirmed := 0
	return s.await(ctx, func(p push) bool {
		if p.kind != "unsubscribe" {
			return false
		}
		confirmed++
		if len(channels) == 0 {
			return p.count == 0
		}
		return confirmed == len(channels)
	})
}

// Channels returns the confirmed subscriptions in sorted order.
func (s *Subscriber) Channels() []string {
	s.chMu.Lock()
	defer s.chMu.Unlock()

	out := make([]string, 0, len(s.channels))
	for ch := range s.channels {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Close closes the connection.
func (s *Subscriber) Close() error {
	return s.client.Close()
}

// await reads frames until done reports true, queueing messages and
// tracking confirmations. Must be called with s.mu held.
func (s *Subscriber) await(ctx context.Context, done func(push) bool) error {
	for {
		f, err := s.read(ctx)
		if err != nil {
			// Confirmations are still owed, so the stream cannot be reused.
			_ = s.client.Close()
			return err
		}
		p, err := parsePush(f)
		if err != nil {
			_ = s.client.Close()
			return err
		}
		if p.kind == "message" {
			s.pending = append(s.pending, p.message())
			continue
		}
		s.track(p)
		if done(p) {
			return nil
		}
	}
}

// read reads one frame. A context interruption leaves the connection open:
// a partially received frame stays buffered for the next read.
func (s *Subscriber) read(ctx context.Context) (resp.Frame, error) {
	c := s.client
	if c.closed.Load() {
		return nil, ErrClosed
	}

	stop := c.watch(ctx)
	f, err := c.conn.ReadFrame()
	stop()

	if err == nil {
		if e, ok := f.(resp.ErrorString); ok {
			return nil, &ServerError{Message: string(e)}
		}
		return f, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if errors.Is(err, io.EOF) {
		_ = c.Close()
		return nil, io.EOF
	}
	return nil, c.fail(ctx, err)
}

func (s *Subscriber) track(p push) {
	if p.channel == "" {
		return
	}
	s.chMu.Lock()
	defer s.chMu.Unlock()

	switch p.kind {
	case "subscribe":
		s.channels[p.channel] = struct{}{}
	case "unsubscribe":
		delete(s.channels, p.channel)
	}
}

// push is a decoded server push: a subscribe or unsubscribe confirmation,
// or a message.
type push struct {
	kind    string
	channel string
	count   int64
	payload []byte
}

func (p push) message() *Message {
	return &Message{Channel: p.channel, Payload: p.payload}
}

func parsePush(f resp.Frame) (push, error) {
	bad := &UnexpectedResponseError{Command: "SUBSCRIBE", Frame: f}

	arr, ok := f.(resp.Array)
	if !ok || len(arr) != 3 {
		return push{}, bad
	}
	kind, ok := resp.Text(arr[0])
	if !ok {
		return push{}, bad
	}

	var p push
	p.kind = kind
	if ch, ok := resp.Text(arr[1]); ok {
		p.channel = ch
	} else if _, null := arr[1].(resp.Null); !null {
		return push{}, bad
	}

	switch kind {
	case "message":
		payload, ok := arr[2].(resp.BulkString)
		if !ok {
			return push{}, bad
		}
		p.payload = []byte(payload)
	case "subscribe", "unsubscribe":
		n, ok := arr[2].(resp.Integer)
		if !ok {
			return push{}, bad
		}
		p.count = int64(n)
	default:
		return push{}, bad
	}
	return p, nil
}

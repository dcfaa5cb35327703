package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/minikv/internal/protocol/command"
	"github.com/yndnr/minikv/internal/protocol/resp"
)

var (
	// ErrClosed is returned by operations on a closed client, including one
	// closed after a failed or interrupted request.
	ErrClosed = errors.New("client: closed")

	// ErrSubscribed is returned by request methods on a Client that has
	// been turned into a Subscriber.
	ErrSubscribed = errors.New("client: connection is in subscriber mode")
)

// aLongTimeAgo is a deadline in the past, used to interrupt blocked I/O.
var aLongTimeAgo = time.Unix(1, 0)

// ServerError is an Error frame returned by the server.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// UnexpectedResponseError reports a reply of the wrong shape.
type UnexpectedResponseError struct {
	Command string
	Frame   resp.Frame
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("client: unexpected %s response to %s", e.Frame.Kind(), e.Command)
}

// Client is a connection to a minikv server.
//
// Requests are serialised; concurrent callers wait their turn. A request
// that fails with an I/O error, or is interrupted by its context, leaves the
// reply stream in an unknown position, so the connection is closed.
type Client struct {
	nc   net.Conn
	conn *resp.Conn

	mu         sync.Mutex
	subscribed bool
	closed     atomic.Bool
}

// Dial connects to the server at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	return NewClient(nc), nil
}

// NewClient wraps an established connection.
func NewClient(nc net.Conn) *Client {
	return &Client{nc: nc, conn: resp.NewConn(nc)}
}

// Get returns the value stored at key, or nil if the key is absent.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	f, err := c.do(ctx, command.Get{Key: key})
	if err != nil {
		return nil, err
	}
	switch v := f.(type) {
	case resp.BulkString:
		return []byte(v), nil
	case resp.SimpleString:
		return []byte(v), nil
	case resp.Null:
		return nil, nil
	default:
		return nil, &UnexpectedResponseError{Command: "GET", Frame: f}
	}
}

// Set stores value at key with no expiry.
func (c *Client) Set(ctx context.Context, key string, value []byte) error {
	return c.set(ctx, command.Set{Key: key, Value: value})
}

// SetExpires stores value at key. The key becomes absent once expires has
// elapsed.
func (c *Client) SetExpires(ctx context.Context, key string, value []byte, expires time.Duration) error {
	if expires <= 0 {
		return fmt.Errorf("client: invalid expiry %v", expires)
	}
	return c.set(ctx, command.Set{Key: key, Value: value, Expire: expires})
}

func (c *Client) set(ctx context.Context, cmd command.Set) error {
	f, err := c.do(ctx, cmd)
	if err != nil {
		return err
	}
	if s, ok := f.(resp.SimpleString); !ok || s != "OK" {
		return &UnexpectedResponseError{Command: "SET", Frame: f}
	}
	return nil
}

// Publish sends message on channel and returns the number of subscribers
// that received it.
func (c *Client) Publish(ctx context.Context, channel string, message []byte) (int64, error) {
	f, err := c.do(ctx, command.Publish{Channel: channel, Message: message})
	if err != nil {
		return 0, err
	}
	n, ok := f.(resp.Integer)
	if !ok {
		return 0, &UnexpectedResponseError{Command: "PUBLISH", Frame: f}
	}
	return int64(n), nil
}

// Subscribe subscribes to channels and returns a Subscriber that owns the
// connection. The Client must not be used for requests afterwards.
func (c *Client) Subscribe(ctx context.Context, channels ...string) (*Subscriber, error) {
	if len(channels) == 0 {
		return nil, errors.New("client: subscribe requires at least one channel")
	}

	c.mu.Lock()
	if err := c.usable(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.subscribed = true
	c.mu.Unlock()

	s := &Subscriber{client: c, channels: make(map[string]struct{})}
	if err := s.Subscribe(ctx, channels...); err != nil {
		_ = c.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the connection. It is safe to call more than once and
// interrupts a request in progress.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}

// Closed reports whether the client has been closed.
func (c *Client) Closed() bool {
	return c.closed.Load()
}

// RemoteAddr returns the server address.
func (c *Client) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}

func (c *Client) usable() error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.subscribed {
		return ErrSubscribed
	}
	return nil
}

// do performs one request/reply exchange.
func (c *Client) do(ctx context.Context, cmd command.Command) (resp.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usable(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := c.exchange(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if e, ok := f.(resp.ErrorString); ok {
		return nil, &ServerError{Message: string(e)}
	}
	return f, nil
}

func (c *Client) exchange(ctx context.Context, cmd command.Command) (resp.Frame, error) {
	stop := c.watch(ctx)
	defer stop()

	if err := c.conn.WriteFrame(cmd.ToFrame()); err != nil {
		return nil, c.fail(ctx, err)
	}
	f, err := c.conn.ReadFrame()
	if err != nil {
		return nil, c.fail(ctx, err)
	}
	return f, nil
}

// send writes a request without reading a reply. Used in subscriber mode,
// where replies are read alongside pushed messages.
func (c *Client) send(ctx context.Context, cmd command.Command) error {
	stop := c.watch(ctx)
	defer stop()

	if err := c.conn.WriteFrame(cmd.ToFrame()); err != nil {
		return c.fail(ctx, err)
	}
	return nil
}

// watch applies ctx's deadline to the connection and interrupts I/O when
// ctx is cancelled. The returned func clears both.
func (c *Client) watch(ctx context.Context) func() {
	if dl, ok := ctx.Deadline(); ok {
		_ = c.nc.SetDeadline(dl)
	}

	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = c.nc.SetDeadline(aLongTimeAgo)
		close(fired)
	})

	return func() {
		if !stop() {
			<-fired
		}
		_ = c.nc.SetDeadline(time.Time{})
	}
}

// fail closes the connection and reports err, preferring the context error
// when the context caused it.
func (c *Client) fail(ctx context.Context, err error) error {
	_ = c.Close()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return fmt.Errorf("client: %w", err)
}

func (c *Client) isSubscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed
}

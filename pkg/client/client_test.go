package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/minikv/internal/protocol/resp"
	"github.com/yndnr/minikv/internal/pubsub"
	"github.com/yndnr/minikv/internal/server/kvserver"
)

func startServer(t *testing.T, opts ...kvserver.Option) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := kvserver.New(kvserver.DefaultConfig(), append([]kvserver.Option{kvserver.WithLogger(quiet)}, opts...)...)

	done := make(chan error, 1)
	go func() { done <- s.Serve(context.Background(), ln) }()
	<-s.Ready()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
		<-done
	})
	return ln.Addr().String()
}

func startPubSubServer(t *testing.T) string {
	t.Helper()
	return startServer(t, kvserver.WithPubSub(pubsub.New()))
}

// startFakeServer accepts one connection and hands it to handle.
func startFakeServer(t *testing.T, handle func(c *resp.Conn)) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		c := resp.NewConn(nc)
		defer c.Close()
		handle(c)
	}()
	return ln.Addr().String()
}

func dial(t *testing.T, addr string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, addr)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// ============================================================
// Requests
// ============================================================

func TestClient_SetGet(t *testing.T) {
	c := dial(t, startServer(t))
	ctx := testContext(t)

	v, err := c.Get(ctx, "foo")
	if err != nil || v != nil {
		t.Fatalf("Get(absent) = (%q, %v), want (nil, nil)", v, err)
	}

	if err := c.Set(ctx, "foo", []byte("bar")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	v, err = c.Get(ctx, "foo")
	if err != nil || string(v) != "bar" {
		t.Fatalf("Get() = (%q, %v), want bar", v, err)
	}

	if err := c.Set(ctx, "empty", []byte{}); err != nil {
		t.Fatalf("Set(empty) error = %v", err)
	}
	v, err = c.Get(ctx, "empty")
	if err != nil || v == nil || len(v) != 0 {
		t.Errorf("Get(empty) = (%#v, %v), want non-nil empty value", v, err)
	}
}

func TestClient_BinaryValue(t *testing.T) {
	c := dial(t, startServer(t))
	ctx := testContext(t)

	value := []byte("a\r\nb\x00c")
	if err := c.Set(ctx, "bin", value); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := c.Get(ctx, "bin")
	if err != nil || !bytes.Equal(got, value) {
		t.Errorf("Get() = (%q, %v), want %q", got, err, value)
	}
}

func TestClient_SetExpires(t *testing.T) {
	c := dial(t, startServer(t))
	ctx := testContext(t)

	if err := c.SetExpires(ctx, "k", []byte("v"), 50*time.Millisecond); err != nil {
		t.Fatalf("SetExpires() error = %v", err)
	}
	if v, _ := c.Get(ctx, "k"); string(v) != "v" {
		t.Fatalf("Get() before expiry = %q, want v", v)
	}

	time.Sleep(120 * time.Millisecond)
	if v, err := c.Get(ctx, "k"); err != nil || v != nil {
		t.Errorf("Get() after expiry = (%q, %v), want (nil, nil)", v, err)
	}

	if err := c.SetExpires(ctx, "k", []byte("v"), 0); err == nil {
		t.Error("SetExpires(0) should fail")
	}
}

func TestClient_PublishWithoutSubscribers(t *testing.T) {
	c := dial(t, startPubSubServer(t))

	n, err := c.Publish(testContext(t), "news", []byte("hi"))
	if err != nil || n != 0 {
		t.Errorf("Publish() = (%d, %v), want (0, nil)", n, err)
	}
}

func TestClient_ServerError(t *testing.T) {
	// No pub/sub broker: PUBLISH is answered with an Error frame.
	c := dial(t, startServer(t))
	ctx := testContext(t)

	_, err := c.Publish(ctx, "news", []byte("hi"))
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("Publish() error = %v, want *ServerError", err)
	}
	if se.Message != "unimplemented" {
		t.Errorf("ServerError.Message = %q", se.Message)
	}

	// The connection survives an application error.
	if err := c.Set(ctx, "k", []byte("v")); err != nil {
		t.Errorf("Set() after server error = %v", err)
	}
}

func TestClient_UnexpectedResponse(t *testing.T) {
	addr := startFakeServer(t, func(c *resp.Conn) {
		if _, err := c.ReadFrame(); err != nil {
			return
		}
		_ = c.WriteFrame(resp.Integer(7))
	})
	c := dial(t, addr)

	_, err := c.Get(testContext(t), "k")
	var ue *UnexpectedResponseError
	if !errors.As(err, &ue) || ue.Command != "GET" {
		t.Errorf("Get() error = %v, want UnexpectedResponseError for GET", err)
	}
}

func TestClient_ConcurrentRequests(t *testing.T) {
	c := dial(t, startServer(t))
	ctx := testContext(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := string(rune('a' + id))
			for j := 0; j < 20; j++ {
				want := []byte{byte(id), byte(j)}
				if err := c.Set(ctx, key, want); err != nil {
					t.Errorf("Set() error = %v", err)
					return
				}
				got, err := c.Get(ctx, key)
				if err != nil || !bytes.Equal(got, want) {
					t.Errorf("Get(%s) = (%v, %v), want %v", key, got, err, want)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}

// ============================================================
// Connection lifecycle
// ============================================================

func TestDial_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if _, err := Dial(testContext(t), addr); err == nil {
		t.Error("Dial() to a closed port should fail")
	}
}

func TestClient_Close(t *testing.T) {
	c := dial(t, startServer(t))

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if !c.Closed() {
		t.Error("Closed() = false after Close")
	}
	if _, err := c.Get(testContext(t), "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get() after Close error = %v, want ErrClosed", err)
	}
}

func TestClient_DeadlineClosesConnection(t *testing.T) {
	hold := make(chan struct{})
	t.Cleanup(func() { close(hold) })
	addr := startFakeServer(t, func(c *resp.Conn) {
		_, _ = c.ReadFrame()
		<-hold
	})
	c := dial(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := c.Get(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Get() error = %v, want DeadlineExceeded", err)
	}
	if !c.Closed() {
		t.Error("interrupted request must close the client")
	}
	if _, err := c.Get(testContext(t), "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get() after interruption error = %v, want ErrClosed", err)
	}
}

func TestClient_CancelInterruptsRequest(t *testing.T) {
	hold := make(chan struct{})
	t.Cleanup(func() { close(hold) })
	addr := startFakeServer(t, func(c *resp.Conn) {
		_, _ = c.ReadFrame()
		<-hold
	})
	c := dial(t, addr)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get() error = %v, want Canceled", err)
	}
}

func TestClient_CancelledBeforeRequest(t *testing.T) {
	c := dial(t, startServer(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Set(ctx, "k", []byte("v")); !errors.Is(err, context.Canceled) {
		t.Fatalf("Set() error = %v, want Canceled", err)
	}
	if c.Closed() {
		t.Fatal("a request that never started must not close the client")
	}
	if err := c.Set(testContext(t), "k", []byte("v")); err != nil {
		t.Errorf("Set() afterwards error = %v", err)
	}
}

func TestClient_ServerClosesConnection(t *testing.T) {
	addr := startFakeServer(t, func(c *resp.Conn) {})
	c := dial(t, addr)

	if _, err := c.Get(testContext(t), "k"); err == nil {
		t.Fatal("Get() on a dropped connection should fail")
	}
	if !c.Closed() {
		t.Error("client should be closed after an I/O error")
	}
}

// ============================================================
// Subscriber
// ============================================================

func TestSubscriber_ReceivesMessages(t *testing.T) {
	addr := startPubSubServer(t)
	ctx := testContext(t)

	sub, err := dial(t, addr).Subscribe(ctx, "a", "b")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	if got := sub.Channels(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Channels() = %v, want [a b]", got)
	}

	pub := dial(t, addr)
	if n, err := pub.Publish(ctx, "b", []byte("hello")); err != nil || n != 1 {
		t.Fatalf("Publish() = (%d, %v), want (1, nil)", n, err)
	}

	msg, err := sub.NextMessage(ctx)
	if err != nil {
		t.Fatalf("NextMessage() error = %v", err)
	}
	if msg.Channel != "b" || string(msg.Payload) != "hello" {
		t.Errorf("NextMessage() = %+v, want b/hello", msg)
	}
}

func TestSubscriber_SubscribeAndUnsubscribe(t *testing.T) {
	addr := startPubSubServer(t)
	ctx := testContext(t)

	sub, err := dial(t, addr).Subscribe(ctx, "a")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	if err := sub.Subscribe(ctx, "b", "c"); err != nil {
		t.Fatalf("Subscribe(b, c) error = %v", err)
	}
	if got := sub.Channels(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("Channels() = %v, want [a b c]", got)
	}

	if err := sub.Unsubscribe(ctx, "a"); err != nil {
		t.Fatalf("Unsubscribe(a) error = %v", err)
	}
	if got := sub.Channels(); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("Channels() = %v, want [b c]", got)
	}

	pub := dial(t, addr)
	if n, _ := pub.Publish(ctx, "a", []byte("x")); n != 0 {
		t.Errorf("Publish(a) after unsubscribe reached %d subscribers", n)
	}

	if err := sub.Unsubscribe(ctx); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if got := sub.Channels(); len(got) != 0 {
		t.Errorf("Channels() after unsubscribe all = %v", got)
	}

	// Nothing left to unsubscribe from still gets a confirmation.
	if err := sub.Unsubscribe(ctx); err != nil {
		t.Errorf("Unsubscribe() with no channels error = %v", err)
	}
}

func TestSubscriber_MessagesDuringSubscribeAreKept(t *testing.T) {
	addr := startFakeServer(t, func(c *resp.Conn) {
		if _, err := c.ReadFrame(); err != nil {
			return
		}
		_ = c.WriteFrame(resp.Array{resp.Bulk("subscribe"), resp.Bulk("a"), resp.Integer(1)})

		if _, err := c.ReadFrame(); err != nil {
			return
		}
		// A message for the existing channel lands before the confirmation.
		_ = c.WriteFrame(resp.Array{resp.Bulk("message"), resp.Bulk("a"), resp.Bulk("early")})
		_ = c.WriteFrame(resp.Array{resp.Bulk("subscribe"), resp.Bulk("b"), resp.Integer(2)})
		_, _ = c.ReadFrame()
	})
	ctx := testContext(t)

	sub, err := dial(t, addr).Subscribe(ctx, "a")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := sub.Subscribe(ctx, "b"); err != nil {
		t.Fatalf("Subscribe(b) error = %v", err)
	}

	msg, err := sub.NextMessage(ctx)
	if err != nil || msg.Channel != "a" || string(msg.Payload) != "early" {
		t.Errorf("NextMessage() = (%+v, %v), want a/early", msg, err)
	}
}

func TestSubscriber_ContextTimeoutKeepsConnection(t *testing.T) {
	addr := startPubSubServer(t)

	sub, err := dial(t, addr).Subscribe(testContext(t), "a")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := sub.NextMessage(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("NextMessage() error = %v, want DeadlineExceeded", err)
	}

	if _, err := dial(t, addr).Publish(testContext(t), "a", []byte("later")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	msg, err := sub.NextMessage(testContext(t))
	if err != nil || string(msg.Payload) != "later" {
		t.Errorf("NextMessage() after timeout = (%+v, %v), want later", msg, err)
	}
}

func TestSubscriber_EOF(t *testing.T) {
	addr := startFakeServer(t, func(c *resp.Conn) {
		if _, err := c.ReadFrame(); err != nil {
			return
		}
		_ = c.WriteFrame(resp.Array{resp.Bulk("subscribe"), resp.Bulk("a"), resp.Integer(1)})
	})
	ctx := testContext(t)

	sub, err := dial(t, addr).Subscribe(ctx, "a")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if _, err := sub.NextMessage(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("NextMessage() error = %v, want io.EOF", err)
	}
}

func TestSubscriber_SubscribeRejected(t *testing.T) {
	c := dial(t, startServer(t))

	_, err := c.Subscribe(testContext(t), "a")
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("Subscribe() error = %v, want *ServerError", err)
	}
	if !c.Closed() {
		t.Error("failed Subscribe must close the client")
	}
}

func TestClient_RequestsRejectedWhileSubscribed(t *testing.T) {
	c := dial(t, startPubSubServer(t))
	ctx := testContext(t)

	if _, err := c.Subscribe(ctx, "a"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrSubscribed) {
		t.Errorf("Get() error = %v, want ErrSubscribed", err)
	}
	if _, err := c.Subscribe(ctx, "b"); !errors.Is(err, ErrSubscribed) {
		t.Errorf("second Subscribe() error = %v, want ErrSubscribed", err)
	}
}

func TestClient_SubscribeRequiresChannel(t *testing.T) {
	c := dial(t, startPubSubServer(t))
	if _, err := c.Subscribe(testContext(t)); err == nil {
		t.Error("Subscribe() with no channels should fail")
	}
}

func TestParsePush(t *testing.T) {
	tests := []struct {
		name    string
		frame   resp.Frame
		want    push
		wantErr bool
	}{
		{
			name:  "message",
			frame: resp.Array{resp.Bulk("message"), resp.Bulk("ch"), resp.Bulk("hi")},
			want:  push{kind: "message", channel: "ch", payload: []byte("hi")},
		},
		{
			name:  "subscribe",
			frame: resp.Array{resp.Bulk("subscribe"), resp.Bulk("ch"), resp.Integer(2)},
			want:  push{kind: "subscribe", channel: "ch", count: 2},
		},
		{
			name:  "unsubscribe nothing",
			frame: resp.Array{resp.Bulk("unsubscribe"), resp.Null{}, resp.Integer(0)},
			want:  push{kind: "unsubscribe"},
		},
		{name: "not an array", frame: resp.Bulk("message"), wantErr: true},
		{name: "short", frame: resp.Array{resp.Bulk("message"), resp.Bulk("ch")}, wantErr: true},
		{name: "unknown kind", frame: resp.Array{resp.Bulk("pmessage"), resp.Bulk("ch"), resp.Bulk("x")}, wantErr: true},
		{name: "count not integer", frame: resp.Array{resp.Bulk("subscribe"), resp.Bulk("ch"), resp.Bulk("1")}, wantErr: true},
		{name: "payload not bulk", frame: resp.Array{resp.Bulk("message"), resp.Bulk("ch"), resp.Integer(1)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePush(tt.frame)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parsePush() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parsePush() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

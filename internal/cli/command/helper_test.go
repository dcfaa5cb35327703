package command

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/minikv/internal/pubsub"
	"github.com/yndnr/minikv/internal/server/kvserver"
)

// startServer runs a shared-store server with pub/sub so that separate
// CLI invocations see each other's writes.
func startServer(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	cfg := kvserver.DefaultConfig()
	cfg.StoreMode = kvserver.StoreShared
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := kvserver.New(cfg, kvserver.WithLogger(quiet), kvserver.WithPubSub(pubsub.New()))

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

// closedAddr returns an address nothing listens on.
func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

// syncBuffer is a bytes.Buffer safe for a writer and a polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// run executes the CLI with args and returns stdout and stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr syncBuffer
	err := runWith(context.Background(), &stdout, &stderr, args...)
	return stdout.String(), stderr.String(), err
}

func runWith(ctx context.Context, stdout, stderr io.Writer, args ...string) error {
	app := App()
	app.Writer = stdout
	app.ErrWriter = stderr
	return app.RunContext(ctx, append([]string{"minikv-cli"}, args...))
}

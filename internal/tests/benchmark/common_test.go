package benchmark

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime"
	"testing"
	"time"

	"github.com/yndnr/minikv/internal/pubsub"
	"github.com/yndnr/minikv/internal/server/kvserver"
	"github.com/yndnr/minikv/internal/storage"
)

// KeyCounts defines the store sizes for benchmarking.
var KeyCounts = []int{1000, 10000, 100000}

// ValueSizes defines payload sizes in bytes.
var ValueSizes = []int{16, 256, 4096}

func key(i int) string {
	return fmt.Sprintf("key:%08d", i)
}

// prefill writes count keys into s.
func prefill(s storage.Store, count int, value []byte) {
	for i := 0; i < count; i++ {
		s.Set(key(i), value)
	}
}

// reportMemory reports memory usage.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}

// runWithKeyCounts runs a benchmark function with various store sizes.
func runWithKeyCounts(b *testing.B, counts []int, benchFn func(b *testing.B, count int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("keys_%d", count), func(b *testing.B) {
			benchFn(b, count)
		})
	}
}

// runWithValueSizes runs a benchmark function with various payload sizes.
func runWithValueSizes(b *testing.B, benchFn func(b *testing.B, size int)) {
	for _, size := range ValueSizes {
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			benchFn(b, size)
		})
	}
}

// startServer runs a quiet kvserver with pub/sub on a loopback port.
func startServer(b *testing.B, mode string) string {
	b.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		b.Fatalf("listen: %v", err)
	}

	cfg := kvserver.DefaultConfig()
	cfg.StoreMode = mode
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := kvserver.New(cfg, kvserver.WithLogger(quiet), kvserver.WithPubSub(pubsub.New()))

	done := make(chan error, 1)
	go func() { done <- s.Serve(context.Background(), ln) }()
	<-s.Ready()

	b.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
		<-done
	})
	return ln.Addr().String()
}

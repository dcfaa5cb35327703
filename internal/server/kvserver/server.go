package kvserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/minikv/internal/protocol/resp"
	"github.com/yndnr/minikv/internal/pubsub"
	"github.com/yndnr/minikv/internal/storage"
	"github.com/yndnr/minikv/internal/storage/memory"
	"github.com/yndnr/minikv/internal/telemetry/metric"
)

// Store modes.
const (
	StoreConnection = "connection"
	StoreShared     = "shared"
)

// Accept retry backoff bounds.
const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Config holds the server configuration.
type Config struct {
	// Address is the TCP address to listen on.
	Address string
	// StoreMode selects one store per connection (default) or one store
	// shared by every connection.
	StoreMode string
	// IdleTimeout closes a connection that sends nothing for this long.
	// Zero disables it.
	IdleTimeout time.Duration
	// WriteTimeout bounds each response write. Zero disables it.
	WriteTimeout time.Duration
	// RateLimit is the maximum number of commands per second per
	// connection. Zero disables rate limiting.
	RateLimit int
	// MaxConnections refuses connections beyond this many open ones.
	// Zero means unlimited.
	MaxConnections int
	// SweepEvery is the number of SET commands between sweeps of expired
	// entries in the worker's store.
	SweepEvery int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:      "127.0.0.1:6379",
		StoreMode:    StoreConnection,
		WriteTimeout: 30 * time.Second,
		SweepEvery:   1000,
	}
}

// Server is the minikv TCP server.
type Server struct {
	cfg      *Config
	logger   *slog.Logger
	metrics  *metric.Registry
	hub      *pubsub.Hub
	newStore func() storage.Store

	mu      sync.Mutex
	ln      net.Listener
	conns   map[*worker]struct{}
	ready   chan struct{}
	running atomic.Bool
	active  atomic.Int64
	wg      sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records connection and command metrics in r.
func WithMetrics(r *metric.Registry) Option {
	return func(s *Server) {
		s.metrics = r
	}
}

// WithPubSub enables PUBLISH and SUBSCRIBE through h.
func WithPubSub(h *pubsub.Hub) Option {
	return func(s *Server) {
		s.hub = h
	}
}

// WithStoreFactory overrides how stores are created. In connection mode
// it is called once per connection, in shared mode once in total.
func WithStoreFactory(fn func() storage.Store) Option {
	return func(s *Server) {
		s.newStore = fn
	}
}

// New creates a new server.
func New(cfg *Config, opts ...Option) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		cfg:    cfg,
		logger: slog.Default(),
		conns:  make(map[*worker]struct{}),
		ready:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.newStore == nil {
		s.newStore = func() storage.Store { return memory.NewStore() }
		if cfg.StoreMode == StoreShared {
			s.newStore = func() storage.Store { return memory.NewShared() }
		}
	}
	if cfg.StoreMode == StoreShared {
		shared := s.newStore()
		s.newStore = func() storage.Store { return shared }
	}

	return s
}

// ListenAndServe binds the configured address and serves connections
// until ctx is cancelled or Shutdown is called. A bind failure is returned
// immediately.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("kvserver: listen %s: %w", s.cfg.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln and starts one worker per connection.
// It returns nil once ln is closed by ctx cancellation or Shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.ln != nil {
		s.mu.Unlock()
		return errors.New("kvserver: already serving")
	}
	s.ln = ln
	s.running.Store(true)
	close(s.ready)
	s.mu.Unlock()

	s.logger.Info("kv server listening", "address", ln.Addr().String(), "store", s.storeMode())

	stop := context.AfterFunc(ctx, func() {
		s.running.Store(false)
		_ = ln.Close()
	})
	defer stop()

	return s.acceptLoop(ctx, ln)
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	var backoff time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}

			if backoff == 0 {
				backoff = minAcceptBackoff
			} else {
				backoff = min(2*backoff, maxAcceptBackoff)
			}
			s.logger.Warn("accept failed, retrying", "error", err, "backoff", backoff)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		backoff = 0

		if limit := s.cfg.MaxConnections; limit > 0 && s.active.Load() >= int64(limit) {
			if !s.spawn(func() { s.reject(c) }) {
				_ = c.Close()
				return nil
			}
			continue
		}

		s.active.Add(1)
		if !s.spawn(func() {
			defer s.active.Add(-1)
			s.serveConn(c)
		}) {
			s.active.Add(-1)
			_ = c.Close()
			return nil
		}
	}
}

// spawn runs fn on a goroutine counted by wg. It reports false without
// running fn once the server is shutting down, so no Add can race the
// Wait in Shutdown.
func (s *Server) spawn(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Load() {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return true
}

// reject answers c with an error and closes it. It runs on its own
// goroutine so a peer that does not read cannot stall Accept.
func (s *Server) reject(c net.Conn) {
	s.metrics.ConnRejected()
	s.logger.Warn("connection limit reached", "remote", c.RemoteAddr().String(), "limit", s.cfg.MaxConnections)

	rc := resp.NewConn(c)
	rc.SetWriteTimeout(time.Second)
	_ = rc.WriteFrame(resp.ErrorString("ERR max number of clients reached"))
	_ = rc.Close()
}

// Ready is closed once the server is bound and accepting.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address, or nil before Serve has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ActiveConnections returns the number of connections being served.
func (s *Server) ActiveConnections() int {
	return int(s.active.Load())
}

// Shutdown stops accepting, closes every open connection and waits for
// their workers to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)

	var firstErr error

	s.mu.Lock()
	if s.ln != nil {
		if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			firstErr = err
		}
	}
	for w := range s.conns {
		_ = w.conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return firstErr
}

// track registers w for Shutdown. It reports false when the server is
// already shutting down, in which case w must not be served.
func (s *Server) track(w *worker) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Load() {
		return false
	}
	s.conns[w] = struct{}{}
	return true
}

func (s *Server) untrack(w *worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, w)
}

func (s *Server) storeMode() string {
	if s.cfg.StoreMode == StoreShared {
		return StoreShared
	}
	return StoreConnection
}

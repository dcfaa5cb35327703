package config

import "time"

// ServerConfig is the root configuration for minikv-server.
type ServerConfig struct {
	Server  ServerSection  `koanf:"server"`
	PubSub  PubSubSection  `koanf:"pubsub"`
	Metrics MetricsSection `koanf:"metrics"`
	Log     LogSection     `koanf:"log"`
}

// ServerSection configures the key/value listener and its connections.
type ServerSection struct {
	Addr string `koanf:"addr"`

	// Store is "connection" for one store per connection or "shared" for
	// a single store used by every connection.
	Store string `koanf:"store"`

	IdleTimeout  time.Duration `koanf:"idle_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// RateLimit is commands per second per connection; 0 disables it.
	RateLimit int `koanf:"rate_limit"`

	// MaxConnections is 0 for unlimited.
	MaxConnections int `koanf:"max_connections"`

	// SweepEvery is the number of SETs between expired-entry sweeps.
	SweepEvery int `koanf:"sweep_every"`

	// ShutdownTimeout bounds graceful shutdown on SIGINT/SIGTERM.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// PubSubSection configures the publish/subscribe broker.
type PubSubSection struct {
	Enabled bool `koanf:"enabled"`

	// Buffer is the per-subscriber message buffer. Messages beyond it are
	// dropped for that subscriber.
	Buffer int `koanf:"buffer"`
}

// MetricsSection configures the operations HTTP endpoint serving /health,
// /ready, /status and /metrics.
type MetricsSection struct {
	// Addr is empty to disable the endpoint.
	Addr string `koanf:"addr"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

package config

import "time"

// Store modes.
const (
	StoreConnection = "connection"
	StoreShared     = "shared"
)

// Default configuration values.
const (
	DefaultAddr            = "127.0.0.1:6379"
	DefaultStore           = StoreConnection
	DefaultWriteTimeout    = 30 * time.Second
	DefaultSweepEvery      = 1000
	DefaultShutdownTimeout = 10 * time.Second

	DefaultPubSubBuffer = 64

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Addr:            DefaultAddr,
			Store:           DefaultStore,
			WriteTimeout:    DefaultWriteTimeout,
			SweepEvery:      DefaultSweepEvery,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		PubSub: PubSubSection{
			Enabled: true,
			Buffer:  DefaultPubSubBuffer,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

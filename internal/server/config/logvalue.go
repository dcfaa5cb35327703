package config

import "log/slog"

// LogValue implements slog.LogValuer so the effective configuration can be
// logged as one structured attribute.
func (c *ServerConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Group("server",
			slog.String("addr", c.Server.Addr),
			slog.String("store", c.Server.Store),
			slog.Duration("idle_timeout", c.Server.IdleTimeout),
			slog.Duration("write_timeout", c.Server.WriteTimeout),
			slog.Int("rate_limit", c.Server.RateLimit),
			slog.Int("max_connections", c.Server.MaxConnections),
		),
		slog.Group("pubsub",
			slog.Bool("enabled", c.PubSub.Enabled),
			slog.Int("buffer", c.PubSub.Buffer),
		),
		slog.String("metrics_addr", c.Metrics.Addr),
		slog.Group("log",
			slog.String("level", c.Log.Level),
			slog.String("format", c.Log.Format),
		),
	)
}

package config

import (
	"errors"
	"fmt"
	"net"

	"github.com/yndnr/minikv/internal/telemetry/logger"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	return errors.Join(
		verifyServer(&cfg.Server),
		verifyPubSub(&cfg.PubSub),
		verifyMetrics(&cfg.Metrics, &cfg.Server),
		verifyLog(&cfg.Log),
	)
}

func verifyServer(cfg *ServerSection) error {
	var errs []error

	if cfg.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	} else if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		errs = append(errs, fmt.Errorf("server.addr %q: %w", cfg.Addr, err))
	}

	switch cfg.Store {
	case StoreConnection, StoreShared:
	default:
		errs = append(errs, fmt.Errorf("server.store must be %q or %q, got %q", StoreConnection, StoreShared, cfg.Store))
	}

	if cfg.IdleTimeout < 0 {
		errs = append(errs, errors.New("server.idle_timeout must not be negative"))
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, errors.New("server.write_timeout must not be negative"))
	}
	if cfg.RateLimit < 0 {
		errs = append(errs, errors.New("server.rate_limit must not be negative"))
	}
	if cfg.MaxConnections < 0 {
		errs = append(errs, errors.New("server.max_connections must not be negative"))
	}
	if cfg.SweepEvery < 1 {
		errs = append(errs, errors.New("server.sweep_every must be at least 1"))
	}
	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	return errors.Join(errs...)
}

func verifyPubSub(cfg *PubSubSection) error {
	if cfg.Enabled && cfg.Buffer < 1 {
		return errors.New("pubsub.buffer must be at least 1")
	}
	return nil
}

func verifyMetrics(cfg *MetricsSection, srv *ServerSection) error {
	if cfg.Addr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return fmt.Errorf("metrics.addr %q: %w", cfg.Addr, err)
	}
	if cfg.Addr == srv.Addr {
		return fmt.Errorf("metrics.addr and server.addr are both %q", cfg.Addr)
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	var errs []error
	if !logger.ValidLevel(cfg.Level) {
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Level))
	}
	switch cfg.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", cfg.Format))
	}
	return errors.Join(errs...)
}

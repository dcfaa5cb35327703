package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/minikv/internal/infra/buildinfo"
	"github.com/yndnr/minikv/internal/infra/confloader"
	"github.com/yndnr/minikv/internal/infra/shutdown"
	"github.com/yndnr/minikv/internal/pubsub"
	"github.com/yndnr/minikv/internal/server/config"
	"github.com/yndnr/minikv/internal/server/httpserver"
	"github.com/yndnr/minikv/internal/server/httpserver/handler"
	"github.com/yndnr/minikv/internal/server/kvserver"
	"github.com/yndnr/minikv/internal/telemetry/logger"
	"github.com/yndnr/minikv/internal/telemetry/metric"
)

func main() {
	app := &cli.App{
		Name:    "minikv-server",
		Usage:   "RESP key/value server with publish/subscribe",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				EnvVars: []string{"MINIKV_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Key/value listen address (server.addr)",
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Store mode: connection or shared (server.store)",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Operations HTTP listen address, empty to disable (metrics.addr)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error (log.level)",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	configFile := c.String("config")
	flags := flagOverrides(c)

	cfg, err := loadConfig(configFile, flags)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, slogLogger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	log.Info("starting minikv-server",
		"version", buildinfo.Version,
		"commit", buildinfo.Commit,
		"config_file", configFile,
		"config", cfg)

	reg := metric.NewRegistry()

	opts := []kvserver.Option{
		kvserver.WithLogger(slogLogger),
		kvserver.WithMetrics(reg),
	}
	var hub *pubsub.Hub
	if cfg.PubSub.Enabled {
		hub = pubsub.New(pubsub.WithBuffer(cfg.PubSub.Buffer))
		reg.MustRegister(metric.NewPubSubCollector(hub))
		opts = append(opts, kvserver.WithPubSub(hub))
	}

	kv := kvserver.New(&kvserver.Config{
		Address:        cfg.Server.Addr,
		StoreMode:      cfg.Server.Store,
		IdleTimeout:    cfg.Server.IdleTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		RateLimit:      cfg.Server.RateLimit,
		MaxConnections: cfg.Server.MaxConnections,
		SweepEvery:     cfg.Server.SweepEvery,
	}, opts...)

	// Bind before anything else starts so an address in use fails fast.
	kvListener, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}

	shutdownHandler := shutdown.NewHandler(cfg.Server.ShutdownTimeout)

	// Hooks run in reverse order of registration.
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down key/value server")
		return kv.Shutdown(ctx)
	})

	go func() {
		log.Info("key/value server listening", "addr", kvListener.Addr().String())
		if err := kv.Serve(context.Background(), kvListener); err != nil {
			log.Error("key/value server error", "error", err)
			shutdownHandler.Trigger()
		}
	}()

	if cfg.Metrics.Addr != "" {
		if err := startOpsServer(cfg, kv, hub, reg, slogLogger, shutdownHandler); err != nil {
			_ = kv.Shutdown(context.Background())
			return err
		}
	}

	if configFile != "" {
		watchLogLevel(configFile, flags, slogLogger, shutdownHandler)
	}

	log.Info("server started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(c.Context); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// flagOverrides returns the flags the user set, keyed by config path.
func flagOverrides(c *cli.Context) map[string]any {
	keys := map[string]string{
		"addr":         "server.addr",
		"store":        "server.store",
		"metrics-addr": "metrics.addr",
		"log-level":    "log.level",
	}
	out := make(map[string]any)
	for flag, key := range keys {
		if c.IsSet(flag) {
			out[key] = c.String(flag)
		}
	}
	return out
}

// loadConfig loads configuration from file, .env, environment and flags.
func loadConfig(configFile string, flags map[string]any) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{confloader.WithDotEnv(".env")}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	loader := confloader.NewLoader(opts...)

	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if len(flags) > 0 {
		if err := loader.LoadMap(flags); err != nil {
			return nil, err
		}
		if err := loader.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("unmarshal flags: %w", err)
		}
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initLogger initializes the structured logger.
// Returns both the logger interface and slog.Logger for components that need it.
func initLogger(cfg *config.ServerConfig) (logger.Logger, *slog.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, nil, err
	}

	logger.SetDefault(log)
	return log, logger.Slog(log), nil
}

// startOpsServer serves /health, /ready, /status and /metrics on
// metrics.addr.
func startOpsServer(
	cfg *config.ServerConfig,
	kv *kvserver.Server,
	hub *pubsub.Hub,
	reg *metric.Registry,
	log *slog.Logger,
	sh *shutdown.Handler,
) error {
	started := time.Now()

	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Metrics: reg,
		Logger:  log,
		Ready: func() bool {
			select {
			case <-kv.Ready():
				return true
			default:
				return false
			}
		},
		Status: func() handler.Status {
			st := handler.Status{
				Version:       buildinfo.Version,
				UptimeSeconds: int64(time.Since(started).Seconds()),
				Connections:   kv.ActiveConnections(),
				StoreMode:     cfg.Server.Store,
				PubSubEnabled: hub != nil,
			}
			if hub != nil {
				st.PubSubTopics = hub.Topics()
				st.PubSubDropped = hub.Dropped()
			}
			return st
		},
	})

	ln, err := net.Listen("tcp", cfg.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Metrics.Addr, err)
	}

	ops := httpserver.New(cfg.Metrics.Addr, router)
	sh.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down operations server")
		return ops.Shutdown(ctx)
	})

	go func() {
		log.Info("operations server listening", "addr", ln.Addr().String())
		if err := ops.Serve(ln); err != nil {
			log.Error("operations server error", "error", err)
			sh.Trigger()
		}
	}()
	return nil
}

// watchLogLevel reloads the config file on change and applies its
// log.level. Other settings need a restart. Flags still win.
func watchLogLevel(configFile string, flags map[string]any, log *slog.Logger, sh *shutdown.Handler) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		log.Warn("config watcher unavailable", "error", err)
		return
	}
	if err := w.Watch(configFile); err != nil {
		log.Warn("cannot watch config file", "path", configFile, "error", err)
		_ = w.Stop()
		return
	}

	w.OnChange(func(path string) {
		cfg, err := loadConfig(path, flags)
		if err != nil {
			log.Warn("ignoring invalid config change", "path", path, "error", err)
			return
		}
		if cfg.Log.Level != logger.GetLevel() {
			logger.SetLevel(cfg.Log.Level)
			log.Info("log level changed", "level", cfg.Log.Level)
		}
	})
	w.StartAsync()

	sh.OnShutdown(func(context.Context) error {
		return w.Stop()
	})
}

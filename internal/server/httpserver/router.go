package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/yndnr/minikv/internal/server/httpserver/handler"
	"github.com/yndnr/minikv/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Metrics is served at /metrics. Nil serves the global registry.
	Metrics *metric.Registry

	// Status reports live counters for /status.
	Status handler.StatusFunc

	// Ready reports whether the key/value listener is accepting.
	Ready func() bool

	// Logger for request logging.
	Logger *slog.Logger

	// AccessLog logs every request at info level when set.
	AccessLog bool
}

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := handler.New(cfg.Status, cfg.Ready, logger)

	metricsHandler := metric.Handler()
	if cfg.Metrics != nil {
		metricsHandler = cfg.Metrics.Handler()
	}

	// Order: Recover -> RequestID -> AccessLog -> Handler
	middlewares := []Middleware{Recover(logger), RequestID()}
	if cfg.AccessLog {
		middlewares = append(middlewares, AccessLog(logger))
	}

	mux := http.NewServeMux()
	mux.Handle("GET /health", Chain(h, middlewares...))
	mux.Handle("GET /ready", Chain(h, middlewares...))
	mux.Handle("GET /status", Chain(h, middlewares...))
	mux.Handle("GET /metrics", Chain(metricsHandler, middlewares...))

	return mux
}

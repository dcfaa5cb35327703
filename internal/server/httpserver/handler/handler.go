package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Handler serves the operations routes.
type Handler struct {
	status StatusFunc
	ready  func() bool
	logger *slog.Logger
	mux    *http.ServeMux
}

// New creates a new Handler. A nil status reports zero values; a nil ready
// always reports ready.
func New(status StatusFunc, ready func() bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if status == nil {
		status = func() Status { return Status{} }
	}
	if ready == nil {
		ready = func() bool { return true }
	}

	h := &Handler{
		status: status,
		ready:  ready,
		logger: logger,
		mux:    http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)
	h.mux.HandleFunc("GET /status", h.handleStatus)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := getRequestID(w, r)
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID := getRequestID(w, r)
	response := NewErrorResponse(requestID, code, message, nil)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// getRequestID returns the ID set on the response by the RequestID
// middleware, falling back to the request header.
func getRequestID(w http.ResponseWriter, r *http.Request) string {
	if id := w.Header().Get("X-Request-ID"); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}

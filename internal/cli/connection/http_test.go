package connection

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yndnr/minikv/internal/server/httpserver/handler"
)

func TestNewHTTPClient(t *testing.T) {
	tests := []struct {
		name       string
		server     string
		wantPrefix string
	}{
		{"with http prefix", "http://localhost:8080", "http://localhost:8080"},
		{"with https prefix", "https://localhost:8080", "https://localhost:8080"},
		{"without prefix", "localhost:8080", "http://localhost:8080"},
		{"trailing slash", "localhost:8080/", "http://localhost:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewHTTPClient(tt.server)
			if client.BaseURL() != tt.wantPrefix {
				t.Errorf("BaseURL() = %q, want %q", client.BaseURL(), tt.wantPrefix)
			}
		})
	}
}

func TestHTTPClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want GET", r.Method)
		}
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "minikv-cli/") {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		if r.URL.Path != "/test/path" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/test/path")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	resp, err := NewHTTPClient(server.URL).Get(context.Background(), "/test/path")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestHTTPClient_Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(handler.NewResponse("req-1", handler.Status{
			Version:     "v1.0.0",
			Connections: 12,
			StoreMode:   "connection",
		}))
	}))
	defer server.Close()

	st, err := NewHTTPClient(server.URL).Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Version != "v1.0.0" || st.Connections != 12 || st.StoreMode != "connection" {
		t.Errorf("Status() = %+v", st)
	}
}

func TestHTTPClient_Ready(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    any
		wantErr string
	}{
		{"ready", http.StatusOK, handler.NewResponse("r", map[string]string{"status": "ready"}), ""},
		{"not ready", http.StatusServiceUnavailable, handler.NewErrorResponse("r", "NOT_READY", "server is not accepting connections", nil), "[NOT_READY] server is not accepting connections"},
		{"plain error", http.StatusBadGateway, "bad gateway", "request failed with status 502"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				if s, ok := tt.body.(string); ok {
					_, _ = w.Write([]byte(s))
					return
				}
				_ = json.NewEncoder(w).Encode(tt.body)
			}))
			defer server.Close()

			err := NewHTTPClient(server.URL).Ready(context.Background())
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Ready() error = %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("Ready() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestHTTPClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	if _, err := NewHTTPClient(url).Status(context.Background()); err == nil {
		t.Error("Status() against a closed server should fail")
	}
}

func TestParseResponse_InvalidJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.WriteHeader(http.StatusOK)
	_, _ = rec.WriteString("not json")

	err := ParseResponse(rec.Result(), &handler.Status{})
	if err == nil || !strings.Contains(err.Error(), "parse response") {
		t.Errorf("ParseResponse() error = %v, want parse error", err)
	}
}

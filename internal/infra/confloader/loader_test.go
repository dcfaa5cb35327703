package confloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testConfig struct {
	Server struct {
		Addr        string        `koanf:"addr"`
		IdleTimeout time.Duration `koanf:"idle_timeout"`
		RateLimit   int           `koanf:"rate_limit"`
	} `koanf:"server"`
	PubSub struct {
		Enabled bool `koanf:"enabled"`
	} `koanf:"pubsub"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "minikv.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestNewLoader(t *testing.T) {
	l := NewLoader()
	if l == nil {
		t.Fatal("NewLoader() returned nil")
	}
	if l.envPrefix != DefaultEnvPrefix {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, DefaultEnvPrefix)
	}
}

func TestNewLoader_WithOptions(t *testing.T) {
	l := NewLoader(
		WithEnvPrefix("TEST_"),
		WithConfigFile("/path/to/config.yaml"),
		WithDotEnv(".env", ".env.local"),
	)

	if l.envPrefix != "TEST_" {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, "TEST_")
	}
	if l.filePath != "/path/to/config.yaml" {
		t.Errorf("filePath = %q, want %q", l.filePath, "/path/to/config.yaml")
	}
	if len(l.dotEnv) != 2 {
		t.Errorf("dotEnv = %v, want 2 entries", l.dotEnv)
	}
}

func TestLoader_LoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: "0.0.0.0:6380"
pubsub:
  enabled: true
`)

	l := NewLoader()
	if err := l.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if addr := l.GetString("server.addr"); addr != "0.0.0.0:6380" {
		t.Errorf("server.addr = %q, want %q", addr, "0.0.0.0:6380")
	}
	if !l.GetBool("pubsub.enabled") {
		t.Error("pubsub.enabled should be true")
	}
}

func TestLoader_LoadFile_NotFound(t *testing.T) {
	l := NewLoader()
	if err := l.LoadFile("/nonexistent/config.yaml"); err == nil {
		t.Error("LoadFile() should return error for nonexistent file")
	}
}

func TestLoader_LoadFile_Empty(t *testing.T) {
	l := NewLoader()
	if err := l.LoadFile(""); err != nil {
		t.Errorf("LoadFile(\"\") should not error, got: %v", err)
	}
}

func TestLoader_LoadEnv(t *testing.T) {
	t.Setenv("MINIKV_SERVER_ADDR", "127.0.0.1:7000")
	t.Setenv("MINIKV_SERVER_IDLE_TIMEOUT", "45s")

	l := NewLoader()
	if err := l.LoadEnv(); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}

	if addr := l.GetString("server.addr"); addr != "127.0.0.1:7000" {
		t.Errorf("server.addr = %q, want %q", addr, "127.0.0.1:7000")
	}
	// Underscores after the section belong to the key.
	if v := l.GetString("server.idle_timeout"); v != "45s" {
		t.Errorf("server.idle_timeout = %q, want %q", v, "45s")
	}
}

func TestLoader_LoadEnv_CustomPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_PORT", "9090")

	l := NewLoader(WithEnvPrefix("MYAPP_"))
	if err := l.LoadEnv(); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}

	if port := l.GetString("server.port"); port != "9090" {
		t.Errorf("server.port = %q, want %q", port, "9090")
	}
}

func TestLoader_LoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "MINIKV_SERVER_RATE_LIMIT=250\nMINIKV_SERVER_ADDR=from-dotenv:1\n"
	if err := os.WriteFile(envFile, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	// Already-set variables are not overridden by the file.
	t.Setenv("MINIKV_SERVER_ADDR", "from-env:2")
	// Registered for cleanup so the value loaded from the file is removed.
	t.Setenv("MINIKV_SERVER_RATE_LIMIT", "")
	os.Unsetenv("MINIKV_SERVER_RATE_LIMIT")

	l := NewLoader(WithDotEnv(filepath.Join(dir, "missing.env"), envFile))
	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.RateLimit != 250 {
		t.Errorf("RateLimit = %d, want 250", cfg.Server.RateLimit)
	}
	if cfg.Server.Addr != "from-env:2" {
		t.Errorf("Addr = %q, want %q", cfg.Server.Addr, "from-env:2")
	}
}

func TestLoader_LoadMap(t *testing.T) {
	l := NewLoader()

	data := map[string]any{
		"server.addr": "localhost:3000",
		"debug":       true,
	}
	if err := l.LoadMap(data); err != nil {
		t.Fatalf("LoadMap() error = %v", err)
	}

	if addr := l.GetString("server.addr"); addr != "localhost:3000" {
		t.Errorf("server.addr = %q, want %q", addr, "localhost:3000")
	}
	if !l.GetBool("debug") {
		t.Error("debug should be true")
	}

	var cfg testConfig
	if err := l.Unmarshal(&cfg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if cfg.Server.Addr != "localhost:3000" {
		t.Errorf("unmarshalled Addr = %q, want %q", cfg.Server.Addr, "localhost:3000")
	}
}

func TestLoader_Load_Priority(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: "from-file:6379"
  rate_limit: 10
`)
	t.Setenv("MINIKV_SERVER_ADDR", "from-env:6379")

	l := NewLoader(WithConfigFile(path))

	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr != "from-env:6379" {
		t.Errorf("Addr = %q, want %q (env should override file)", cfg.Server.Addr, "from-env:6379")
	}
	if cfg.Server.RateLimit != 10 {
		t.Errorf("RateLimit = %d, want 10 from file", cfg.Server.RateLimit)
	}
}

func TestLoader_Unmarshal_KeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  idle_timeout: "30s"
`)

	var cfg testConfig
	cfg.Server.Addr = "default:6379"

	l := NewLoader(WithConfigFile(path))
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr != "default:6379" {
		t.Errorf("Addr = %q, want default kept", cfg.Server.Addr)
	}
	if cfg.Server.IdleTimeout != 30*time.Second {
		t.Errorf("IdleTimeout = %v, want 30s", cfg.Server.IdleTimeout)
	}
}

func TestLoader_IsLoaded(t *testing.T) {
	l := NewLoader()

	if l.IsLoaded() {
		t.Error("IsLoaded() should be false before Load()")
	}

	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !l.IsLoaded() {
		t.Error("IsLoaded() should be true after Load()")
	}
}

func TestLoader_KeysAndGetInt(t *testing.T) {
	l := NewLoader()
	l.LoadMap(map[string]any{
		"port": 8080,
		"name": "minikv",
	})

	if keys := l.Keys(); len(keys) < 2 {
		t.Errorf("Keys() returned %d keys, want at least 2", len(keys))
	}
	if all := l.All(); len(all) < 2 {
		t.Errorf("All() returned %d keys, want at least 2", len(all))
	}
	if port := l.GetInt("port"); port != 8080 {
		t.Errorf("GetInt(port) = %d, want %d", port, 8080)
	}
}

package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Save original env and restore after test
	originalEnv := os.Environ()
	defer func() {
		os.Clearenv()
		for _, env := range originalEnv {
			for i, c := range env {
				if c == '=' {
					os.Setenv(env[:i], env[i+1:])
					break
				}
			}
		}
	}()

	os.Clearenv()

	cfg := Load()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"Port", cfg.Port, 8080},
		{"HealthPort", cfg.HealthPort, 8081},
		{"LogLevel", cfg.LogLevel, "info"},
		{"LogFormat", cfg.LogFormat, "json"},
		{"BackendProvider", cfg.BackendProvider, "remote"},
		{"RemoteAPIURL", cfg.RemoteAPIURL, "http://localhost:8000/v1/"},
		{"RemoteModel", cfg.RemoteModel, "chatglm2-6b"},
		{"RemoteTimeout", cfg.RemoteTimeout, 5 * time.Minute},
		{"RemoteProbeTimeout", cfg.RemoteProbeTimeout, 5 * time.Second},
		{"RemoteMaxTokens", cfg.RemoteMaxTokens, 1000},
		{"LocalMaxNewTokens", cfg.LocalMaxNewTokens, 800},
		{"Temperature", cfg.Temperature, 0.7},
		{"TopP", cfg.TopP, 0.9},
		{"Stop", cfg.Stop(), "\n\n"},
		{"PacingDelay", cfg.PacingDelay, time.Second},
		{"MaxAttempts", cfg.MaxAttempts, uint(1)},
		{"CacheProvider", cfg.CacheProvider, "none"},
		{"CacheTTL", cfg.CacheTTL, 24 * time.Hour},
		{"StoreProvider", cfg.StoreProvider, "none"},
		{"QueueProvider", cfg.QueueProvider, "nats"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("expected %s=%v, got %v", tt.name, tt.expected, tt.got)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("BACKEND_PROVIDER", "local")
	t.Setenv("PACING_DELAY", "250ms")

	cfg := Load()

	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.LogLevel)
	}
	if cfg.BackendProvider != "local" {
		t.Errorf("expected backend 'local', got %s", cfg.BackendProvider)
	}
	if cfg.PacingDelay != 250*time.Millisecond {
		t.Errorf("expected pacing 250ms, got %s", cfg.PacingDelay)
	}
}

func TestStopEscapes(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`\n\n`, "\n\n"},
		{"\n\n", "\n\n"},
		{"", ""},
		{"###", "###"},
		{`say "end"`, `say "end"`},
	}
	for _, tt := range tests {
		if got := (Config{GenStop: tt.raw}).Stop(); got != tt.want {
			t.Errorf("Stop(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

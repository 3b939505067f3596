package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.BaseURL != "http://localhost:8000" {
		t.Errorf("unexpected api url: %s", cfg.API.BaseURL)
	}
	if cfg.Socket.HandshakeTimeout != 10*time.Second {
		t.Errorf("unexpected handshake timeout: %v", cfg.Socket.HandshakeTimeout)
	}
	if cfg.Socket.MaxReconnects != 3 || cfg.Socket.ReconnectDelay != 2*time.Second {
		t.Errorf("unexpected reconnect policy: %d x %v", cfg.Socket.MaxReconnects, cfg.Socket.ReconnectDelay)
	}
	if cfg.Job.TickInterval != time.Second {
		t.Errorf("unexpected tick interval: %v", cfg.Job.TickInterval)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
api:
  base_url: https://api.example.com
socket:
  url: wss://api.example.com/ws/convert
  max_reconnects: 5
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.BaseURL != "https://api.example.com" {
		t.Errorf("unexpected api url: %s", cfg.API.BaseURL)
	}
	if cfg.Socket.URL != "wss://api.example.com/ws/convert" {
		t.Errorf("unexpected socket url: %s", cfg.Socket.URL)
	}
	if cfg.Socket.MaxReconnects != 5 {
		t.Errorf("unexpected max reconnects: %d", cfg.Socket.MaxReconnects)
	}
	// Untouched sections keep their defaults.
	if cfg.Socket.HandshakeTimeout != 10*time.Second {
		t.Errorf("unexpected handshake timeout: %v", cfg.Socket.HandshakeTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("unexpected log level: %s", cfg.Logging.Level)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("api:\n  base_url: https://file.example.com\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PARSESAAS_API_URL", "https://env.example.com")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.BaseURL != "https://env.example.com" {
		t.Errorf("expected env override, got %s", cfg.API.BaseURL)
	}
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"bad log level", "logging:\n  level: chatty\n"},
		{"bad log format", "logging:\n  format: xml\n"},
		{"zero handshake timeout", "socket:\n  handshake_timeout: 0s\n"},
		{"negative reconnects", "socket:\n  max_reconnects: -1\n"},
		{"empty api url", "api:\n  base_url: \"\"\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("PARSESAAS_API_URL", "")
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tc.content), 0o600); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("api: [unclosed"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eventlink.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.Features.ManageServerEvents {
		t.Error("ManageServerEvents = false, want true")
	}
	if cfg.Session.KeepAliveInterval != 9*time.Minute {
		t.Errorf("KeepAliveInterval = %v, want 9m", cfg.Session.KeepAliveInterval)
	}
	if cfg.Session.ReopenAfter != 119*time.Minute {
		t.Errorf("ReopenAfter = %v, want 119m", cfg.Session.ReopenAfter)
	}
	if cfg.Mongo.Database != "eventlink" {
		t.Errorf("Database = %v, want eventlink", cfg.Mongo.Database)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
log_level: debug
features:
  manage_server_events: false
websocket:
  url: ws://localhost:9000/events
session:
  keep_alive_interval: 30s
  reopen_after: 1h
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
	if cfg.Features.ManageServerEvents {
		t.Error("ManageServerEvents = true, want false")
	}
	if cfg.WebSocket.URL != "ws://localhost:9000/events" {
		t.Errorf("URL = %v, want ws://localhost:9000/events", cfg.WebSocket.URL)
	}
	if cfg.Session.KeepAliveInterval != 30*time.Second {
		t.Errorf("KeepAliveInterval = %v, want 30s", cfg.Session.KeepAliveInterval)
	}
	if cfg.Session.ReopenAfter != time.Hour {
		t.Errorf("ReopenAfter = %v, want 1h", cfg.Session.ReopenAfter)
	}
	// Unset keys keep their defaults.
	if cfg.Session.PruneInterval != 5*time.Minute {
		t.Errorf("PruneInterval = %v, want 5m", cfg.Session.PruneInterval)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "metrics:\n  addr: \":9000\"\n")
	t.Setenv("EVENTLINK_METRICS_ADDR", ":9100")
	t.Setenv("EVENTLINK_SESSION_KEEP_ALIVE_INTERVAL", "2m")
	t.Setenv("EVENTLINK_FEATURES_MANAGE_SERVER_EVENTS", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %v, want :9100", cfg.Metrics.Addr)
	}
	if cfg.Session.KeepAliveInterval != 2*time.Minute {
		t.Errorf("KeepAliveInterval = %v, want 2m", cfg.Session.KeepAliveInterval)
	}
	if cfg.Features.ManageServerEvents {
		t.Error("ManageServerEvents = true, want false")
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad yaml", "session: [", "failed to parse config"},
		{"bad duration", "session:\n  reopen_after: soon\n", "failed to parse config"},
		{"non-positive timing", "session:\n  prune_interval: 0s\n", "session.prune_interval"},
		{"missing url", "websocket:\n  url: \"\"\n", "websocket.url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			if err == nil {
				t.Fatal("Load() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load(missing) error = nil, want error")
	}
}

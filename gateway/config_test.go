package gateway

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Listen != "0.0.0.0:8080" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.FlowsDir != "./flows" {
		t.Errorf("FlowsDir = %q", cfg.FlowsDir)
	}
	if cfg.Engine.SessionTTL != 30*time.Minute {
		t.Errorf("SessionTTL = %v", cfg.Engine.SessionTTL)
	}
	if cfg.History.Backend != "none" {
		t.Errorf("History.Backend = %q", cfg.History.Backend)
	}
	if cfg.HTTP.Timeout != 20*time.Second {
		t.Errorf("HTTP.Timeout = %v", cfg.HTTP.Timeout)
	}
	if cfg.Sheets.Enabled {
		t.Error("sheets should be disabled by default")
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := writeConfig(t, `
listen: 127.0.0.1:9999
flows_dir: /tmp/flows
engine:
  session_ttl: 10m
  action_timeout: 5s
history:
  backend: file
  path: /tmp/h.jsonl
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Listen != "127.0.0.1:9999" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.Engine.SessionTTL != 10*time.Minute {
		t.Errorf("SessionTTL = %v", cfg.Engine.SessionTTL)
	}
	if cfg.Engine.ActionTimeout != 5*time.Second {
		t.Errorf("ActionTimeout = %v", cfg.Engine.ActionTimeout)
	}
	// Unset fields still get their defaults.
	if cfg.Engine.SweepInterval != 5*time.Minute {
		t.Errorf("SweepInterval = %v", cfg.Engine.SweepInterval)
	}
	if cfg.History.Backend != "file" || cfg.History.Path != "/tmp/h.jsonl" {
		t.Errorf("history = %+v", cfg.History)
	}
}

func TestLoadConfig_RejectsBadListen(t *testing.T) {
	path := writeConfig(t, "listen: not-an-address\n")
	if _, err := LoadConfig(path); err == nil {
		t.Error("invalid listen address should fail validation")
	}
}

func TestLoadConfig_RejectsUnknownHistoryBackend(t *testing.T) {
	path := writeConfig(t, "history:\n  backend: kafka\n")
	if _, err := LoadConfig(path); err == nil {
		t.Error("unknown history backend should fail validation")
	}
}

func TestLoadConfig_PostgresNeedsConnectionString(t *testing.T) {
	path := writeConfig(t, "history:\n  backend: postgres\n")
	if _, err := LoadConfig(path); err == nil {
		t.Error("postgres backend without connection string should fail")
	}
}

func TestLoadConfig_SheetsValidatedOnlyWhenEnabled(t *testing.T) {
	disabled := writeConfig(t, "sheets:\n  enabled: false\n")
	if _, err := LoadConfig(disabled); err != nil {
		t.Errorf("disabled sheets must not require options: %v", err)
	}

	enabled := writeConfig(t, "sheets:\n  enabled: true\n")
	if _, err := LoadConfig(enabled); err == nil {
		t.Error("enabled sheets without a base URL should fail")
	}
}

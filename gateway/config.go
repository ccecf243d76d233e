package gateway

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/convoflow/convoflow/actions/httpaction"
	"github.com/convoflow/convoflow/actions/sheets"
	"github.com/convoflow/convoflow/history"
	"github.com/convoflow/convoflow/runtime"
)

// Config is the full server configuration, loaded from a YAML file with
// struct-tag defaults filled in before validation.
type Config struct {
	Listen   string `yaml:"listen" default:"0.0.0.0:8080" validate:"hostname_port"`
	FlowsDir string `yaml:"flows_dir" default:"./flows"`
	HooksDir string `yaml:"hooks_dir" default:"./hooks"`

	Engine runtime.EngineConfig `yaml:"engine"`

	History HistoryConfig `yaml:"history"`

	HTTP   httpaction.Options `yaml:"http"`
	Sheets SheetsConfig       `yaml:"sheets"`
}

// HistoryConfig selects where completed sessions are recorded. Backend is
// one of "none", "file" or "postgres".
type HistoryConfig struct {
	Backend string `yaml:"backend" default:"none" validate:"oneof=none file postgres"`
	Path    string `yaml:"path" default:"./history.jsonl"`
	// Validated only when the postgres backend is selected.
	Postgres history.PostgresConfig `yaml:"postgres" validate:"-"`
}

// SheetsConfig gates the sheets actions: they are only registered when a
// base URL is configured.
type SheetsConfig struct {
	Enabled bool `yaml:"enabled" default:"false"`
	// Validated only when enabled.
	Options sheets.Options `yaml:"options" validate:"-"`
}

// LoadConfig reads, defaults and validates a YAML config file. An empty
// path yields the default configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("gateway: reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("gateway: parsing config %s: %w", path, err)
		}
	}

	if err := runtime.PrepareConfig(cfg); err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}

	if cfg.History.Backend == "postgres" {
		if err := runtime.PrepareConfig(&cfg.History.Postgres); err != nil {
			return nil, fmt.Errorf("gateway: history postgres: %w", err)
		}
	}
	if cfg.Sheets.Enabled {
		if err := runtime.PrepareConfig(&cfg.Sheets.Options); err != nil {
			return nil, fmt.Errorf("gateway: sheets options: %w", err)
		}
	}
	return cfg, nil
}

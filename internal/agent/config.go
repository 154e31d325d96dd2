// Package agent implements the desktop recorder companion: it watches a
// folder for finished call recordings and pushes them through the presigned
// upload flow.
package agent

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is loaded from the agent's YAML file.
type Config struct {
	APIBaseURL string `yaml:"api_base_url"`
	Token      string `yaml:"token"`
	WatchDir   string `yaml:"watch_dir"`

	// Extensions to pick up; defaults cover the common recorder formats.
	Extensions []string `yaml:"extensions"`

	// SettleTime is how long a file must stay unchanged before upload, so a
	// recording still being written is not shipped half-finished.
	SettleTime time.Duration `yaml:"settle_time"`

	Language string `yaml:"language"`
}

var defaultExtensions = []string{".mp3", ".wav", ".m4a", ".mp4", ".ogg", ".flac"}

func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("agent: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("agent: parse config: %w", err)
	}
	if cfg.APIBaseURL == "" {
		return Config{}, fmt.Errorf("agent: api_base_url is required")
	}
	if cfg.Token == "" {
		return Config{}, fmt.Errorf("agent: token is required")
	}
	if cfg.WatchDir == "" {
		return Config{}, fmt.Errorf("agent: watch_dir is required")
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = defaultExtensions
	}
	if cfg.SettleTime <= 0 {
		cfg.SettleTime = 5 * time.Second
	}
	return cfg, nil
}

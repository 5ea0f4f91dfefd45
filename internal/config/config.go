// Package config holds the engine configuration and its YAML/JSON loader.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"lattice/internal/correlate"
	"lattice/internal/score"
	"lattice/internal/store"
	"lattice/internal/timeline"
)

// Config is the full engine configuration. Durations are Go duration
// strings ("24h", "200ms"). Zero values fall back to defaults, so a partial
// file only overrides what it names.
type Config struct {
	DBPath    string `yaml:"db_path" json:"db_path"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"` // text | json

	Workers   int     `yaml:"workers" json:"workers"`
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"` // documents/sec, 0 = unlimited

	TierWeights map[string]float64 `yaml:"tier_weights" json:"tier_weights"`
	ScoreK      float64            `yaml:"score_k" json:"score_k"`

	ContradictionTolerance string `yaml:"contradiction_tolerance" json:"contradiction_tolerance"`
	ClusterWindow          string `yaml:"cluster_window" json:"cluster_window"`
	GapThreshold           string `yaml:"gap_threshold" json:"gap_threshold"`

	MatrixThreshold int    `yaml:"matrix_threshold" json:"matrix_threshold"`
	SyncWindow      string `yaml:"sync_window" json:"sync_window"`

	RetryAttempts int    `yaml:"retry_attempts" json:"retry_attempts"`
	RetryBackoff  string `yaml:"retry_backoff" json:"retry_backoff"`
	RetryTimeout  string `yaml:"retry_timeout" json:"retry_timeout"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DBPath:                 store.DefaultDBPath,
		LogLevel:               "info",
		LogFormat:              "text",
		Workers:                4,
		ScoreK:                 1.0,
		ContradictionTolerance: "24h",
		ClusterWindow:          "48h",
		GapThreshold:           "720h",
		MatrixThreshold:        3,
		SyncWindow:             "48h",
		RetryAttempts:          3,
		RetryBackoff:           "200ms",
		RetryTimeout:           "5s",
	}
}

// LoadFromPath reads a config file (YAML or JSON). Format is detected by
// extension (.yaml/.yml → YAML, .json → JSON) or by content.
func LoadFromPath(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Load(data, filepath.Ext(path))
}

// Load parses config from bytes over the defaults. ext is the file
// extension for the format hint; empty = detect from content.
func Load(data []byte, ext string) (Config, error) {
	cfg := Default()
	ext = strings.ToLower(ext)
	if ext == ".yml" {
		ext = ".yaml"
	}
	useJSON := ext == ".json"
	if ext == "" {
		useJSON = strings.HasPrefix(strings.TrimSpace(string(data)), "{")
	}
	if useJSON {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config yaml: %w", err)
		}
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	for name, w := range c.TierWeights {
		if !store.ValidTier(store.Tier(name)) {
			return fmt.Errorf("tier_weights: unknown tier %q", name)
		}
		if w < 0 || w > 1 {
			return fmt.Errorf("tier_weights: %s = %v out of [0,1]", name, w)
		}
	}
	for _, d := range []string{
		c.ContradictionTolerance, c.ClusterWindow, c.GapThreshold,
		c.SyncWindow, c.RetryBackoff, c.RetryTimeout,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("bad duration %q: %w", d, err)
		}
	}
	return nil
}

func duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// TimelineConfig materializes the fusion windows.
func (c Config) TimelineConfig() timeline.Config {
	def := timeline.DefaultConfig()
	return timeline.Config{
		Tolerance:     duration(c.ContradictionTolerance, def.Tolerance),
		ClusterWindow: duration(c.ClusterWindow, def.ClusterWindow),
		GapThreshold:  duration(c.GapThreshold, def.GapThreshold),
	}
}

// ScoreConfig materializes the scoring weights.
func (c Config) ScoreConfig() score.Config {
	cfg := score.Config{K: c.ScoreK}
	if len(c.TierWeights) > 0 {
		cfg.Weights = score.DefaultWeights()
		for name, w := range c.TierWeights {
			cfg.Weights[store.Tier(name)] = w
		}
	}
	return cfg
}

// CorrelateConfig materializes the correlation thresholds.
func (c Config) CorrelateConfig() correlate.Config {
	def := correlate.DefaultConfig()
	return correlate.Config{
		MatrixThreshold: c.MatrixThreshold,
		SyncWindow:      duration(c.SyncWindow, def.SyncWindow),
	}
}

// RetryConfig materializes the gateway retry budget.
func (c Config) RetryConfig() store.RetryConfig {
	def := store.DefaultRetryConfig()
	cfg := store.RetryConfig{
		Attempts: c.RetryAttempts,
		Backoff:  duration(c.RetryBackoff, def.Backoff),
		Timeout:  duration(c.RetryTimeout, def.Timeout),
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = def.Attempts
	}
	return cfg
}

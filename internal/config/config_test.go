package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"lattice/internal/store"
)

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	data := []byte(`
db_path: /tmp/alt.db
workers: 8
matrix_threshold: 5
contradiction_tolerance: 12h
tier_weights:
  leaked: 0.6
`)
	cfg, err := Load(data, ".yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/alt.db" || cfg.Workers != 8 || cfg.MatrixThreshold != 5 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	// Unnamed fields keep defaults.
	if cfg.LogLevel != "info" || cfg.ClusterWindow != "48h" {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if got := cfg.TimelineConfig().Tolerance; got != 12*time.Hour {
		t.Errorf("tolerance = %s", got)
	}
	sc := cfg.ScoreConfig()
	if sc.Weights[store.TierLeaked] != 0.6 {
		t.Errorf("leaked weight = %v", sc.Weights[store.TierLeaked])
	}
	if sc.Weights[store.TierTrusted] != 1.0 {
		t.Errorf("unnamed tier weight changed: %v", sc.Weights[store.TierTrusted])
	}
}

func TestLoad_ContentSniffing(t *testing.T) {
	jsonData := []byte(`{"workers": 2}`)
	cfg, err := Load(jsonData, "")
	if err != nil || cfg.Workers != 2 {
		t.Errorf("json sniff: %+v err=%v", cfg, err)
	}
	yamlData := []byte("workers: 3\n")
	cfg, err = Load(yamlData, "")
	if err != nil || cfg.Workers != 3 {
		t.Errorf("yaml sniff: %+v err=%v", cfg, err)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := []string{
		"tier_weights:\n  sponsored: 0.9\n",
		"tier_weights:\n  trusted: 1.5\n",
		"sync_window: forty-eight-hours\n",
	}
	for _, data := range cases {
		if _, err := Load([]byte(data), ".yaml"); err == nil {
			t.Errorf("Load(%q) accepted bad config", data)
		}
	}
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yml")
	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromPath(path)
	if err != nil || cfg.LogLevel != "debug" {
		t.Errorf("LoadFromPath: %+v err=%v", cfg, err)
	}
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("missing file must error")
	}
}

func TestRetryConfigFallbacks(t *testing.T) {
	cfg := Config{}
	rc := cfg.RetryConfig()
	def := store.DefaultRetryConfig()
	if rc.Attempts != def.Attempts || rc.Backoff != def.Backoff || rc.Timeout != def.Timeout {
		t.Errorf("zero config must fall back to defaults: %+v", rc)
	}
}

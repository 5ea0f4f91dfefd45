package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lattice/internal/config"
	"lattice/internal/ingest"
	"lattice/internal/logging"
	"lattice/internal/store"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	dbPath     string
	logLevel   string
	logFormat  string
}

var rootCmd = &cobra.Command{
	Use:   "lattice",
	Short: "Analytic fusion for OSINT investigations",
	Long: "Lattice fuses collected open-source artifacts into deduplicated documents,\n" +
		"canonical entities, relationship graphs, and trust-scored timelines,\n" +
		"and correlates findings across investigation reports.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configPath, "config", "", "Engine config file (YAML/JSON)")
	pf.StringVar(&rootFlags.dbPath, "db", "", "Store DB path (overrides config)")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	pf.StringVar(&rootFlags.logFormat, "log-format", "", "Log format: text or json (overrides config)")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(entitiesCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(timelineCmd)
	rootCmd.AddCommand(correlateCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

// loadConfig resolves the effective config: file if given, defaults
// otherwise, with command-line overrides on top.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if rootFlags.configPath != "" {
		loaded, err := config.LoadFromPath(rootFlags.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if rootFlags.dbPath != "" {
		cfg.DBPath = rootFlags.dbPath
	}
	if rootFlags.logLevel != "" {
		cfg.LogLevel = rootFlags.logLevel
	}
	if rootFlags.logFormat != "" {
		cfg.LogFormat = rootFlags.logFormat
	}
	return cfg, nil
}

// openEngine loads config, initializes logging, and opens the store behind
// the retrying gateway. The caller closes the engine's store.
func openEngine() (*ingest.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logging.Init(level, cfg.LogFormat)

	inner, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	gw := store.WithRetry(inner, cfg.RetryConfig())
	return ingest.New(gw, cfg), nil
}

package commands

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/keisuke-w/tokenwatch/internal/config"
	"github.com/keisuke-w/tokenwatch/internal/util"
)

var (
	debug      bool
	configPath string

	rootCmd = &cobra.Command{
		Use:   "tokenwatch",
		Short: "AI usage and quota tracking tool",
		Long: `tokenwatch aggregates locally logged AI usage records into cost reports
and tracks remaining per-model quota across any number of accounts.

Examples:
  tokenwatch usage                         # Aggregate all logged usage
  tokenwatch usage --since 7d              # Last 7 days only
  tokenwatch usage --session abc123        # One session
  tokenwatch usage --output json           # Machine-readable output
  tokenwatch quota                         # Remaining quota per model
  tokenwatch quota --force                 # Skip cached tokens`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"Enable debug mode")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file path (default ~/.tokenwatch/config.yaml)")

	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(quotaCmd)
}

// loadConfig reads the config file and initializes logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logLevel := cfg.Log.Level
	if debug {
		logLevel = "debug"
	}
	if cfg.Log.File != "" {
		util.EnsureDir(filepath.Dir(cfg.Log.File))
	}
	util.InitLogger(logLevel, cfg.Log.File, debug)

	return cfg, nil
}

func Execute() error {
	return rootCmd.Execute()
}

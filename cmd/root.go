package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/kamusis/addonrepo/internal/config"
	"github.com/kamusis/addonrepo/internal/logging"
)

var (
	flagConfig   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:          "addonrepo",
	Short:        "addonrepo — build and serve Kodi addon repositories",
	SilenceUsage: true, // don't print usage on operational errors
	Long: `addonrepo scans a directory of Kodi addon packages, writes a checksummed
repository index (addons.xml) and can serve it, with zipped packages, over HTTP.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default ./"+config.FileName+")")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// Execute is called by main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads the config file and applies global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("cannot load config: %w", err)
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*log.Logger, error) {
	return logging.New(os.Stderr, cfg.LogLevel)
}

// dirArgs overrides the configured addons and output directories with
// positional arguments.
func dirArgs(cfg *config.Config, args []string) {
	if len(args) > 0 {
		cfg.AddonsDir = args[0]
	}
	if len(args) > 1 {
		cfg.OutputDir = args[1]
	}
}

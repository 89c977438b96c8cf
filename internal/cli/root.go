// Package cli implements the framestep command line.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/framestep/internal/config"
	"github.com/me/framestep/internal/logging"
)

var (
	flagConfig    string
	flagServer    string
	flagDB        string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	cfg    config.Config
	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking FRAMESTEP_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("FRAMESTEP_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the framestep CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "framestep",
		Short: "framestep: frame-budgeted generation stepping",
		Long: `framestep advances cellular automata one generation at a time within a
per-frame time budget, spreading expensive generations across frames and
recording pass timings to a local SQLite database.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg = loaded
			logger = logging.NewLoggerWithWriter(logging.ParseLevel(cfg.Server.LogLevel), cfg.Server.LogFormat, cmd.ErrOrStderr())
			client = NewClient(flagServer, logger)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "framestep server URL (or FRAMESTEP_SERVER env)")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "Telemetry database path (default ~/.framestep/framestep.db)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newBenchCmd(),
		newServeCmd(),
		newRunsCmd(),
		newShowCmd(),
		newStatusCmd(),
		newPatternsCmd(),
	)

	return root
}

// loadConfig reads --config over the defaults and applies the persistent
// flags the user set explicitly.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	c := config.Default()
	if flagConfig != "" {
		var err error
		if c, err = config.Load(flagConfig); err != nil {
			return c, err
		}
	}

	set := cmd.Flags().Changed
	if set("log-level") {
		c.Server.LogLevel = flagLogLevel
	}
	if set("log-format") {
		c.Server.LogFormat = flagLogFormat
	}
	if set("db") {
		c.Server.DBPath = flagDB
	}
	if flagDebug {
		c.Server.LogLevel = "debug"
	}
	if !logging.ValidFormat(c.Server.LogFormat) {
		return c, fmt.Errorf("invalid --log-format %q: must be text or json", c.Server.LogFormat)
	}
	return c, nil
}

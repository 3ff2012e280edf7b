// Package cli implements the scopesync command-line interface.
package cli

import (
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/scopesync/internal/api"
	"github.com/randalmurphal/scopesync/internal/config"
)

var (
	cfgFile   string
	verbose   bool
	serverURL string
	timeout   time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scopesync",
	Short: "Keep a local view of Teamwork projects for estimation",
	Long: `scopesync links Teamwork accounts and keeps their projects, task lists
and tasks available for estimation work.

Quick start:
  scopesync serve                          Run the connection API
  scopesync connect --token <token>        Link a Teamwork account
  scopesync browse                         List linked accounts
  scopesync browse <conn> <project>        Show a project's task lists
  scopesync tasks <conn> <taskList>        Show a task list as a tree
  scopesync estimate <conn> <task> 2.5     Write an estimation in hours`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .scopesync/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "API server URL (default is http://<server.addr>)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "time limit for client commands")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newConnectCmd())
	rootCmd.AddCommand(newBrowseCmd())
	rootCmd.AddCommand(newTasksCmd())
	rootCmd.AddCommand(newEstimateCmd())
	rootCmd.AddCommand(newConfigCmd())
}

// loadConfig reads the configuration and installs the default logger.
func loadConfig(stderr io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(stderr, cfg, verbose)
	slog.SetDefault(logger)
	if cfg.Source != "" {
		logger.Debug("using config file", "path", cfg.Source)
	}
	return cfg, logger, nil
}

func newLogger(w io.Writer, cfg *config.Config, verbose bool) *slog.Logger {
	level := cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newAPIClient returns a client for the configured API server.
func newAPIClient(cfg *config.Config, logger *slog.Logger) (*api.Client, error) {
	base := serverURL
	if base == "" {
		base = "http://" + cfg.Server.Addr
	}
	return api.NewClient(api.ClientConfig{
		BaseURL:  base,
		Timeout:  cfg.Teamwork.Timeout,
		RetryMax: cfg.Teamwork.RetryMax,
		Logger:   logger,
	})
}

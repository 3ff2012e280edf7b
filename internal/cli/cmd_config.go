package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newConfigCmd creates the config command with subcommands.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View configuration",
		Long: `View scopesync configuration.

Configuration is loaded with this priority:
  1. Environment variables (SCOPESYNC_*, e.g. SCOPESYNC_SERVER_ADDR)
  2. The --config file, or .scopesync/config.yaml, or ~/.scopesync/config.yaml
  3. Built-in defaults`,
	}

	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

// newConfigShowCmd creates the 'config show' subcommand.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long:  `Show the effective configuration as YAML.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			data, err := cfg.YAML()
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}

			out := cmd.OutOrStdout()
			if cfg.Source != "" {
				fmt.Fprintf(out, "# source: %s\n", cfg.Source)
			}
			_, err = out.Write(data)
			return err
		},
	}
}

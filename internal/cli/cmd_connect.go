package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/scopesync/internal/connection"
	syncerrors "github.com/randalmurphal/scopesync/internal/errors"
	"github.com/randalmurphal/scopesync/internal/orchestrator"
)

func newConnectCmd() *cobra.Command {
	var (
		token string
		yes   bool
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Link a Teamwork account",
		Long: `Link a Teamwork account using an API token.

The token is validated with Teamwork and the account it belongs to is shown
for confirmation. When --token is omitted the token is read from stdin.

Example:
  scopesync connect --token twp_abc123
  echo twp_abc123 | scopesync connect --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			client, err := newAPIClient(cfg, logger)
			if err != nil {
				return err
			}

			in := bufio.NewReader(cmd.InOrStdin())
			if strings.TrimSpace(token) == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Teamwork API token: ")
				token, err = in.ReadString('\n')
				if err != nil && err != io.EOF {
					return fmt.Errorf("read token: %w", err)
				}
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()

			out := cmd.OutOrStdout()
			prompter := &terminalPrompter{in: in, out: cmd.ErrOrStderr(), yes: yes}
			navigator := orchestrator.NavigatorFunc(func(_ context.Context, path string) error {
				logger.Debug("navigate", "path", path)
				return nil
			})

			o := orchestrator.New(client, client,
				orchestrator.WithLogger(logger),
				orchestrator.WithPrompter(prompter),
				orchestrator.WithNavigator(navigator),
			)
			defer o.Close()

			c, err := o.AddConnection(ctx, connection.NewConnection{Token: token})
			if err != nil {
				if prompter.declined != "" {
					if rmErr := client.RemoveConnection(ctx, prompter.declined); rmErr != nil {
						logger.Warn("remove declined connection", "connection_id", prompter.declined, "error", rmErr)
					}
				}
				return err
			}

			r := newRenderer(out)
			r.connection(c)
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Teamwork API token")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

// terminalPrompter asks the user to confirm the account behind a token.
// declined holds the id of a connection the user rejected.
type terminalPrompter struct {
	in       *bufio.Reader
	out      io.Writer
	yes      bool
	declined string
}

func (p *terminalPrompter) Verify(_ context.Context, v orchestrator.Verification) error {
	if p.yes {
		fmt.Fprintf(p.out, "Connecting %s account of %s (%s)\n", v.Type, v.Name, v.Company)
		return nil
	}
	fmt.Fprintf(p.out, "Connect %s account of %s (%s)? [y/N] ", v.Type, v.Name, v.Company)
	answer, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return nil
	default:
		p.declined = v.ConnectionID
		return syncerrors.ErrInvalidInput("confirmation", "connection was not confirmed")
	}
}

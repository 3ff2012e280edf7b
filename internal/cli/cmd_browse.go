package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/scopesync/internal/connection"
	syncerrors "github.com/randalmurphal/scopesync/internal/errors"
	"github.com/randalmurphal/scopesync/internal/orchestrator"
)

func newBrowseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browse [connection-id] [project-id]",
		Short: "Browse connections, projects and task lists",
		Long: `Browse linked Teamwork accounts.

With no arguments the connections are listed. With a connection id its
projects are listed, and with a project id as well that project's task
lists are listed.

Example:
  scopesync browse
  scopesync browse 5f0c...            # projects
  scopesync browse 5f0c... 481516     # task lists`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			client, err := newAPIClient(cfg, logger)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()

			o := orchestrator.New(client, client, orchestrator.WithLogger(logger))
			defer o.Close()

			return browse(ctx, o, newRenderer(cmd.OutOrStdout()), args)
		},
	}
}

func browse(ctx context.Context, o *orchestrator.Orchestrator, r *renderer, args []string) error {
	switch len(args) {
	case 0:
		o.LoadConnections()
		st, err := o.Store().WaitFor(ctx, func(s *connection.State) bool {
			return s.UiState == connection.UiLoaded || s.UiState == connection.UiError
		})
		if err != nil {
			return err
		}
		if st.UiState == connection.UiError {
			return syncerrors.ErrOrchestrator(st.Error)
		}
		r.connections(st.List())
		return nil

	case 1:
		if err := o.SelectConnection(ctx, args[0]); err != nil {
			return err
		}
		if _, ok := o.State().Connection(args[0]); !ok {
			return syncerrors.ErrConnectionNotFound(args[0])
		}
		st, err := waitFetched(ctx, o, func(s *connection.State) bool {
			c := s.SelectedConnection()
			return c != nil && c.Projects != nil
		})
		if err != nil {
			return err
		}
		r.projects(st.SelectedConnection())
		return nil

	default:
		if err := o.SelectProject(ctx, args[0], args[1]); err != nil {
			return err
		}
		st, err := waitFetched(ctx, o, func(s *connection.State) bool {
			p, ok := s.SelectedProject()
			return ok && p.TaskLists != nil
		})
		if err != nil {
			return err
		}
		p, _ := st.SelectedProject()
		r.taskLists(p)
		return nil
	}
}

// waitFetched waits for the data a selection fetches, or for that fetch to fail.
func waitFetched(ctx context.Context, o *orchestrator.Orchestrator, ready func(*connection.State) bool) (*connection.State, error) {
	st, err := o.Store().WaitFor(ctx, func(s *connection.State) bool {
		return ready(s) || s.UiState == connection.UiError
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for Teamwork: %w", err)
	}
	if !ready(st) {
		return nil, syncerrors.ErrOrchestrator(st.Error)
	}
	return st, nil
}

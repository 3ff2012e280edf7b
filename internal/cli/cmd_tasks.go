package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	syncerrors "github.com/randalmurphal/scopesync/internal/errors"
)

func newTasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks <connection-id> <task-list-id>",
		Short: "Show the tasks of a task list as a tree",
		Long: `Show the tasks of a Teamwork task list with their estimations.

Subtasks are nested under their parent and the total of all estimations is
printed at the end.

Example:
  scopesync tasks 5f0c... 1234`,
		Args: cobra.ExactArgs(2),
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

			tasks, err := client.GetTasks(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			newRenderer(cmd.OutOrStdout()).taskTree(tasks)
			return nil
		},
	}
}

func newEstimateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "estimate <connection-id> <task-id> <hours>",
		Short: "Write an estimation to a task",
		Long: `Write an estimation in hours to a Teamwork task.

Teamwork stores whole minutes, so the value is rounded to the nearest
minute. The task is read back after the update.

Example:
  scopesync estimate 5f0c... 99 2.5`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			hours, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return syncerrors.ErrInvalidInput("hours", fmt.Sprintf("%q is not a number", args[2]))
			}

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

			if err := client.PutEstimation(ctx, args[0], args[1], hours); err != nil {
				return err
			}
			task, err := client.GetTask(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			newRenderer(cmd.OutOrStdout()).estimation(task)
			return nil
		},
	}
}

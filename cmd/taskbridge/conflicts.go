package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	enginesync "taskbridge/backend/sync"
)

// newConflictsCmd creates the conflicts command group.
func newConflictsCmd(configPath *string) *cobra.Command {
	conflictsCmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Inspect and resolve sync conflicts",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List live conflicts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()
			app.connect()

			// A pass refreshes the conflict set before listing.
			if app.monitor.IsOnline() {
				if _, err := app.engine.SyncAll(); err != nil {
					return err
				}
			}

			conflicts := app.engine.GetConflicts()
			if len(conflicts) == 0 {
				fmt.Println("No live conflicts.")
				return nil
			}
			for _, c := range conflicts {
				fmt.Println(renderConflict(c))
				fmt.Println()
			}
			fmt.Printf("%d conflict(s). Resolve with: taskbridge conflicts resolve <id> <strategy>\n",
				len(conflicts))
			return nil
		},
	}

	var interactive bool
	resolveCmd := &cobra.Command{
		Use:   "resolve [task-id] [strategy]",
		Short: "Resolve a conflict by writing the winner to both stores",
		Long: `Resolve a live conflict. The strategy picks the winner:

  local-wins    keep the local record
  remote-wins   keep the board record
  newest-wins   keep whichever was modified last (ties go local)

With --interactive a picker lists the live conflicts and prompts for a
strategy per conflict.`,
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()
			app.connect()

			if app.monitor.IsOnline() {
				if _, err := app.engine.SyncAll(); err != nil {
					return err
				}
			}

			if interactive {
				return runConflictPicker(app.engine)
			}
			if len(args) != 2 {
				return fmt.Errorf("expected <task-id> <strategy> (or --interactive)")
			}

			taskID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}
			strategy := enginesync.Strategy(args[1])

			resolved, err := app.engine.ResolveConflict(taskID, strategy)
			if err != nil {
				return err
			}
			fmt.Printf("Conflict on task %d resolved (%s wins).\n", taskID, resolved.Resolution)
			return nil
		},
	}
	resolveCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "pick conflicts and strategies interactively")

	conflictsCmd.AddCommand(listCmd, resolveCmd)
	return conflictsCmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newQueueCmd creates the queue command group, the operator interface to
// the offline queue and its dead-letter sublist.
func newQueueCmd(configPath *string) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the offline queue",
	}

	var deadOnly bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List queued changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			dead := app.queue.DeadLetters()
			if deadOnly {
				if len(dead) == 0 {
					fmt.Println("No dead-lettered entries.")
					return nil
				}
				for _, e := range dead {
					fmt.Println(renderQueueEntry(e))
				}
				return nil
			}

			if app.queue.Len() == 0 && len(dead) == 0 {
				fmt.Println("Queue is empty.")
				return nil
			}
			for _, e := range app.queue.All() {
				fmt.Println(renderQueueEntry(e))
			}
			if len(dead) > 0 {
				fmt.Printf("\n%d dead-lettered entr(ies). Requeue or drop by id.\n", len(dead))
			}
			return nil
		},
	}
	listCmd.Flags().BoolVar(&deadOnly, "dead", false, "show only dead-lettered entries")

	requeueCmd := &cobra.Command{
		Use:   "requeue <entry-id>",
		Short: "Return a dead-lettered entry to the live queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.queue.Requeue(args[0]); err != nil {
				return err
			}
			fmt.Printf("Entry %s requeued with a fresh retry budget.\n", args[0])
			return nil
		},
	}

	dropCmd := &cobra.Command{
		Use:   "drop <entry-id>",
		Short: "Discard a dead-lettered entry",
		Long: `Discard a dead-lettered entry permanently. Only dead-lettered
entries can be dropped; live entries are replayed or retried.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.queue.Drop(args[0]); err != nil {
				return err
			}
			fmt.Printf("Entry %s dropped.\n", args[0])
			return nil
		},
	}

	queueCmd.AddCommand(listCmd, requeueCmd, dropCmd)
	return queueCmd
}

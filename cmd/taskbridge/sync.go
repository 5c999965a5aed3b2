package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	enginesync "taskbridge/backend/sync"
	"taskbridge/internal/utils"
)

// newSyncCmd creates the sync command.
func newSyncCmd(configPath *string) *cobra.Command {
	var watch bool

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a full bidirectional pass",
		Long: `Run one full bidirectional pass: drain any queued offline changes,
push newer local tasks to the board and pull newer board items back.

Conflicting edits (both sides changed since the last sync) are handled
per the configured conflictResolution strategy; under "manual" they are
recorded and left untouched until "taskbridge conflicts resolve".

With --watch the process stays up: the connectivity monitor re-probes
the board, a file watcher reacts to external edits of the task document,
and the auto-sync timer (if enabled) schedules further passes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()
			app.connect()

			if watch {
				return runWatch(app)
			}

			if app.monitor.IsOnline() {
				if processed, failed, err := app.engine.DrainQueue(); err != nil {
					return err
				} else if processed > 0 || failed > 0 {
					fmt.Printf("Replayed %d queued change(s), %d failed.\n", processed, failed)
				}
			}

			result, err := app.engine.SyncAll()
			if err != nil {
				return err
			}
			fmt.Println(renderSyncResult(result))
			return nil
		},
	}

	syncCmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep running and sync on changes")
	return syncCmd
}

// runWatch keeps the engine alive until interrupted. External edits of
// the local task document trigger a pass as a freshness hint; the timer
// and reconnect drains provide correctness regardless.
func runWatch(app *App) error {
	app.engine.Start()
	app.monitor.Start()

	var watcher *enginesync.Watcher
	if app.cfg.Local.Provider == "file" {
		var err error
		watcher, err = enginesync.NewWatcher(app.cfg.Local.Path, func() {
			if !app.monitor.IsOnline() {
				return
			}
			if _, err := app.engine.SyncAll(); err != nil {
				utils.Warnf("watch-triggered pass failed: %v", err)
			}
		})
		if err != nil {
			utils.Warnf("file watcher unavailable: %v", err)
		} else {
			watcher.Start()
			defer watcher.Close()
		}
	}

	fmt.Println("Watching for changes. Ctrl+C to stop.")
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	fmt.Println("\nShutting down.")
	return nil
}

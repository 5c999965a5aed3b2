package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"taskbridge/backend"
	"taskbridge/backend/board"
	"taskbridge/backend/hybrid"
	"taskbridge/backend/local"
	"taskbridge/backend/sqlite"
	enginesync "taskbridge/backend/sync"
	"taskbridge/internal/config"
	"taskbridge/internal/credentials"
	"taskbridge/internal/utils"
)

// App is the composition root: config, adapters, engine and façade built
// once per invocation.
type App struct {
	cfg      *config.Config
	registry *backend.Registry
	local    backend.StorageAdapter
	remote   backend.StorageAdapter
	queue    *enginesync.Queue
	monitor  *enginesync.Monitor
	engine   *enginesync.Engine
	facade   *hybrid.Facade
}

func newRootCmd() *cobra.Command {
	var configPath string
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "taskbridge",
		Short: "Bidirectional task sync between a local store and a remote board",
		Long: `taskbridge keeps a local task store (JSON file or SQLite) and a
remote board in sync. Writes land locally first and mirror to the board;
changes made while offline are queued and replayed on reconnect.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			utils.SetVerboseMode(verbose)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: user config dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		newSyncCmd(&configPath),
		newStatusCmd(&configPath),
		newConflictsCmd(&configPath),
		newQueueCmd(&configPath),
		newConfigCmd(&configPath),
		newTokenCmd(),
	)
	return rootCmd
}

// loadConfig reads the file named by --config, or the default location.
func loadConfig(configPath string) (*config.Config, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return config.Load(path)
}

// buildApp constructs the full adapter/engine/façade graph from config.
// Commands that reach the board require the remote to be enabled.
func buildApp(configPath string) (*App, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Verbose {
		utils.SetVerboseMode(true)
	}
	if !cfg.Remote.Enabled {
		return nil, backend.NewStoreError("Initialize", backend.KindConfig,
			"this command requires remote.enabled: true in the config")
	}

	app := &App{cfg: cfg, registry: backend.NewRegistry()}

	switch cfg.Local.Provider {
	case "sqlite":
		app.local = sqlite.New(cfg.Local.DBPath)
	default:
		app.local = local.New(cfg.Local.Path)
	}

	token, err := credentials.NewResolver(true).Resolve("remote")
	if err != nil {
		return nil, err
	}

	h := cfg.Persistence.HybridConfig
	boardAdapter := board.New(board.Config{
		Endpoint: cfg.Remote.Endpoint,
		Token:    token.Value,
		BoardID:  cfg.Remote.BoardID,
		Mapping:  cfg.Remote.ColumnMapping,
		CacheTTL: time.Duration(cfg.Remote.CacheTTL) * time.Millisecond,
		Timeout:  time.Duration(h.Timeout) * time.Millisecond,
	})
	app.remote = boardAdapter

	if err := app.registry.Register(backend.RoleLocal, app.local); err != nil {
		return nil, err
	}
	if err := app.registry.Register(backend.RoleRemote, app.remote); err != nil {
		return nil, err
	}

	queuePath := cfg.Local.QueuePath
	if queuePath == "" {
		return nil, backend.NewStoreError("Initialize", backend.KindConfig,
			"local.queuePath is required")
	}
	app.queue = enginesync.NewQueue(queuePath)
	app.queue.SetRetryPolicy(h.RetryBudget(), 2*time.Second)
	if err := app.queue.Load(); err != nil {
		return nil, err
	}

	app.monitor = enginesync.NewMonitor(boardAdapter.API().Ping, 30*time.Second)
	app.engine = enginesync.NewEngine(app.local, app.remote, app.queue, app.monitor,
		enginesync.Options{
			Strategy:     enginesync.Strategy(h.ConflictResolution),
			SyncInterval: time.Duration(h.SyncInterval) * time.Second,
			AutoSync:     h.AutoSync,
		})
	app.facade = hybrid.New(app.local, app.remote, app.engine, hybrid.Options{
		PrimaryProvider: h.PrimaryProvider,
		SyncOnWrite:     h.SyncOnWriteEnabled(),
	})

	if err := app.facade.Initialize(); err != nil {
		return nil, err
	}
	return app, nil
}

// connect probes the board once so the engine starts with a real
// online/offline polarity instead of the pessimistic default.
func (a *App) connect() {
	if !a.monitor.CheckNow() {
		fmt.Println("Remote unreachable; operating on the local store only.")
	}
}

// Close flushes and releases everything the app owns.
func (a *App) Close() {
	a.engine.Stop()
	a.monitor.Stop()
	if err := a.registry.CloseAll(); err != nil {
		utils.Warnf("shutdown: %v", err)
	}
}

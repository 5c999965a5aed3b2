package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"taskbridge/internal/config"
)

// newConfigCmd creates the config command group.
func newConfigCmd(configPath *string) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample config to edit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *configPath
			if path == "" {
				var err error
				path, err = config.DefaultPath()
				if err != nil {
					return err
				}
			}
			if err := config.WriteSample(path); err != nil {
				return err
			}
			fmt.Printf("Sample config written to %s\n", path)
			return nil
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the config without touching any store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			fmt.Printf("Config OK: primary=%s, local=%s, remote enabled=%v\n",
				cfg.Persistence.HybridConfig.PrimaryProvider,
				cfg.Local.Provider, cfg.Remote.Enabled)
			return nil
		},
	}

	configCmd.AddCommand(initCmd, checkCmd)
	return configCmd
}

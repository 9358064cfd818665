package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"glexport/pkg/checkpoint"
	"glexport/pkg/config"
	"glexport/pkg/logger"
	"glexport/pkg/ui"
)

// statusCmd shows the stored checkpoint state
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the resume checkpoint for the configured export",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile, map[string]interface{}{"log-level": "error"})
		if err != nil {
			return err
		}
		if err := logger.Initialize(&cfg.Logging); err != nil {
			return err
		}

		store := checkpoint.NewStore(cfg.Checkpoint.Path)
		info := store.Info()
		if info == nil {
			ui.PrintWarning("no checkpoint found", cfg.Checkpoint.Path)
			return nil
		}

		ui.PrintInfo("checkpoint", fmt.Sprintf("%v", info["path"]))
		ui.PrintInfo("steps", fmt.Sprintf("%d (%d done)", info["steps"], info["done"]))
		if updated, ok := info["last_updated"].(time.Time); ok {
			ui.PrintInfo("last updated", updated.Format(time.RFC3339))
		}
		if age, ok := info["age"].(time.Duration); ok {
			ui.PrintInfo("age", age.Round(time.Second).String())
		}
		return nil
	},
}

// clearCmd discards the stored checkpoint
var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the resume checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile, map[string]interface{}{"log-level": "error"})
		if err != nil {
			return err
		}
		if err := logger.Initialize(&cfg.Logging); err != nil {
			return err
		}

		store := checkpoint.NewStore(cfg.Checkpoint.Path)
		if !store.Exists() {
			ui.PrintWarning("no checkpoint to delete")
			return nil
		}
		if err := store.Backup(); err != nil {
			ui.PrintWarning("backup failed", err.Error())
		}
		if err := store.Delete(); err != nil {
			return err
		}
		ui.PrintSuccess("checkpoint deleted (backup kept alongside)")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(clearCmd)
}

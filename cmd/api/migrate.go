package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docapi/internal/config"
	"docapi/internal/database"
	"docapi/internal/database/migration"
	"docapi/internal/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the documents schema if it does not exist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		log := logger.Stdout(cfg.Location())
		ctx := cmd.Context()

		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			log.Error("db_connect_failed", err, map[string]any{"db_host": database.HostOf(cfg.Database)})
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()

		return migration.EnsureMigrated(ctx, db, log, database.HostOf(cfg.Database))
	},
}

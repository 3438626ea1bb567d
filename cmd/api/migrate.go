package main

import (
	"fmt"

	"faixabet-api/config"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database tables and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			l := newLogger(cfg)
			defer l.Sync()

			database, err := connectDB(cmd.Context(), cfg, l)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := database.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			l.Infow("Schema is up to date")
			return nil
		},
	}
}

package main

import (
	"errors"

	"auth-client/internal/db"
	"auth-client/internal/logger"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.DatabaseDSN == "" {
			return errors.New("DATABASE_DSN is required")
		}
		if err := db.MigrateDSN(cmd.Context(), cfg.DatabaseDSN); err != nil {
			return err
		}
		logger.Info("schema is up to date", nil)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

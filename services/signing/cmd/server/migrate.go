package main

import (
	"github.com/altovisual/artist-management/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		pool, err := db.Connect(cmd.Context(), db.Options{URL: cfg.Database.URL, MaxConns: 2})
		if err != nil {
			return err
		}
		defer pool.Close()

		applied, err := db.Migrate(cmd.Context(), pool)
		if err != nil {
			return err
		}
		logger.Info("migrations complete", zap.Strings("applied", applied))
		return nil
	},
}

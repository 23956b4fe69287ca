package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"Lumin-Agent/internal/storage/sqlstore"
	"Lumin-Agent/pkg/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the bundled schema migrations and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		if cfg.Storage.Driver == "memory" {
			return errors.New("memory 存储无需迁移")
		}
		db, err := sqlstore.Open(cmd.Context(), storageConfig(cfg, false))
		if err != nil {
			return err
		}
		defer db.Close()

		if err := sqlstore.Migrate(cmd.Context(), db, cfg.Storage.Driver); err != nil {
			return err
		}
		logger.Named("migrate").Info("数据库迁移完成", slog.String("driver", cfg.Storage.Driver))
		return nil
	},
}

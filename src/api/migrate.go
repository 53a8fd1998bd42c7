package main

import (
	"github.com/spf13/cobra"

	"github.com/stake-plus/stratomai-agents/src/api/data"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := data.Open(cfg.Database, log)
		if err != nil {
			return err
		}
		if err := data.Migrate(db); err != nil {
			return err
		}
		log.Info("schema up to date", "driver", cfg.Database.Driver)
		return nil
	},
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/DarrenZal/koi-node/internal/config"
	"github.com/DarrenZal/koi-node/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "apply the relational schema to the configured store",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := store.New(ctx, store.Config{
		DSN:             cfg.Store.DSN,
		MaxConns:        cfg.Store.MaxConns,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Migrate(ctx)
}

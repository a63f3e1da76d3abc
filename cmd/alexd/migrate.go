package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"alex/internal/memory"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := memory.New(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("schema applied")
		return nil
	},
}

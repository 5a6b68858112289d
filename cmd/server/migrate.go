package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/jrsteele09/kay-gateway/internal/config"
	"github.com/jrsteele09/kay-gateway/internal/logging"
	"github.com/jrsteele09/kay-gateway/store/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := config.New()
			logger := logging.NewLogger(c)

			databaseURL := c.GetDatabaseURL()
			if databaseURL == "" {
				return errors.New("DATABASE_URL is not set")
			}
			if err := postgres.Migrate(databaseURL); err != nil {
				return err
			}
			logger.Info().Msg("migrations applied")
			return nil
		},
	}
}

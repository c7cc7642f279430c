package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-intent-chat/internal/intent"
	"github.com/tbourn/go-intent-chat/internal/repo"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer closeDB(db)
			log.Info().Msg("schema up to date")
			fmt.Fprintln(cmd.OutOrStdout(), "migrated")
			return nil
		},
	}
}

func newSeedIntentsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-intents",
		Short: "Insert or refresh the built-in intent catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer closeDB(db)

			rows := intent.DefaultCatalog().Records()
			if err := repo.SeedIntents(cmd.Context(), db, rows); err != nil {
				return fmt.Errorf("seed intents: %w", err)
			}
			log.Info().Int("intents", len(rows)).Msg("intent catalog seeded")
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d intents\n", len(rows))
			return nil
		},
	}
}

func newSweepSessionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-sessions",
		Short: "Delete expired sessions and idempotency records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer closeDB(db)

			sessions, cleanup, err := a.sessionManager(ctx, db)
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := sessions.Sweep(ctx)
			if err != nil {
				return fmt.Errorf("sweep sessions: %w", err)
			}
			k, err := repo.DeleteExpiredIdempotency(ctx, db, time.Now().UTC())
			if err != nil {
				return fmt.Errorf("sweep idempotency keys: %w", err)
			}
			log.Info().Int64("sessions", n).Int64("idempotency_keys", k).Msg("sweep finished")
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d sessions, %d idempotency keys\n", n, k)
			return nil
		},
	}
}

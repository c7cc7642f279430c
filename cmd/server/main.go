// Command server runs the intent chat API and its maintenance tasks.
//
//	intentchat serve            start the HTTP server
//	intentchat migrate          create or update the schema
//	intentchat seed-intents     write the built-in intent catalog
//	intentchat sweep-sessions   delete expired sessions and idempotency keys
//
// Configuration comes from the environment, optionally preloaded from a
// .env file (--env-file).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/go-intent-chat/internal/config"
	"github.com/tbourn/go-intent-chat/internal/repo"
	"github.com/tbourn/go-intent-chat/internal/session"
	"github.com/tbourn/go-intent-chat/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "intentchat:", err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs once the root has run.
type app struct {
	envFile string
	cfg     config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "intentchat",
		Short:         "Intent-labelled chat API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading the environment (missing file is ignored)")

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newSeedIntentsCmd(a),
		newSweepSessionsCmd(a),
	)
	return root
}

// load reads the dotenv file, then the configuration, and installs the
// global logger. Variables already in the environment win over the file.
func (a *app) load(logOut io.Writer) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	sysutil.ConfigureLogger(cfg.LogLevel, cfg.LogPretty, logOut)
	a.cfg = cfg
	return nil
}

// openDB opens the configured database and brings the schema up to date.
func (a *app) openDB() (*gorm.DB, error) {
	db, err := repo.Open(a.cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// sessionManager builds the session manager for the configured store. The
// returned cleanup closes the Redis client when one was created.
func (a *app) sessionManager(ctx context.Context, db *gorm.DB) (*session.Manager, func(), error) {
	opts := []session.Option{session.WithTTL(a.cfg.Session.TTL)}
	if a.cfg.Session.Store != config.SessionStoreRedis {
		return session.NewManager(session.NewSQLStore(db), opts...), func() {}, nil
	}

	client, err := session.NewRedisClient(ctx, a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	log.Info().Str("addr", a.cfg.Redis.Addr).Msg("sessions stored in redis")
	cleanup := func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("redis close")
		}
	}
	return session.NewManager(session.NewRedisStore(client, "session:"), opts...), cleanup, nil
}

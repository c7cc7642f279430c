package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-intent-chat/internal/config"
	httpapi "github.com/tbourn/go-intent-chat/internal/http"
	"github.com/tbourn/go-intent-chat/internal/observability"
	"github.com/tbourn/go-intent-chat/internal/repo"
	"github.com/tbourn/go-intent-chat/internal/services"
	"github.com/tbourn/go-intent-chat/internal/session"
)

const shutdownGrace = 15 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg

	shutdownTracing, err := observability.Setup(ctx, cfg.OTEL, observability.BuildInfo{Version: version, Environment: cfg.Env})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer closeDB(db)

	sessions, closeSessions, err := a.sessionManager(ctx, db)
	if err != nil {
		return err
	}
	defer closeSessions()

	if missing := cfg.MissingOAuth(); len(missing) > 0 {
		log.Warn().Strs("providers", missing).Msg("oauth credentials missing; those logins answer oauth_not_configured")
	}

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	// Redis expires sessions itself; the ticker still purges idempotency keys.
	go sessions.RunSweeper(sweepCtx, cfg.Session.SweepInterval, session.Reclaimer{
		Kind: "idempotency",
		Sweep: func(ctx context.Context, now time.Time) (int64, error) {
			return repo.DeleteExpiredIdempotency(ctx, db, now)
		},
	})

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, sessions, oauthProviders(cfg), cfg)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("env", cfg.Env).
			Str("version", version).
			Str("session_store", cfg.Session.Store).
			Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	stopSweeper()
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}

// oauthProviders returns an adapter per provider. Unconfigured ones are
// still registered so their routes report "not configured".
func oauthProviders(cfg config.Config) []services.OAuthProvider {
	g, gh := cfg.OAuth.Google, cfg.OAuth.GitHub
	return []services.OAuthProvider{
		services.NewGoogleProvider(g.ClientID, g.ClientSecret, g.RedirectURL),
		services.NewGitHubProvider(gh.ClientID, gh.ClientSecret, gh.RedirectURL),
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/muon-protocol/factgpt-examples/internal/resolution"
	"github.com/muon-protocol/factgpt-examples/internal/server"
	"github.com/muon-protocol/factgpt-examples/internal/server/handler"
	"github.com/muon-protocol/factgpt-examples/internal/service"
)

// ServeMode runs the HTTP API until ctx is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	srv := a.newServer(deps)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// newServer builds the protocol, the question service and the HTTP server
// on top of deps.
func (a *App) newServer(deps *Dependencies) *server.Server {
	protocol := resolution.New(deps.Store, deps.Verifier, a.logger,
		resolution.WithLocks(deps.Locks, a.cfg.Server.LockTTL.Duration),
	)
	questions := service.NewQuestionService(protocol, deps.Cache, deps.Attestor, a.logger)

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Questions: handler.NewQuestionHandler(questions, a.logger),
	}
	if deps.Attestor != nil {
		handlers.Attest = handler.NewAttestHandler(questions, a.logger)
	}

	return server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, deps.RateLimiter, a.logger)
}

// MigrateMode applies pending PostgreSQL migrations and returns.
func (a *App) MigrateMode(ctx context.Context, deps *Dependencies) error {
	if deps.Postgres == nil {
		return errors.New("app: migrate mode requires the postgres backend")
	}
	applied, err := deps.Postgres.RunMigrations(ctx)
	if err != nil {
		return fmt.Errorf("app: migrate: %w", err)
	}
	if len(applied) == 0 {
		a.logger.InfoContext(ctx, "migrate: schema up to date")
		return nil
	}
	for _, name := range applied {
		a.logger.InfoContext(ctx, "migrate: applied", slog.String("file", name))
	}
	return nil
}

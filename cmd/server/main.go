// Package main is the entry point of the registrar HTTP API.
//
// The server accepts enrollment, division and course workbooks, reconciles
// them against PostgreSQL and serves the scoped catalog. Redis keeps import
// reports and guards against the same file being imported twice at once.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/registrar/config"
	"github.com/alem-hub/registrar/internal/app"
	"github.com/alem-hub/registrar/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. Configuration and logging
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := app.NewLogger(cfg.Observability).With(
		logger.String("service", cfg.App.Name),
		logger.String("version", cfg.App.Version),
	)
	log.Info("starting registrar API",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("address", cfg.HTTPAddr()),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Backing services and handlers
	// ─────────────────────────────────────────────────────────────────────────
	a, err := app.New(ctx, cfg, log, app.Options{Migrate: true})
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing connections")
		a.Close()
	}()

	server := a.HTTPServer()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Serve until a signal arrives, then drain
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown requested", logger.Duration("timeout", cfg.App.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.App.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown completed")
	return nil
}

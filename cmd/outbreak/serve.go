package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"outbreak/internal/app"
	"outbreak/internal/config"
	"outbreak/internal/storage/sqlite"
	"outbreak/internal/store/memstore"
	"outbreak/internal/telemetry"
	httpTransport "outbreak/internal/transport/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay server",
	Long: `Serve the store relay on /ws together with the health, stats and join
code endpoints. Configuration is read from OUTBREAK_* environment variables.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging, os.Stdout)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	logger.Info("starting outbreak relay",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Path,
	)

	// Create the shared document, reloading it when persisted
	opts := []memstore.Option{memstore.WithLogger(logger)}
	if cfg.Storage.Path != "" {
		db, err := sqlite.Open(ctx, cfg.Storage.Path)
		if err != nil {
			return err
		}
		defer db.Close()
		opts = append(opts, memstore.WithPersister(db))
	}
	st := memstore.New(opts...)
	if err := st.Load(ctx); err != nil {
		return err
	}

	server := httpTransport.NewServer(cfg, st, logger)
	janitor := app.NewJanitor(st.Connect("janitor"), app.JanitorConfig{
		Interval:   cfg.Game.SweepInterval,
		StaleAfter: cfg.Game.StaleAfter,
		SessionTTL: cfg.Game.SessionTTL,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return janitor.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server forced to shutdown", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/viant/afs"
	"go.uber.org/zap"

	"github.com/MagicManBen/CheckLoops/analyzer"
	"github.com/MagicManBen/CheckLoops/api"
	"github.com/MagicManBen/CheckLoops/migration"
)

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(contextOf(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interval, err := time.ParseDuration(verifyEvery)
	if err != nil {
		return fmt.Errorf("--verify-every: %w", err)
	}
	handler, closeStore := newHandler(ctx)
	defer closeStore()

	scheduler := api.NewVerificationScheduler(handler)
	scheduler.CheckInterval = interval
	scheduler.Enabled = interval > 0
	scheduler.Start()
	defer scheduler.Stop()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(handler, cfg.Server.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	failed := make(chan error, 1)
	go func() {
		logger.Info("serve: listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()

	select {
	case err := <-failed:
		return err
	case <-ctx.Done():
	}

	logger.Info("serve: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("serve: stopped")
	return nil
}

// newHandler wires the stage components into the review API. The session
// is loaded from the configured spreadsheet and mapping when both exist;
// otherwise a scenario has to be loaded first. Without a usable record
// store the import endpoint is disabled.
func newHandler(ctx context.Context) (*api.Handler, func()) {
	deps := api.Dependencies{
		Analyzer:     analyzer.New(afs.New(), logger),
		Tree:         tree(),
		Deprecated:   cfg.Tables.Deprecated,
		Strict:       cfg.Verify.Strict,
		Orchestrator: orchestrator(),
		Emitter:      migration.NewEmitter(cfg.Migration.Targets),
		SaveMapping:  saveMapping,
		EmailDomain:  cfg.Identity.EmailDomain,
		Logger:       logger,
	}

	closeStore := func() {}
	if store, closer, err := openStore(cfg); err != nil {
		logger.Warn("serve: record store unavailable, import disabled", zap.Error(err))
	} else {
		deps.Importer = migration.NewImporter(store, logger)
		closeStore = closer
	}

	handler := api.NewHandler(deps)
	wb, err := readWorkbook(ctx)
	if err != nil {
		logger.Info("serve: no spreadsheet loaded", zap.Error(err))
		return handler, closeStore
	}
	mapping, err := readMapping(ctx)
	if err != nil {
		logger.Info("serve: no mapping loaded", zap.Error(err))
		return handler, closeStore
	}
	handler.SetSession(wb, mapping)
	return handler, closeStore
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/cartsync/internal/connectivity"
	"github.com/dukerupert/cartsync/internal/database"
	"github.com/dukerupert/cartsync/internal/model"
	"github.com/dukerupert/cartsync/internal/persist"
	"github.com/dukerupert/cartsync/internal/reconcile"
	"github.com/dukerupert/cartsync/internal/server"
	"github.com/dukerupert/cartsync/internal/shopping"
	"github.com/dukerupert/cartsync/internal/state"
	"github.com/dukerupert/cartsync/internal/store"
)

const rateLimitCleanupInterval = 5 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync agent and its local HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return err
	}
	defer db.Close()

	syncStore := store.NewSyncStore(db)
	persisted, err := syncStore.Load(ctx)
	if err != nil {
		logger.Error("failed to load sync state", "error", err)
		return err
	}

	c := state.New()
	c.Restore(persisted)
	if n := len(persisted.PendingActions); n > 0 {
		logger.Info("restored pending actions", "count", n, "list_id", persisted.CurrentListID)
	}

	client, err := newBackendClient(cfg)
	if err != nil {
		return err
	}

	rec := reconcile.New(client, c, logger.With("component", "reconcile"))
	svc := shopping.NewService(c, rec, client, logger.With("component", "shopping"))
	monitor := connectivity.NewMonitor(c, svc, cfg.Sync.DrainDelay, logger.With("component", "connectivity"))
	persister := persist.New(c, syncStore, cfg.Sync.PersistDebounce, logger.With("component", "persist"))
	srv := server.New(c, svc, monitor, server.Options{SyncRateLimit: cfg.Server.SyncRateLimit}, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.Backend.Timeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// Start before the prober runs so scheduled drains use gctx.
	online := client.Ping(gctx) == nil
	monitor.Start(gctx, online)

	g.Go(func() error {
		logger.Info("cartsync listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return persister.Run(gctx) })
	g.Go(func() error { return srv.Hub().Relay(gctx, c) })
	g.Go(func() error { return srv.RateLimiter().RunCleanup(gctx, rateLimitCleanupInterval) })
	if cfg.Sync.Probe {
		prober := connectivity.NewProber(client, monitor, cfg.Sync.ProbeInterval, logger.With("component", "probe"))
		g.Go(func() error { return prober.Run(gctx) })
	}

	if cfg.Sync.ListID != "" {
		listID := model.NormalizeID(cfg.Sync.ListID)
		out, err := svc.Load(gctx, listID)
		if err != nil {
			logger.Warn("initial list load", "list_id", listID, "error", err)
		} else {
			logger.Info("initial list load", "list_id", listID, "outcome", out)
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		monitor.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("cartsync stopped", "error", err)
		return err
	}
	return nil
}

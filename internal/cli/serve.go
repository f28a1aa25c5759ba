package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"smart-locker-backend/internal/api"
	"smart-locker-backend/internal/hardware"
	"smart-locker-backend/internal/reconcile"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, door watcher and reconciler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, cfg, logger, hardware.DefaultDrivers())
		if err != nil {
			return err
		}
		defer a.Close()

		reconciler := reconcile.NewService(cfg.Reconcile, a.svc, logger)
		a.svc.SetWatcher(reconciler.Watcher())
		go reconciler.Run(ctx)

		server := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: api.NewRouter(a.svc, cfg.Server, logger),
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("HTTP server starting", "port", cfg.Server.Port, "simulated", a.hw.Simulated())
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received, stopping services")
		case err := <-errCh:
			return fmt.Errorf("HTTP server: %w", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		logger.Info("server gracefully stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

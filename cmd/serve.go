package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const readHeaderTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the crawler HTTP API and run queued batch jobs",
		RunE:  runServe,
	}
	cmd.Flags().Int("port", 0, "listen port (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := a.Logger
	cfg := a.Config

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           a.Server.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		logger.Info("dispatcher started", zap.Int("workers", cfg.Batch.Workers))
		a.Dispatcher.Run(ctx)
		logger.Info("dispatcher stopped")
		return nil
	})
	g.Go(func() error {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err //nolint:wrapcheck // already wrapped by the group members
	}
	logger.Info("shutdown complete")
	return nil
}

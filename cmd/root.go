// Package cmd defines the story-crawler command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/story-crawler/internal/app"
	"github.com/JakeFAU/story-crawler/internal/config"
	"github.com/JakeFAU/story-crawler/internal/logging"
)

// appKeyType is the key for storing the App in the command context.
type appKeyType struct{}

// newApp builds the application services. Tests replace it to inject fakes.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger, app.Options{})
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "story-crawler",
		Short: "Crawls truyenfull stories into the document store.",
		Long: `story-crawler fetches story metadata, chapter lists and chapter bodies
from truyenfull, reconciles them against the stories already stored and
writes what is missing. It runs as an HTTP service (serve) or as a
one-shot batch (crawl).`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if port, _ := cmd.Flags().GetInt("port"); port > 0 {
				cfg.Server.Port = port
			}
			logger, err := logging.FromConfig(cfg.Logging)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKeyType{}, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return
			}
			appInstance.Close(context.WithoutCancel(cmd.Context()))
			if err := logging.Sync(appInstance.Logger); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); STORYCRAWLER_* env vars override it")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKeyType{}).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the root command until it finishes or the process is signaled.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/utafrali/docsearch/internal/app"
	"github.com/utafrali/docsearch/internal/config"
	"github.com/utafrali/docsearch/pkg/logger"
)

func newServeCmd(opts *rootOptions, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, when brokers are set, the event consumers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log := logger.New("docsearch", opts.level(cfg))
			log.Info("starting docsearch",
				slog.String("version", version),
				slog.String("environment", cfg.Environment),
				slog.String("engine", cfg.Engine),
				slog.Int("http_port", cfg.HTTPPort),
				slog.Bool("kafka", cfg.KafkaEnabled()),
			)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			application, err := app.NewApp(ctx, cfg, version, log)
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}
			if err := application.Run(ctx); err != nil {
				return fmt.Errorf("run application: %w", err)
			}

			log.Info("docsearch stopped")
			return nil
		},
	}
}

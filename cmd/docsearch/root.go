package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/utafrali/docsearch/internal/config"
	"github.com/utafrali/docsearch/internal/service"
	"github.com/utafrali/docsearch/internal/session"
	"github.com/utafrali/docsearch/pkg/logger"
)

type rootOptions struct {
	logLevel string
	server   string
}

func newRootCmd(version string) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "docsearch",
		Short:         "Typed document search over Elasticsearch",
		Long:          "docsearch declares document types, stores documents and searches them.\nSettings come from DOCSEARCH_* environment variables.",
		Version:       version,
		SilenceUsage:  true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override DOCSEARCH_LOG_LEVEL")
	cmd.PersistentFlags().StringVar(&opts.server, "server", "", "run schema and search commands through a docsearch server, e.g. http://localhost:8080")

	cmd.AddCommand(
		newServeCmd(opts, version),
		newSchemaCmd(opts),
		newSearchCmd(opts),
		newPublishCmd(opts),
	)
	return cmd
}

// load reads the configuration and builds a logger writing to stderr, so
// stdout stays free for command output.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.NewWithWriter("docsearch-cli", o.level(cfg), cmd.ErrOrStderr()), nil
}

func (o *rootOptions) level(cfg *config.Config) string {
	if o.logLevel != "" {
		return o.logLevel
	}
	return cfg.LogLevel
}

// openService opens a session and returns a service over it with a func
// that closes the session.
func openService(ctx context.Context, cfg *config.Config, log *slog.Logger) (*service.SearchService, func() error, error) {
	sessCfg, err := cfg.Session()
	if err != nil {
		return nil, nil, err
	}
	sess, err := session.Open(ctx, sessCfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("open session: %w", err)
	}
	return service.NewSearchService(sess, cfg.Service(), log), sess.Close, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

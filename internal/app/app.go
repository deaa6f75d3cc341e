// Package app wires docsearch together and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/utafrali/docsearch/internal/config"
	"github.com/utafrali/docsearch/internal/event"
	handler "github.com/utafrali/docsearch/internal/handler/http"
	"github.com/utafrali/docsearch/internal/service"
	"github.com/utafrali/docsearch/internal/session"
	"github.com/utafrali/docsearch/pkg/health"
	pkgkafka "github.com/utafrali/docsearch/pkg/kafka"
	"github.com/utafrali/docsearch/pkg/middleware"
	"github.com/utafrali/docsearch/pkg/tracing"
)

const shutdownTimeout = 10 * time.Second

// App owns the session, the HTTP server and the event consumers.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	session        *session.Session
	service        *service.SearchService
	consumers      []*pkgkafka.Consumer
	dlq            *pkgkafka.DLQProducer
	httpServer     *http.Server
	shutdownTracer func(context.Context) error
	shutdownOnce   sync.Once
	shutdownErr    error
}

// NewApp opens the session and builds every component. Kafka consumers are
// only created when brokers are configured.
func NewApp(ctx context.Context, cfg *config.Config, version string, logger *slog.Logger) (*App, error) {
	shutdownTracer, err := tracing.InitTracer(ctx, cfg.Tracing(handler.ServiceName, version))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	tracing.SetSlowOperationLogging(cfg.SlowOperationThreshold, logger)

	sessCfg, err := cfg.Session()
	if err != nil {
		_ = shutdownTracer(ctx)
		return nil, err
	}
	sess, err := session.Open(ctx, sessCfg, logger)
	if err != nil {
		_ = shutdownTracer(ctx)
		return nil, fmt.Errorf("open session: %w", err)
	}

	svc := service.NewSearchService(sess, cfg.Service(), logger)

	a := &App{
		cfg:            cfg,
		logger:         logger,
		session:        sess,
		service:        svc,
		shutdownTracer: shutdownTracer,
	}

	healthHandler := health.NewHandler()
	healthHandler.Register(cfg.Engine, svc.Ping)

	if cfg.KafkaEnabled() {
		a.initConsumers(svc)
		healthHandler.Register("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
		})
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	router := handler.NewRouter(svc, healthHandler, handler.RouterConfig{
		CORS:           corsCfg,
		RequestTimeout: cfg.HTTPHandlerTimeout,
		PprofCIDRs:     cfg.PprofCIDRs,
		RateLimit: middleware.RateLimitConfig{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		},
	}, logger)

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.HTTPHandlerTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return a, nil
}

func (a *App) initConsumers(svc *service.SearchService) {
	var opts []pkgkafka.ConsumerOption
	if a.cfg.KafkaDLQEnabled {
		a.dlq = pkgkafka.NewDLQProducer(a.cfg.KafkaBrokers, a.logger)
		opts = append(opts, pkgkafka.WithDeadLetter(a.dlq))
	}

	indexer := event.NewConsumer(svc, a.logger)
	idempotency := pkgkafka.NewMemoryIdempotencyStore(a.cfg.IdempotencyTTL)
	handle := pkgkafka.IdempotentHandler(idempotency, indexer.Handle, a.logger)

	for _, topic := range event.Topics() {
		a.consumers = append(a.consumers, pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:      a.cfg.KafkaBrokers,
			GroupID:      a.cfg.KafkaGroupID,
			Topic:        topic,
			MinBytes:     1,
			MaxBytes:     10e6, // 10 MB
			MaxRetries:   a.cfg.KafkaMaxRetries,
			RetryBackoff: a.cfg.KafkaRetryBackoff,
		}, handle, a.logger, opts...))
	}
	a.logger.Info("kafka consumers initialized",
		slog.Any("brokers", a.cfg.KafkaBrokers),
		slog.String("group", a.cfg.KafkaGroupID),
		slog.Int("topic_count", len(a.consumers)),
	)
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Service returns the search service.
func (a *App) Service() *service.SearchService {
	return a.service
}

// Run starts the HTTP server and consumers and blocks until ctx is canceled
// or one of them fails. It always shuts down before returning.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1+len(a.consumers))

	for _, c := range a.consumers {
		go func() {
			if err := c.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer %s: %w", c.Topic(), err)
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
			slog.String("cluster", a.session.ClusterName()),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("component failed", slog.String("error", runErr.Error()))
	}

	return errors.Join(runErr, a.Shutdown())
}

// Shutdown stops every component. Later calls return the first result.
func (a *App) Shutdown() error {
	a.shutdownOnce.Do(func() {
		a.shutdownErr = a.shutdown()
	})
	return a.shutdownErr
}

func (a *App) shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dlq producer: %w", err))
		}
	}

	if err := a.session.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close session: %w", err))
	}
	if err := a.shutdownTracer(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// Package session owns the connection to the search backend. Every other
// component reaches the backend through Session.Do.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/docsearch/internal/domain"
	"github.com/utafrali/docsearch/internal/engine"
	"github.com/utafrali/docsearch/internal/engine/elasticsearch"
	"github.com/utafrali/docsearch/internal/engine/memory"
	apperrors "github.com/utafrali/docsearch/pkg/errors"
	"github.com/utafrali/docsearch/pkg/tracing"
	"github.com/utafrali/docsearch/pkg/validator"
)

const tracerName = "github.com/utafrali/docsearch/internal/session"

// Supported engine kinds.
const (
	EngineElasticsearch = "elasticsearch"
	EngineMemory        = "memory"
)

// Config describes the cluster a session talks to.
type Config struct {
	ClusterName string            `validate:"required"`
	Endpoints   []domain.Endpoint `validate:"required,min=1,dive"`
	// Engine selects the backend; empty means elasticsearch.
	Engine   string `validate:"omitempty,oneof=elasticsearch memory"`
	Username string
	Password string
	// RequestTimeout bounds every operation. 0 leaves only the caller's deadline.
	RequestTimeout time.Duration
	Breaker        BreakerConfig
}

// Resolver looks up host names. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

type options struct {
	resolver  Resolver
	transport http.RoundTripper
	engine    engine.Engine
}

// Option customises Open.
type Option func(*options)

// WithResolver replaces the resolver used to check endpoint hosts.
func WithResolver(r Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithTransport sets the base HTTP transport of the elasticsearch engine.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithEngine makes the session drive e instead of building one from Config.
func WithEngine(e engine.Engine) Option {
	return func(o *options) { o.engine = e }
}

// Session is a validated, lazily connected handle to one cluster. It is safe
// for concurrent use.
type Session struct {
	cfg     Config
	engine  engine.Engine
	breaker *breakerTransport
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// Open validates cfg and prepares the engine. No connection is made; the
// first operation dials the backend.
func Open(ctx context.Context, cfg Config, logger *slog.Logger, opts ...Option) (*Session, error) {
	o := options{resolver: net.DefaultResolver}
	for _, opt := range opts {
		opt(&o)
	}

	cfg.ClusterName = strings.TrimSpace(cfg.ClusterName)
	if cfg.Engine == "" {
		cfg.Engine = EngineElasticsearch
	}
	if err := validator.Validate(cfg); err != nil {
		return nil, apperrors.Configuration(err.Error())
	}

	for _, ep := range cfg.Endpoints {
		if _, err := o.resolver.LookupHost(ctx, ep.Host); err != nil {
			return nil, apperrors.Configuration(fmt.Sprintf("endpoint %s: host cannot be resolved: %v", ep, err))
		}
	}

	s := &Session{cfg: cfg, logger: logger}

	switch {
	case o.engine != nil:
		s.engine = o.engine
	case cfg.Engine == EngineMemory:
		s.engine = memory.New(cfg.ClusterName, logger)
	default:
		var transport http.RoundTripper = o.transport
		if cfg.Breaker.Enabled {
			s.breaker = newBreakerTransport("elasticsearch:"+cfg.ClusterName, o.transport, cfg.Breaker, logger)
			transport = s.breaker
		}
		addrs := make([]string, 0, len(cfg.Endpoints))
		for _, ep := range cfg.Endpoints {
			addrs = append(addrs, ep.URL())
		}
		eng, err := elasticsearch.New(elasticsearch.Config{
			Addresses: addrs,
			Username:  cfg.Username,
			Password:  cfg.Password,
			Transport: transport,
		}, logger)
		if err != nil {
			return nil, err
		}
		s.engine = eng
	}

	logger.Info("search session opened",
		slog.String("cluster", cfg.ClusterName),
		slog.String("engine", cfg.Engine),
		slog.Int("endpoints", len(cfg.Endpoints)),
	)
	return s, nil
}

// ClusterName returns the configured cluster name.
func (s *Session) ClusterName() string {
	return s.cfg.ClusterName
}

// Endpoints returns a copy of the configured endpoints in order.
func (s *Session) Endpoints() []domain.Endpoint {
	out := make([]domain.Endpoint, len(s.cfg.Endpoints))
	copy(out, s.cfg.Endpoints)
	return out
}

// Do runs fn against the backend under the request timeout, with a client
// span and metrics. A deadline or cancellation surfaces as ErrTransport.
// Nothing is retried. fn must not call Do on the same session.
func (s *Session) Do(ctx context.Context, op string, fn func(context.Context, engine.Engine) error) (err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return apperrors.SessionClosed(op)
	}

	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	ctx, end := tracing.TraceClient(ctx, tracerName, s.cfg.Engine, op,
		attribute.String("docsearch.cluster", s.cfg.ClusterName),
	)
	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(s.cfg.ClusterName, op).Observe(time.Since(start).Seconds())
		if err != nil {
			requestErrors.WithLabelValues(s.cfg.ClusterName, op, apperrors.Code(err)).Inc()
		}
		end(err)
	}()

	err = fn(ctx, s.engine)
	if err != nil && !errors.Is(err, apperrors.ErrTransport) &&
		(errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		err = apperrors.Transport(op, err)
	}
	return err
}

// Ping fetches the cluster identity and checks it against the configured name.
func (s *Session) Ping(ctx context.Context) error {
	var info engine.ClusterInfo
	err := s.Do(ctx, "ping", func(ctx context.Context, e engine.Engine) error {
		var err error
		info, err = e.Info(ctx)
		return err
	})
	if err != nil {
		return err
	}
	if info.ClusterName != s.cfg.ClusterName {
		return apperrors.Configuration(fmt.Sprintf("connected to cluster %q, expected %q", info.ClusterName, s.cfg.ClusterName))
	}
	return nil
}

// Close releases pooled connections. Calling it again is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.engine.Close(); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	s.logger.Info("search session closed", slog.String("cluster", s.cfg.ClusterName))
	return nil
}

// Package config loads docsearch settings from DOCSEARCH_* environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/utafrali/docsearch/internal/document"
	"github.com/utafrali/docsearch/internal/domain"
	"github.com/utafrali/docsearch/internal/search"
	"github.com/utafrali/docsearch/internal/service"
	"github.com/utafrali/docsearch/internal/session"
	pkgconfig "github.com/utafrali/docsearch/pkg/config"
	"github.com/utafrali/docsearch/pkg/tracing"
)

// Prefix is prepended to every variable name.
const Prefix = "DOCSEARCH_"

// Config holds all configuration for docsearch.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Cluster
	ClusterName     string        `env:"CLUSTER_NAME" envDefault:"my-elasticsearch"`
	Endpoints       []string      `env:"ENDPOINTS" envDefault:"127.0.0.1:9200" envSeparator:","`
	Engine          string        `env:"ENGINE" envDefault:"elasticsearch"`
	Username        string        `env:"USERNAME"`
	Password        string        `env:"PASSWORD"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5s"`
	DefaultPageSize int           `env:"DEFAULT_PAGE_SIZE" envDefault:"10"`
	MaxResultWindow int           `env:"MAX_RESULT_WINDOW" envDefault:"10000"`
	Refresh         string        `env:"REFRESH"`

	// Circuit breaker around the cluster transport
	BreakerEnabled      bool          `env:"BREAKER_ENABLED" envDefault:"false"`
	BreakerMaxRequests  uint32        `env:"BREAKER_MAX_REQUESTS" envDefault:"1"`
	BreakerInterval     time.Duration `env:"BREAKER_INTERVAL" envDefault:"60s"`
	BreakerTimeout      time.Duration `env:"BREAKER_TIMEOUT" envDefault:"30s"`
	BreakerFailureRatio float64       `env:"BREAKER_FAILURE_RATIO" envDefault:"0.5"`
	BreakerMinRequests  uint32        `env:"BREAKER_MIN_REQUESTS" envDefault:"5"`

	// HTTP server
	HTTPPort           int           `env:"HTTP_PORT" envDefault:"8080"`
	HTTPHandlerTimeout time.Duration `env:"HTTP_HANDLER_TIMEOUT" envDefault:"30s"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	PprofCIDRs         []string      `env:"PPROF_CIDRS" envSeparator:","`
	RateLimitRPS       float64       `env:"RATE_LIMIT_RPS" envDefault:"0"`
	RateLimitBurst     int           `env:"RATE_LIMIT_BURST" envDefault:"20"`

	// Kafka ingestion, disabled while no brokers are set
	KafkaBrokers      []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaGroupID      string        `env:"KAFKA_GROUP_ID" envDefault:"docsearch-indexer"`
	KafkaMaxRetries   int           `env:"KAFKA_MAX_RETRIES" envDefault:"3"`
	KafkaRetryBackoff time.Duration `env:"KAFKA_RETRY_BACKOFF" envDefault:"200ms"`
	KafkaDLQEnabled   bool          `env:"KAFKA_DLQ_ENABLED" envDefault:"true"`
	IdempotencyTTL    time.Duration `env:"KAFKA_IDEMPOTENCY_TTL" envDefault:"1h"`

	// Tracing
	OTELEnabled            bool          `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint           string        `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate         float64       `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
	SlowOperationThreshold time.Duration `env:"SLOW_OPERATION_THRESHOLD" envDefault:"500ms"`
}

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadPrefixed(cfg, Prefix); err != nil {
		return nil, fmt.Errorf("load docsearch config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom reads configuration from vars, keyed by full variable name.
func LoadFrom(vars map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadFrom(cfg, Prefix, vars); err != nil {
		return nil, fmt.Errorf("load docsearch config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.ClusterName == "" {
		return fmt.Errorf("%sCLUSTER_NAME is required", Prefix)
	}
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("%sENDPOINTS is required", Prefix)
	}
	if _, err := c.endpoints(); err != nil {
		return err
	}
	if c.Engine != session.EngineElasticsearch && c.Engine != session.EngineMemory {
		return fmt.Errorf("invalid engine %q: want %s or %s", c.Engine, session.EngineElasticsearch, session.EngineMemory)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("invalid request timeout: %s", c.RequestTimeout)
	}
	if c.DefaultPageSize < 1 {
		return fmt.Errorf("invalid default page size: %d", c.DefaultPageSize)
	}
	if c.MaxResultWindow < c.DefaultPageSize {
		return fmt.Errorf("max result window %d is smaller than the default page size %d", c.MaxResultWindow, c.DefaultPageSize)
	}
	switch c.Refresh {
	case "", "true", "wait_for":
	default:
		return fmt.Errorf("invalid refresh policy %q", c.Refresh)
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		return fmt.Errorf("invalid breaker failure ratio: %v", c.BreakerFailureRatio)
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.RateLimitRPS < 0 || (c.RateLimitRPS > 0 && c.RateLimitBurst < 1) {
		return fmt.Errorf("invalid rate limit: %v rps, burst %d", c.RateLimitRPS, c.RateLimitBurst)
	}
	if len(c.KafkaBrokers) > 0 {
		if c.KafkaGroupID == "" {
			return fmt.Errorf("%sKAFKA_GROUP_ID is required when brokers are set", Prefix)
		}
		if c.KafkaMaxRetries < 1 {
			return fmt.Errorf("invalid kafka max retries: %d", c.KafkaMaxRetries)
		}
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("invalid OTEL sample rate: %v", c.OTELSampleRate)
	}
	return nil
}

func (c *Config) endpoints() ([]domain.Endpoint, error) {
	eps := make([]domain.Endpoint, 0, len(c.Endpoints))
	for _, raw := range c.Endpoints {
		ep, err := domain.ParseEndpoint(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint %q: %w", raw, err)
		}
		eps = append(eps, ep)
	}
	return eps, nil
}

// KafkaEnabled reports whether event ingestion is configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Session returns the session settings.
func (c *Config) Session() (session.Config, error) {
	eps, err := c.endpoints()
	if err != nil {
		return session.Config{}, err
	}
	return session.Config{
		ClusterName:    c.ClusterName,
		Endpoints:      eps,
		Engine:         c.Engine,
		Username:       c.Username,
		Password:       c.Password,
		RequestTimeout: c.RequestTimeout,
		Breaker: session.BreakerConfig{
			Enabled:      c.BreakerEnabled,
			MaxRequests:  c.BreakerMaxRequests,
			Interval:     c.BreakerInterval,
			Timeout:      c.BreakerTimeout,
			FailureRatio: c.BreakerFailureRatio,
			MinRequests:  c.BreakerMinRequests,
		},
	}, nil
}

// Service returns the settings of the components the service builds.
func (c *Config) Service() service.Config {
	return service.Config{
		Search: search.Config{
			DefaultPageSize: c.DefaultPageSize,
			MaxResultWindow: c.MaxResultWindow,
		},
		Document: document.Config{Refresh: c.Refresh},
	}
}

// Tracing returns the tracer settings for serviceName.
func (c *Config) Tracing(serviceName, version string) tracing.Config {
	tc := tracing.DefaultConfig(serviceName)
	tc.ServiceVersion = version
	tc.Environment = c.Environment
	tc.OTLPEndpoint = c.OTELEndpoint
	tc.SampleRate = c.OTELSampleRate
	tc.Enabled = c.OTELEnabled
	return tc
}

package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/docsearch/pkg/logger"
)

// Defaults for handler retries.
const (
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = 100 * time.Millisecond
)

// ErrDuplicate is returned by a handler for an event it has already
// handled. The message is committed without counting as a failure.
var ErrDuplicate = errors.New("duplicate event")

// Handler processes one event.
type Handler func(ctx context.Context, event *Event) error

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as one that retrying cannot fix. The consumer gives up
// on the message at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Reader is the part of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DeadLetterPublisher receives messages the consumer gave up on.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, msg kafka.Message, cause error, group string) error
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers      []string
	GroupID      string
	Topic        string
	MinBytes     int
	MaxBytes     int
	MaxRetries   int
	RetryBackoff time.Duration
}

// ConsumerOption customises a Consumer.
type ConsumerOption func(*Consumer)

// WithReader replaces the kafka-go reader.
func WithReader(r Reader) ConsumerOption {
	return func(c *Consumer) { c.reader = r }
}

// WithDeadLetter sends messages that fail every attempt to p.
func WithDeadLetter(p DeadLetterPublisher) ConsumerOption {
	return func(c *Consumer) { c.dlq = p }
}

// Consumer reads one topic as part of a consumer group and hands each event
// to a handler. Failed handler calls are retried with linear backoff; a
// message that still fails is dead-lettered when a publisher is configured,
// then committed so one bad message cannot block the partition.
type Consumer struct {
	reader    Reader
	cfg       ConsumerConfig
	handler   Handler
	dlq       DeadLetterPublisher
	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

// NewConsumer creates a consumer for cfg.Topic in group cfg.GroupID.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}

	c := &Consumer{cfg: cfg, handler: handler, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	if c.reader == nil {
		c.reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			GroupID:  cfg.GroupID,
			Topic:    cfg.Topic,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
		})
	}
	return c
}

// Topic returns the consumed topic.
func (c *Consumer) Topic() string {
	return c.cfg.Topic
}

// Start consumes until ctx is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started",
		slog.String("topic", c.cfg.Topic),
		slog.String("group", c.cfg.GroupID),
	)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", slog.String("topic", c.cfg.Topic))
				return nil
			}
			c.logger.Error("failed to fetch message",
				slog.String("topic", c.cfg.Topic),
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.cfg.RetryBackoff):
			}
			continue
		}

		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	labels := []string{msg.Topic, c.cfg.GroupID}
	consumerMessagesReceived.WithLabelValues(labels...).Inc()
	start := time.Now()
	defer func() {
		consumerProcessingDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	}()

	ctx = otel.GetTextMapPropagator().Extract(ctx, NewHeaderCarrier(&msg.Headers))
	ctx, span := otel.Tracer(tracerName).Start(ctx, "kafka.consume "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.String("messaging.consumer.group.name", c.cfg.GroupID),
			attribute.Int("messaging.kafka.partition", msg.Partition),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
	defer span.End()

	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		c.giveUp(ctx, span, msg, nil, err)
		return
	}

	if event.CorrelationID != "" {
		ctx = logger.WithCorrelationID(ctx, event.CorrelationID)
	}
	ctx = logger.WithOrigin(ctx, "kafka")

	err = c.handle(ctx, msg, event)
	switch {
	case err == nil:
		consumerMessagesProcessed.WithLabelValues(labels...).Inc()
	case errors.Is(err, ErrDuplicate):
		consumerMessagesDuplicate.WithLabelValues(labels...).Inc()
	default:
		c.giveUp(ctx, span, msg, event, err)
		return
	}
	c.commit(ctx, msg)
}

// handle runs the handler until it succeeds, fails permanently or runs out
// of attempts.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message, event *Event) error {
	var err error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		err = c.handler(ctx, event)
		if err == nil || errors.Is(err, ErrDuplicate) || IsPermanent(err) {
			return err
		}

		c.logger.WarnContext(ctx, "handler failed, will retry",
			slog.String("event_type", event.EventType),
			slog.String("key", event.Key),
			slog.String("error", err.Error()),
			slog.String("topic", msg.Topic),
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", c.cfg.MaxRetries),
		)

		if attempt < c.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * c.cfg.RetryBackoff):
			}
		}
	}
	return err
}

func (c *Consumer) giveUp(ctx context.Context, span trace.Span, msg kafka.Message, event *Event, cause error) {
	labels := []string{msg.Topic, c.cfg.GroupID}
	consumerMessagesFailed.WithLabelValues(labels...).Inc()
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())

	if ctx.Err() != nil {
		// Shutting down; leave the message uncommitted for redelivery.
		return
	}

	attrs := []any{
		slog.String("topic", msg.Topic),
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
		slog.String("error", cause.Error()),
	}
	if event != nil {
		attrs = append(attrs, slog.String("event_type", event.EventType), slog.String("key", event.Key))
	}
	c.logger.ErrorContext(ctx, "skipping message that could not be handled", attrs...)

	if c.dlq != nil {
		if err := c.dlq.Publish(ctx, msg, cause, c.cfg.GroupID); err != nil {
			c.logger.ErrorContext(ctx, "dead-letter publish failed", slog.String("error", err.Error()))
		} else {
			consumerDeadLettered.WithLabelValues(labels...).Inc()
		}
	}
	c.commit(ctx, msg)
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.ErrorContext(ctx, "failed to commit message",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
	}
}

// Close closes the reader. It is safe to call more than once.
func (c *Consumer) Close() error {
	c.closeOnce.Do(func() {
		if err := c.reader.Close(); err != nil {
			c.closeErr = fmt.Errorf("close consumer %s: %w", c.cfg.Topic, err)
		}
	})
	return c.closeErr
}

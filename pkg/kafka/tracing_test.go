package kafka

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestHeaderCarrier(t *testing.T) {
	headers := []kafka.Header{{Key: "event_type", Value: []byte("a")}}
	c := NewHeaderCarrier(&headers)

	assert.Equal(t, "a", c.Get("event_type"))
	assert.Equal(t, "", c.Get("missing"))

	c.Set("event_type", "b")
	c.Set("traceparent", "tp")
	assert.Equal(t, "b", c.Get("event_type"))
	assert.Equal(t, []string{"event_type", "traceparent"}, c.Keys())
	assert.Len(t, headers, 2)
}

func TestHeaderCarrier_PropagatesTraceContext(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	var headers []kafka.Header
	prop := propagation.TraceContext{}
	prop.Inject(ctx, NewHeaderCarrier(&headers))
	require.NotEmpty(t, headerValue(headers, "traceparent"))

	got := trace.SpanContextFromContext(prop.Extract(context.Background(), NewHeaderCarrier(&headers)))
	assert.Equal(t, traceID, got.TraceID())
	assert.Equal(t, spanID, got.SpanID())
}

package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/docsearch/pkg/logger"
)

func TestMemoryIdempotencyStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryIdempotencyStore(time.Minute)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Add(ctx, "a"))
	seen, err := s.Contains(ctx, "a")
	require.NoError(t, err)
	assert.True(t, seen)

	now = now.Add(2 * time.Minute)
	seen, err = s.Contains(ctx, "a")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryIdempotencyStore_AddSweeps(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryIdempotencyStore(time.Minute)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Add(ctx, "old"))
	now = now.Add(2 * time.Minute)
	require.NoError(t, s.Add(ctx, "new"))
	assert.Equal(t, 1, s.Len())
}

type failingStore struct{}

func (failingStore) Contains(context.Context, string) (bool, error) { return false, errors.New("down") }
func (failingStore) Add(context.Context, string) error              { return errors.New("down") }

func TestIdempotentHandler(t *testing.T) {
	ctx := context.Background()
	calls := 0
	inner := func(context.Context, *Event) error { calls++; return nil }
	h := IdempotentHandler(NewMemoryIdempotencyStore(time.Hour), inner, logger.Discard())

	event := &Event{EventID: "e1", EventType: "x"}
	require.NoError(t, h(ctx, event))
	assert.ErrorIs(t, h(ctx, event), ErrDuplicate)
	assert.Equal(t, 1, calls)

	require.NoError(t, h(ctx, &Event{EventType: "x"}))
	require.NoError(t, h(ctx, &Event{EventType: "x"}))
	assert.Equal(t, 3, calls, "events without an id are never deduplicated")
}

func TestIdempotentHandler_FailureIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	fail := true
	inner := func(context.Context, *Event) error {
		if fail {
			return errors.New("transient")
		}
		return nil
	}
	h := IdempotentHandler(NewMemoryIdempotencyStore(time.Hour), inner, logger.Discard())

	event := &Event{EventID: "e1", EventType: "x"}
	require.Error(t, h(ctx, event))
	fail = false
	assert.NoError(t, h(ctx, event))
}

func TestIdempotentHandler_StoreDown(t *testing.T) {
	calls := 0
	inner := func(context.Context, *Event) error { calls++; return nil }
	h := IdempotentHandler(failingStore{}, inner, logger.Discard())

	event := &Event{EventID: "e1", EventType: "x"}
	require.NoError(t, h(context.Background(), event))
	require.NoError(t, h(context.Background(), event))
	assert.Equal(t, 2, calls)
}

package streaming

import (
	"context"
	"testing"
	"time"

	"github.com/halcyor/gantry/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvOne(t *testing.T, ch <-chan StreamEvent) StreamEvent {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return StreamEvent{}
	}
}

func TestMemoryHub_PublishSubscribe(t *testing.T) {
	h := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := h.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, h.Publish(ctx, StreamEvent{
		RunID:     "r1",
		Node:      "a",
		EventType: schema.EventNodeCompleted,
	}))

	e := recvOne(t, ch)
	assert.Equal(t, "r1", e.RunID)
	assert.Equal(t, schema.EventNodeCompleted, e.EventType)
}

func TestMemoryHub_FilterByRunID(t *testing.T) {
	h := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := h.Subscribe(ctx, EventFilter{RunID: "r2"})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, h.Publish(ctx, StreamEvent{RunID: "r1", EventType: schema.EventRunStarted}))
	require.NoError(t, h.Publish(ctx, StreamEvent{RunID: "r2", EventType: schema.EventRunStarted}))

	e := recvOne(t, ch)
	assert.Equal(t, "r2", e.RunID)
	assert.Empty(t, ch)
}

func TestMemoryHub_FilterByEventType(t *testing.T) {
	h := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := h.Subscribe(ctx, EventFilter{EventTypes: []string{schema.EventRunFailed}})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, h.Publish(ctx, StreamEvent{RunID: "r1", EventType: schema.EventNodeCompleted}))
	require.NoError(t, h.Publish(ctx, StreamEvent{RunID: "r1", EventType: schema.EventRunFailed}))

	e := recvOne(t, ch)
	assert.Equal(t, schema.EventRunFailed, e.EventType)
}

func TestMemoryHub_CancelStopsDelivery(t *testing.T) {
	h := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := h.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	cancel()

	require.NoError(t, h.Publish(ctx, StreamEvent{RunID: "r1", EventType: schema.EventRunStarted}))
	assert.Empty(t, ch)
}

func TestMemoryHub_SlowSubscriberDropsEvents(t *testing.T) {
	h := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := h.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	// Overflow the buffer; Publish must never block.
	for i := 0; i < defaultChannelBuffer+10; i++ {
		require.NoError(t, h.Publish(ctx, StreamEvent{RunID: "r1", EventType: schema.EventNodeStarted}))
	}
	assert.Len(t, ch, defaultChannelBuffer)
}

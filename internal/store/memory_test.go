package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyor/gantry/pkg/schema"
)

func TestMemoryStore_RunLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	g := seedGraph(t, s)
	run := &Run{ID: uuid.New().String(), GraphID: g.ID, State: map[string]any{"k": "v"}}
	require.NoError(t, s.CreateRun(ctx, run))

	// Duplicate IDs are rejected.
	err := s.CreateRun(ctx, &Run{ID: run.ID, GraphID: g.ID})
	require.Error(t, err)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusPending, got.Status)
	assert.False(t, got.StartedAt.IsZero())

	failed := schema.RunStatusFailed
	msg := "node exploded"
	now := time.Now().UTC()
	require.NoError(t, s.UpdateRun(ctx, run.ID, RunUpdate{
		Status:      &failed,
		Error:       &msg,
		CompletedAt: &now,
	}))

	got, err = s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusFailed, got.Status)
	assert.Equal(t, "node exploded", got.Error)
}

func TestMemoryStore_GetRunReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	run := &Run{ID: "r1", GraphID: "g1", State: map[string]any{"n": 1}}
	require.NoError(t, s.CreateRun(ctx, run))

	got, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	got.State["n"] = 99

	again, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, again.State["n"])
}

func TestMemoryStore_ListRunsOrderAndWindow(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.CreateRun(ctx, &Run{
			ID:        uuid.New().String(),
			GraphID:   "g",
			StartedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	runs, err := s.ListRuns(ctx, RunFilter{GraphID: "g", Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	// Newest first, offset skips the newest.
	assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))
}

func TestMemoryStore_GraphsAndSchedules(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	g := seedGraph(t, s)

	sched := &Schedule{ID: "s1", GraphID: g.ID, CronExpression: "0 * * * *", Enabled: true}
	require.NoError(t, s.CreateSchedule(ctx, sched))

	enabled := true
	schedules, err := s.ListSchedules(ctx, ScheduleFilter{GraphID: g.ID, Enabled: &enabled})
	require.NoError(t, err)
	require.Len(t, schedules, 1)

	require.NoError(t, s.DeleteGraph(ctx, g.ID))
	_, err = s.GetGraph(ctx, g.ID)
	require.Error(t, err)
}

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagelinehq/stageline/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedRun(t *testing.T, s *LibSQLStore, workflow string, status schema.RunStatus, startedAt time.Time) *Run {
	t.Helper()
	run := &Run{
		ID:        uuid.NewString(),
		Workflow:  workflow,
		Status:    status,
		Inputs:    map[string]any{"niche": "fitness"},
		StartedAt: startedAt,
	}
	require.NoError(t, s.SaveRun(context.Background(), run))
	return run
}

// --- Run Tests ---

func TestSaveAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := seedRun(t, s, "content-pipeline", schema.RunStatusActive, time.Now().UTC())

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "content-pipeline", got.Workflow)
	assert.Equal(t, schema.RunStatusActive, got.Status)
	assert.Equal(t, map[string]any{"niche": "fitness"}, got.Inputs)
	assert.Nil(t, got.Report)
	assert.Nil(t, got.CompletedAt)
}

func TestSaveRun_UpsertsFinalReport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := seedRun(t, s, "content-pipeline", schema.RunStatusActive, time.Now().UTC())

	completed := time.Now().UTC()
	run.Status = schema.RunStatusCompleted
	run.Partial = true
	run.Payload = map[string]any{"script": map[string]any{"hook": "Wait..."}}
	run.Report = &schema.WorkflowReport{
		RunID:    run.ID,
		Workflow: run.Workflow,
		Status:   schema.RunStatusCompleted,
		Stages:   []schema.StageResult{{Stage: "trends", Status: schema.StageStatusSuccess}},
		Partial:  true,
	}
	run.CompletedAt = &completed
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, got.Status)
	assert.True(t, got.Partial)
	require.NotNil(t, got.Report)
	assert.Len(t, got.Report.Stages, 1)
	assert.Equal(t, "Wait...", got.Payload["script"].(map[string]any)["hook"])
	require.NotNil(t, got.CompletedAt)
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRun(context.Background(), "nonexistent")
	require.Error(t, err)

	var serr *schema.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeNotFound, serr.Code)
}

func TestListRuns_RecentFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	old := seedRun(t, s, "content-pipeline", schema.RunStatusCompleted, base)
	mid := seedRun(t, s, "script-only", schema.RunStatusFailed, base.Add(time.Minute))
	recent := seedRun(t, s, "content-pipeline", schema.RunStatusCompleted, base.Add(2*time.Minute))

	runs, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, recent.ID, runs[0].ID)
	assert.Equal(t, mid.ID, runs[1].ID)
	assert.Equal(t, old.ID, runs[2].ID)
}

func TestListRuns_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	seedRun(t, s, "content-pipeline", schema.RunStatusCompleted, now)
	seedRun(t, s, "content-pipeline", schema.RunStatusFailed, now.Add(time.Second))
	seedRun(t, s, "script-only", schema.RunStatusCompleted, now.Add(2*time.Second))

	byWorkflow, err := s.ListRuns(ctx, RunFilter{Workflow: "content-pipeline"})
	require.NoError(t, err)
	assert.Len(t, byWorkflow, 2)

	byStatus, err := s.ListRuns(ctx, RunFilter{Status: schema.RunStatusFailed})
	require.NoError(t, err)
	assert.Len(t, byStatus, 1)

	limited, err := s.ListRuns(ctx, RunFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

// --- Event Tests ---

func TestAppendAndListEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	runID := uuid.NewString()

	for i, typ := range []string{schema.EventRunStarted, schema.EventStageStarted, schema.EventStageCompleted} {
		require.NoError(t, s.AppendEvent(ctx, &schema.RunEvent{
			RunID: runID,
			Seq:   int64(i + 1),
			Type:  typ,
			Stage: "trends",
			Payload: map[string]any{
				"workflow": "content-pipeline",
			},
		}))
	}

	events, err := s.ListEvents(ctx, runID, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Seq)
		assert.Equal(t, runID, ev.RunID)
		assert.False(t, ev.Timestamp.IsZero())
	}
	assert.Equal(t, schema.EventRunStarted, events[0].Type)
}

func TestListEvents_Since(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	runID := uuid.NewString()

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.AppendEvent(ctx, &schema.RunEvent{
			RunID: runID, Seq: int64(i), Type: schema.EventStageCompleted,
		}))
	}

	events, err := s.ListEvents(ctx, runID, 3)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(4), events[0].Seq)
	assert.Equal(t, int64(5), events[1].Seq)
}

func TestAppendEvent_DuplicateSeqRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	runID := uuid.NewString()

	ev := &schema.RunEvent{RunID: runID, Seq: 1, Type: schema.EventRunStarted}
	require.NoError(t, s.AppendEvent(ctx, ev))

	err := s.AppendEvent(ctx, &schema.RunEvent{RunID: runID, Seq: 1, Type: schema.EventRunCompleted})
	require.Error(t, err)

	var serr *schema.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeStore, serr.Code)
}

// --- Schedule Tests ---

func seedSchedule(t *testing.T, s *LibSQLStore, name string, enabled bool) *Schedule {
	t.Helper()
	next := time.Now().UTC().Add(time.Hour)
	sched := &Schedule{
		ID:        uuid.NewString(),
		Name:      name,
		Workflow:  "content-pipeline",
		Cron:      "0 9 * * *",
		Inputs:    map[string]any{"niche": "fitness"},
		Enabled:   enabled,
		NextRunAt: &next,
	}
	require.NoError(t, s.CreateSchedule(context.Background(), sched))
	return sched
}

func TestCreateAndGetSchedule(t *testing.T) {
	s := newTestStore(t)

	sched := seedSchedule(t, s, "morning-pipeline", true)

	got, err := s.GetSchedule(context.Background(), sched.ID)
	require.NoError(t, err)
	assert.Equal(t, "morning-pipeline", got.Name)
	assert.Equal(t, "0 9 * * *", got.Cron)
	assert.Equal(t, map[string]any{"niche": "fitness"}, got.Inputs)
	assert.True(t, got.Enabled)
	require.NotNil(t, got.NextRunAt)
}

func TestCreateSchedule_DuplicateNameRejected(t *testing.T) {
	s := newTestStore(t)

	seedSchedule(t, s, "morning-pipeline", true)

	err := s.CreateSchedule(context.Background(), &Schedule{
		ID: uuid.NewString(), Name: "morning-pipeline", Workflow: "script-only", Cron: "0 10 * * *",
	})
	require.Error(t, err)
}

func TestUpdateSchedule(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sched := seedSchedule(t, s, "morning-pipeline", true)

	disabled := false
	lastID := uuid.NewString()
	lastAt := time.Now().UTC()
	nextAt := lastAt.Add(24 * time.Hour)
	require.NoError(t, s.UpdateSchedule(ctx, sched.ID, ScheduleUpdate{
		Enabled:   &disabled,
		LastRunID: &lastID,
		LastRunAt: &lastAt,
		NextRunAt: &nextAt,
	}))

	got, err := s.GetSchedule(ctx, sched.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, lastID, got.LastRunID)
	require.NotNil(t, got.LastRunAt)
	require.NotNil(t, got.NextRunAt)
}

func TestUpdateSchedule_NotFound(t *testing.T) {
	s := newTestStore(t)

	enabled := true
	err := s.UpdateSchedule(context.Background(), "nonexistent", ScheduleUpdate{Enabled: &enabled})
	require.Error(t, err)

	var serr *schema.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeNotFound, serr.Code)
}

func TestListSchedules_OnlyEnabled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedSchedule(t, s, "enabled-one", true)
	seedSchedule(t, s, "disabled-one", false)

	all, err := s.ListSchedules(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	enabled, err := s.ListSchedules(ctx, true)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "enabled-one", enabled[0].Name)
}

func TestDeleteSchedule(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sched := seedSchedule(t, s, "morning-pipeline", true)

	require.NoError(t, s.DeleteSchedule(ctx, sched.ID))

	_, err := s.GetSchedule(ctx, sched.ID)
	require.Error(t, err)

	require.Error(t, s.DeleteSchedule(ctx, sched.ID))
}

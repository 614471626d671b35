package trace

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myk-org/hooktrail/internal/logstore"
	"github.com/myk-org/hooktrail/internal/model"
	apperrors "github.com/myk-org/hooktrail/pkg/errors"
)

func newTestRecorder(t *testing.T) (*Recorder, *logstore.Store) {
	t.Helper()
	store, err := logstore.Open(logstore.Config{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewRecorder(store), store
}

func storedRecords(t *testing.T, store *logstore.Store) []model.LogRecord {
	t.Helper()
	files, err := store.Files()
	require.NoError(t, err)

	var records []model.LogRecord
	for _, path := range files {
		it, err := logstore.OpenLines(path)
		require.NoError(t, err)
		for {
			line, err := it.Next()
			if err != nil {
				break
			}
			var rec model.LogRecord
			require.NoError(t, json.Unmarshal(line, &rec))
			records = append(records, rec)
		}
		require.NoError(t, it.Close())
	}
	return records
}

func TestCreateEmitsPendingRecord(t *testing.T) {
	r, store := newTestRecorder(t)

	ctx, err := r.Create("hook-1", "pull_request", "octo/widgets", "opened", "octocat", "bot")
	require.NoError(t, err)
	require.NotNil(t, ctx)

	records := storedRecords(t, store)
	require.Len(t, records, 1)
	assert.Equal(t, model.LevelInfo, records[0].Level)
	assert.Equal(t, model.TaskStatusPending, records[0].TaskStatus)
	assert.Equal(t, "hook-1", records[0].HookID)
	assert.Equal(t, "pull_request", records[0].EventType)
	assert.Equal(t, "octo/widgets", records[0].Repository)
}

func TestCreateDuplicateHookID(t *testing.T) {
	r, _ := newTestRecorder(t)

	_, err := r.Create("hook-1", "push", "octo/widgets", "", "octocat", "")
	require.NoError(t, err)

	_, err = r.Create("hook-1", "push", "octo/widgets", "", "octocat", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeContextActive))

	// Only the first context is live.
	snapshots := r.Active()
	require.Len(t, snapshots, 1)
}

func TestCreateEmptyHookID(t *testing.T) {
	r, _ := newTestRecorder(t)
	_, err := r.Create("", "push", "octo/widgets", "", "", "")
	assert.Error(t, err)
}

func TestStepLifecycle(t *testing.T) {
	r, store := newTestRecorder(t)

	ctx, err := r.Create("hook-1", "pull_request", "octo/widgets", "opened", "octocat", "")
	require.NoError(t, err)

	require.NoError(t, ctx.StartStep("clone_repository", map[string]any{"title": "Clone repository"}))
	require.NoError(t, ctx.CompleteStep("clone_repository", map[string]any{"path": "/tmp/clone"}))
	require.NoError(t, ctx.StartStep("assign_reviewers", nil))
	require.NoError(t, ctx.FailStep("assign_reviewers", errors.New("no eligible reviewers"), "stack"))
	require.NoError(t, ctx.IncrementTokenSpend(3))
	require.NoError(t, ctx.Finalize(false))

	records := storedRecords(t, store)
	// create + start + complete + start + fail + summary (summary also
	// lands in the day file, which storedRecords does not read).
	require.Len(t, records, 6)

	start := records[1]
	assert.Equal(t, model.LevelStep, start.Level)
	assert.Equal(t, model.TaskStatusProcessing, start.TaskStatus)
	assert.Equal(t, "clone_repository", start.TaskID)
	assert.Equal(t, "Clone repository", start.TaskTitle)

	complete := records[2]
	assert.Equal(t, model.LevelSuccess, complete.Level)
	assert.Equal(t, model.TaskStatusCompleted, complete.TaskStatus)
	require.NotNil(t, complete.StepDurationMS)

	fail := records[4]
	assert.Equal(t, model.LevelError, fail.Level)
	assert.Equal(t, model.TaskStatusFailed, fail.TaskStatus)
	require.NotNil(t, fail.StepError)
	assert.Equal(t, "no eligible reviewers", fail.StepError.Message)
	assert.Equal(t, "stack", fail.StepError.Trace)

	summary := records[5]
	assert.True(t, summary.IsSummary())
	assert.False(t, *summary.Success)
	require.NotNil(t, summary.TokenSpend)
	assert.Equal(t, int64(3), *summary.TokenSpend)
	require.Len(t, summary.Steps, 2)
	assert.Equal(t, "clone_repository", summary.Steps[0].Name)
	assert.Equal(t, model.TaskStatusCompleted, summary.Steps[0].Status)
	assert.Equal(t, "assign_reviewers", summary.Steps[1].Name)
	assert.Equal(t, model.TaskStatusFailed, summary.Steps[1].Status)
}

func TestStartStepLastWriteWins(t *testing.T) {
	r, _ := newTestRecorder(t)

	ctx, err := r.Create("hook-1", "push", "octo/widgets", "", "", "")
	require.NoError(t, err)

	require.NoError(t, ctx.StartStep("retry_me", nil))
	require.NoError(t, ctx.CompleteStep("retry_me", nil))
	require.NoError(t, ctx.StartStep("retry_me", nil))

	// Restarting overwrites; it does not append a second entry.
	snap := ctx.Snapshot()
	assert.Equal(t, 1, snap.StepCount)
}

func TestCompleteUnknownStep(t *testing.T) {
	r, _ := newTestRecorder(t)

	ctx, err := r.Create("hook-1", "push", "octo/widgets", "", "", "")
	require.NoError(t, err)

	err = ctx.CompleteStep("never_started", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeStepNotFound))
}

func TestMutateFinalizedContext(t *testing.T) {
	r, _ := newTestRecorder(t)

	ctx, err := r.Create("hook-1", "push", "octo/widgets", "", "", "")
	require.NoError(t, err)
	require.NoError(t, ctx.StartStep("step", nil))
	require.NoError(t, ctx.Finalize(true))

	for name, call := range map[string]func() error{
		"StartStep":           func() error { return ctx.StartStep("late", nil) },
		"CompleteStep":        func() error { return ctx.CompleteStep("step", nil) },
		"FailStep":            func() error { return ctx.FailStep("step", errors.New("x"), "") },
		"IncrementTokenSpend": func() error { return ctx.IncrementTokenSpend(1) },
		"Finalize":            func() error { return ctx.Finalize(true) },
	} {
		err := call()
		require.Error(t, err, name)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeContextFinalized), name)
	}
}

func TestFinalizeReleasesContext(t *testing.T) {
	r, _ := newTestRecorder(t)

	ctx, err := r.Create("hook-1", "push", "octo/widgets", "", "", "")
	require.NoError(t, err)
	require.Len(t, r.Active(), 1)

	require.NoError(t, ctx.Finalize(true))
	assert.Empty(t, r.Active())

	// The hook_id is free again.
	_, err = r.Create("hook-1", "push", "octo/widgets", "", "", "")
	assert.NoError(t, err)
}

func TestIncrementTokenSpendDefaultsToOne(t *testing.T) {
	r, _ := newTestRecorder(t)

	ctx, err := r.Create("hook-1", "push", "octo/widgets", "", "", "")
	require.NoError(t, err)

	require.NoError(t, ctx.IncrementTokenSpend(0))
	require.NoError(t, ctx.IncrementTokenSpend(5))

	snap := ctx.Snapshot()
	assert.Equal(t, int64(6), snap.TokenSpend)
}

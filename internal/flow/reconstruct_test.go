package flow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myk-org/hooktrail/internal/model"
)

func at(sec int) model.Time {
	return model.NewTime(time.Date(2025, 6, 1, 12, 0, sec, 0, time.UTC))
}

// hookOneRecords is a delivery with a completed clone step and a failed
// reviewer-assignment step.
func hookOneRecords() []model.LogRecord {
	cloneDuration := 4823.0
	return []model.LogRecord{
		{
			Timestamp: at(0), Level: model.LevelInfo, HookID: "hook-1",
			Message: "Processing pull_request webhook", TaskStatus: model.TaskStatusPending,
		},
		{
			Timestamp: at(1), Level: model.LevelStep, HookID: "hook-1",
			Message: "Step clone_repository started", TaskID: "clone_repository",
			TaskTitle: "Clone repository", TaskStatus: model.TaskStatusProcessing,
			StepName: "clone_repository",
		},
		{
			Timestamp: at(5), Level: model.LevelSuccess, HookID: "hook-1",
			Message: "Step clone_repository completed in 4823ms", TaskID: "clone_repository",
			TaskTitle: "Clone repository", TaskStatus: model.TaskStatusCompleted,
			StepName: "clone_repository", StepDurationMS: &cloneDuration,
		},
		{
			Timestamp: at(6), Level: model.LevelStep, HookID: "hook-1",
			Message: "Step assign_reviewers started", TaskID: "assign_reviewers",
			TaskStatus: model.TaskStatusProcessing, StepName: "assign_reviewers",
		},
		{
			Timestamp: at(7), Level: model.LevelError, HookID: "hook-1",
			Message: "Step assign_reviewers failed: no eligible reviewers", TaskID: "assign_reviewers",
			TaskStatus: model.TaskStatusFailed, StepName: "assign_reviewers",
			StepError: &model.StepError{Message: "no eligible reviewers"},
		},
	}
}

func TestReconstructFailedDelivery(t *testing.T) {
	view := Reconstruct("hook-1", hookOneRecords())

	assert.Equal(t, "hook-1", view.HookID)
	assert.Equal(t, model.FlowStatusError, view.Status)
	assert.Equal(t, 5, view.StepCount)
	assert.Equal(t, 7000.0, view.TotalDurationMS)
	assert.Nil(t, view.TokenSpend)

	// One ungrouped record plus two task groups.
	require.Len(t, view.Entries, 3)
	require.NotNil(t, view.Entries[0].Step)
	assert.Equal(t, "Processing pull_request webhook", view.Entries[0].Step.Message)

	clone := view.Entries[1].Group
	require.NotNil(t, clone)
	assert.Equal(t, "clone_repository", clone.TaskID)
	assert.Equal(t, "Clone repository", clone.Title)
	assert.Equal(t, model.FlowStatusSuccess, clone.Status)
	assert.Len(t, clone.Steps, 2)
	assert.Equal(t, 4000.0, clone.DurationMS)

	assign := view.Entries[2].Group
	require.NotNil(t, assign)
	assert.Equal(t, "assign_reviewers", assign.TaskID)
	assert.Equal(t, "assign_reviewers", assign.Title, "task_id is the title fallback")
	assert.Equal(t, model.FlowStatusError, assign.Status)
}

func TestReconstructIdempotent(t *testing.T) {
	records := hookOneRecords()
	first := Reconstruct("hook-1", records)
	second := Reconstruct("hook-1", records)
	assert.Equal(t, first, second)
}

func TestReconstructInProgress(t *testing.T) {
	records := hookOneRecords()[:4] // ends with assign_reviewers processing
	view := Reconstruct("hook-1", records)
	assert.Equal(t, model.FlowStatusInProgress, view.Status)

	assign := view.Entries[2].Group
	require.NotNil(t, assign)
	assert.Equal(t, model.FlowStatusInProgress, assign.Status)
}

func TestReconstructTokenSpend(t *testing.T) {
	spend := int64(12)
	success := true
	records := append(hookOneRecords(), model.LogRecord{
		Timestamp: at(8), Level: model.LevelSuccess, HookID: "hook-1",
		Message: "Webhook processing completed", TokenSpend: &spend, Success: &success,
	})

	view := Reconstruct("hook-1", records)
	require.NotNil(t, view.TokenSpend)
	assert.Equal(t, int64(12), *view.TokenSpend)
}

func TestReconstructDropsBoilerplate(t *testing.T) {
	records := []model.LogRecord{
		{Timestamp: at(0), Level: model.LevelDebug, HookID: "hook-1", Message: "Webhook signature verified for delivery"},
		{Timestamp: at(1), Level: model.LevelInfo, HookID: "hook-1", Message: "real work"},
	}

	view := Reconstruct("hook-1", records)
	assert.Equal(t, 1, view.StepCount)
	require.Len(t, view.Entries, 1)
	assert.Equal(t, "real work", view.Entries[0].Step.Message)
}

func TestReconstructEmpty(t *testing.T) {
	view := Reconstruct("hook-1", nil)
	assert.Empty(t, view.Entries)
	assert.Zero(t, view.StepCount)
	assert.Equal(t, model.FlowStatusSuccess, view.Status)
}

func TestGroupStatusPrecedence(t *testing.T) {
	errorStep := model.LogRecord{Level: model.LevelError, TaskStatus: model.TaskStatusFailed}
	successStep := model.LogRecord{Level: model.LevelSuccess, TaskStatus: model.TaskStatusCompleted}
	runningStep := model.LogRecord{Level: model.LevelStep, TaskStatus: model.TaskStatusProcessing}
	neutralStep := model.LogRecord{Level: model.LevelInfo}

	tests := []struct {
		name          string
		steps         []model.LogRecord
		flowCompleted bool
		want          model.FlowStatus
	}{
		{"error beats success, error first", []model.LogRecord{errorStep, successStep}, false, model.FlowStatusError},
		{"error beats success, success first", []model.LogRecord{successStep, errorStep}, false, model.FlowStatusError},
		{"last step failed", []model.LogRecord{neutralStep, {TaskStatus: model.TaskStatusFailed}}, false, model.FlowStatusError},
		{"success level wins over neutral tail", []model.LogRecord{successStep, neutralStep}, false, model.FlowStatusSuccess},
		{"last step completed", []model.LogRecord{neutralStep, {TaskStatus: model.TaskStatusCompleted}}, false, model.FlowStatusSuccess},
		{"running tail", []model.LogRecord{neutralStep, runningStep}, false, model.FlowStatusInProgress},
		{"ambiguous tail, flow completed", []model.LogRecord{neutralStep}, true, model.FlowStatusSuccess},
		{"ambiguous tail, flow still active", []model.LogRecord{neutralStep}, false, model.FlowStatusInProgress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GroupStatus(tt.steps, tt.flowCompleted))
		})
	}
}

func TestStepRecords(t *testing.T) {
	records := hookOneRecords()

	assign := StepRecords(records, "assign_reviewers")
	require.Len(t, assign, 2)
	for _, rec := range assign {
		assert.Equal(t, "assign_reviewers", rec.StepName)
	}

	assert.Empty(t, StepRecords(records, "deploy"))
}

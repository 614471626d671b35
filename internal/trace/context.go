package trace

import (
	"fmt"
	"sync"

	"github.com/myk-org/hooktrail/internal/model"
	"github.com/myk-org/hooktrail/pkg/errors"
	"github.com/myk-org/hooktrail/pkg/telemetry"
)

// WorkflowStep is one named unit of work within a delivery. Status moves
// pending → processing → completed|failed; DurationMS is set exactly
// once, at the transition out of processing. The persisted vocabulary
// uses "processing" for a running step.
type WorkflowStep struct {
	Name        string           `json:"name"`
	Title       string           `json:"title,omitempty"`
	Status      model.TaskStatus `json:"status"`
	StartedAt   model.Time       `json:"started_at"`
	CompletedAt *model.Time      `json:"completed_at,omitempty"`
	DurationMS  *float64         `json:"duration_ms,omitempty"`
	Result      map[string]any   `json:"result,omitempty"`
	Error       *model.StepError `json:"error,omitempty"`
}

// ExecutionContext tracks one webhook delivery's processing lifecycle.
// It is mutated only by the delivery's own processing flow; the mutex
// exists for the snapshot endpoint, not for concurrent mutation.
type ExecutionContext struct {
	recorder *Recorder

	mu         sync.Mutex
	hookID     string
	eventType  string
	repository string
	action     string
	sender     string
	apiUser    string
	prNumber   int
	startedAt  model.Time
	stepOrder  []string
	steps      map[string]*WorkflowStep
	tokenSpend int64
	finalized  bool
}

// HookID returns the delivery's correlation id.
func (c *ExecutionContext) HookID() string {
	return c.hookID
}

// SetPRNumber attaches the pull request number resolved from the payload
// so subsequent records carry it.
func (c *ExecutionContext) SetPRNumber(n int) {
	c.mu.Lock()
	c.prNumber = n
	c.mu.Unlock()
}

// errFinalized is the loud signal for a caller bug: mutating a context
// after finalize indicates broken automation logic upstream.
func (c *ExecutionContext) errFinalized(op string) error {
	return errors.New(errors.ErrCodeContextFinalized,
		fmt.Sprintf("%s on finalized context %s", op, c.hookID))
}

// baseRecord builds a record carrying the delivery's correlation fields.
// Caller holds no lock or the context lock; fields set at creation are
// immutable.
func (c *ExecutionContext) baseRecord(level model.Level, msg string) model.LogRecord {
	return model.LogRecord{
		Timestamp:  model.Now(),
		Level:      level,
		Logger:     "trace",
		Message:    msg,
		HookID:     c.hookID,
		EventType:  c.eventType,
		Repository: c.repository,
		PRNumber:   c.prNumber,
		GithubUser: c.sender,
	}
}

// StartStep creates or replaces the named step in processing state.
// Restarting a step with the same name overwrites the prior entry
// (last-write-wins); it does not append a second entry. The optional
// metadata is free-form; a "title" key becomes the step's display title.
func (c *ExecutionContext) StartStep(name string, metadata map[string]any) error {
	c.mu.Lock()
	if c.finalized {
		c.mu.Unlock()
		return c.errFinalized("StartStep")
	}

	step := &WorkflowStep{
		Name:      name,
		Status:    model.TaskStatusProcessing,
		StartedAt: model.Now(),
	}
	if title, ok := metadata["title"].(string); ok {
		step.Title = title
	}
	if _, exists := c.steps[name]; !exists {
		c.stepOrder = append(c.stepOrder, name)
	}
	c.steps[name] = step
	c.mu.Unlock()

	telemetry.GetMetrics().RecordStep(string(model.TaskStatusProcessing))

	rec := c.baseRecord(model.LevelStep, fmt.Sprintf("Step %s started", name))
	rec.TaskID = name
	rec.TaskTitle = step.Title
	rec.TaskStatus = model.TaskStatusProcessing
	rec.StepName = name
	return c.recorder.store.Append(rec)
}

// CompleteStep transitions the named step to completed and records its
// duration. The free-form result payload is kept on the step summary.
func (c *ExecutionContext) CompleteStep(name string, result map[string]any) error {
	c.mu.Lock()
	if c.finalized {
		c.mu.Unlock()
		return c.errFinalized("CompleteStep")
	}
	step, ok := c.steps[name]
	if !ok {
		c.mu.Unlock()
		return errors.New(errors.ErrCodeStepNotFound,
			fmt.Sprintf("step %s was never started for %s", name, c.hookID))
	}

	now := model.Now()
	duration := float64(now.Sub(step.StartedAt).Microseconds()) / 1000.0
	step.Status = model.TaskStatusCompleted
	step.CompletedAt = &now
	step.DurationMS = &duration
	step.Result = result
	title := step.Title
	c.mu.Unlock()

	telemetry.GetMetrics().RecordStep(string(model.TaskStatusCompleted))

	rec := c.baseRecord(model.LevelSuccess, fmt.Sprintf("Step %s completed in %.0fms", name, duration))
	rec.TaskID = name
	rec.TaskTitle = title
	rec.TaskStatus = model.TaskStatusCompleted
	rec.StepName = name
	rec.StepDurationMS = &duration
	return c.recorder.store.Append(rec)
}

// FailStep transitions the named step to failed with the error and its
// captured stack trace. It does not re-raise: propagating the underlying
// failure is the caller's responsibility.
func (c *ExecutionContext) FailStep(name string, stepErr error, traceback string) error {
	c.mu.Lock()
	if c.finalized {
		c.mu.Unlock()
		return c.errFinalized("FailStep")
	}
	step, ok := c.steps[name]
	if !ok {
		c.mu.Unlock()
		return errors.New(errors.ErrCodeStepNotFound,
			fmt.Sprintf("step %s was never started for %s", name, c.hookID))
	}

	now := model.Now()
	duration := float64(now.Sub(step.StartedAt).Microseconds()) / 1000.0
	failure := &model.StepError{
		Message: "unknown error",
		Trace:   traceback,
	}
	if stepErr != nil {
		failure.Message = stepErr.Error()
		failure.Type = fmt.Sprintf("%T", stepErr)
	}
	step.Status = model.TaskStatusFailed
	step.CompletedAt = &now
	step.DurationMS = &duration
	step.Error = failure
	title := step.Title
	c.mu.Unlock()

	telemetry.GetMetrics().RecordStep(string(model.TaskStatusFailed))

	rec := c.baseRecord(model.LevelError, fmt.Sprintf("Step %s failed: %s", name, failure.Message))
	rec.TaskID = name
	rec.TaskTitle = title
	rec.TaskStatus = model.TaskStatusFailed
	rec.StepName = name
	rec.StepDurationMS = &duration
	rec.StepError = failure
	return c.recorder.store.Append(rec)
}

// IncrementTokenSpend adds n external API calls to the delivery's spend
// counter. Called by the API client layer between create and finalize.
func (c *ExecutionContext) IncrementTokenSpend(n int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		return c.errFinalized("IncrementTokenSpend")
	}
	if n <= 0 {
		n = 1
	}
	c.tokenSpend += n
	return nil
}

// Finalize writes the delivery's summary record and discards the context
// from the recorder. Any mutation afterwards fails with a finalized
// context error.
func (c *ExecutionContext) Finalize(success bool) error {
	c.mu.Lock()
	if c.finalized {
		c.mu.Unlock()
		return c.errFinalized("Finalize")
	}
	c.finalized = true

	now := model.Now()
	duration := float64(now.Sub(c.startedAt).Microseconds()) / 1000.0
	spend := c.tokenSpend

	summaries := make([]model.StepSummary, 0, len(c.stepOrder))
	for _, name := range c.stepOrder {
		step := c.steps[name]
		summaries = append(summaries, model.StepSummary{
			Name:        step.Name,
			Status:      step.Status,
			StartedAt:   step.StartedAt,
			CompletedAt: step.CompletedAt,
			DurationMS:  step.DurationMS,
			Result:      step.Result,
			Error:       step.Error,
		})
	}
	c.mu.Unlock()

	level := model.LevelSuccess
	msg := "Webhook processing completed"
	if !success {
		level = model.LevelError
		msg = "Webhook processing failed"
	}

	rec := c.baseRecord(level, msg)
	rec.Timestamp = now
	rec.StepDurationMS = &duration
	rec.Steps = summaries
	rec.TokenSpend = &spend
	rec.Success = &success

	err := c.recorder.store.AppendSummary(rec)
	c.recorder.release(c.hookID)
	telemetry.GetMetrics().RecordFinalized(success)
	return err
}

// Snapshot returns the context's current state for introspection.
func (c *ExecutionContext) Snapshot() ContextSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ContextSnapshot{
		HookID:     c.hookID,
		EventType:  c.eventType,
		Repository: c.repository,
		Action:     c.action,
		Sender:     c.sender,
		StartedAt:  c.startedAt,
		StepCount:  len(c.steps),
		TokenSpend: c.tokenSpend,
	}
}

// Package trace provides structured lifecycle tracking for webhook
// deliveries. A Recorder owns the set of active execution contexts, one
// per in-flight delivery; the surrounding automation drives each context
// through create, step lifecycle calls and finalize. Every lifecycle
// call is an unbuffered log store append.
package trace

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/myk-org/hooktrail/internal/logstore"
	"github.com/myk-org/hooktrail/internal/model"
	"github.com/myk-org/hooktrail/pkg/errors"
	"github.com/myk-org/hooktrail/pkg/logger"
	"github.com/myk-org/hooktrail/pkg/telemetry"
)

// Recorder tracks the active execution contexts and writes their
// lifecycle records to the log store.
type Recorder struct {
	store *logstore.Store

	mu     sync.Mutex
	active map[string]*ExecutionContext
}

// ContextSnapshot is a read-only view of one active context, served by
// the active-deliveries endpoint.
type ContextSnapshot struct {
	HookID     string     `json:"hook_id"`
	EventType  string     `json:"event_type"`
	Repository string     `json:"repository"`
	Action     string     `json:"action,omitempty"`
	Sender     string     `json:"sender,omitempty"`
	StartedAt  model.Time `json:"started_at"`
	StepCount  int        `json:"step_count"`
	TokenSpend int64      `json:"token_spend"`
}

// NewRecorder creates a recorder writing to the given store.
func NewRecorder(store *logstore.Store) *Recorder {
	return &Recorder{
		store:  store,
		active: make(map[string]*ExecutionContext),
	}
}

// Create opens a new execution context for a delivery. It fails when the
// hook_id already has an active context: one delivery owns exactly one
// context at a time.
func (r *Recorder) Create(hookID, eventType, repository, action, sender, apiUser string) (*ExecutionContext, error) {
	if hookID == "" {
		return nil, errors.ErrValidation("hook_id is required")
	}

	r.mu.Lock()
	if _, exists := r.active[hookID]; exists {
		r.mu.Unlock()
		return nil, errors.New(errors.ErrCodeContextActive,
			fmt.Sprintf("delivery %s already has an active context", hookID))
	}

	ctx := &ExecutionContext{
		recorder:   r,
		hookID:     hookID,
		eventType:  eventType,
		repository: repository,
		action:     action,
		sender:     sender,
		apiUser:    apiUser,
		startedAt:  model.Now(),
		steps:      make(map[string]*WorkflowStep),
	}
	r.active[hookID] = ctx
	r.mu.Unlock()

	telemetry.GetMetrics().RecordContext(1)

	rec := ctx.baseRecord(model.LevelInfo, fmt.Sprintf("Processing %s webhook", eventType))
	rec.TaskStatus = model.TaskStatusPending
	if err := r.store.Append(rec); err != nil {
		logger.Error("Failed to record context creation",
			zap.String("hook_id", hookID),
			zap.Error(err),
		)
	}
	return ctx, nil
}

// Active returns snapshots of all currently active contexts, for
// operational visibility.
func (r *Recorder) Active() []ContextSnapshot {
	r.mu.Lock()
	contexts := make([]*ExecutionContext, 0, len(r.active))
	for _, ctx := range r.active {
		contexts = append(contexts, ctx)
	}
	r.mu.Unlock()

	snapshots := make([]ContextSnapshot, 0, len(contexts))
	for _, ctx := range contexts {
		snapshots = append(snapshots, ctx.Snapshot())
	}
	return snapshots
}

// release discards a finalized context from the active set.
func (r *Recorder) release(hookID string) {
	r.mu.Lock()
	delete(r.active, hookID)
	r.mu.Unlock()
	telemetry.GetMetrics().RecordContext(-1)
}

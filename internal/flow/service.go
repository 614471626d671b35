package flow

import (
	"context"
	"fmt"

	"github.com/myk-org/hooktrail/internal/model"
	"github.com/myk-org/hooktrail/internal/query"
	"github.com/myk-org/hooktrail/pkg/errors"
	"github.com/myk-org/hooktrail/pkg/telemetry"
)

// Service fetches a delivery's records through the query engine and
// reconstructs flow views on demand.
type Service struct {
	engine *query.Engine
}

// NewService creates a flow service backed by the query engine.
func NewService(engine *query.Engine) *Service {
	return &Service{engine: engine}
}

// Flow reconstructs the timeline for one delivery. Returns a hook not
// found error when no records exist for the id, which is distinct from
// a delivery that exists but produced no steps.
func (s *Service) Flow(ctx context.Context, hookID string) (*model.FlowView, error) {
	records, err := s.engine.HookRecords(ctx, hookID)
	if err != nil {
		return nil, err
	}
	view := Reconstruct(hookID, records)
	telemetry.GetMetrics().RecordFlowReconstruction(ctx)
	return &view, nil
}

// StepLogs returns the raw records correlated with one named step of a
// delivery. A step that emitted no records of its own still resolves
// through the delivery's summary, so the handler can render the step's
// recorded metadata instead of an error.
func (s *Service) StepLogs(ctx context.Context, hookID, stepName string) ([]model.LogRecord, *model.StepSummary, error) {
	records, err := s.engine.HookRecords(ctx, hookID)
	if err != nil {
		return nil, nil, err
	}

	matched := StepRecords(records, stepName)
	summary := findStepSummary(records, stepName)
	if len(matched) == 0 && summary == nil {
		return nil, nil, errors.New(errors.ErrCodeStepNotFound,
			fmt.Sprintf("step %q not found for hook %s", stepName, hookID))
	}
	return matched, summary, nil
}

// findStepSummary looks the step up in the delivery's finalize summary,
// if one was written.
func findStepSummary(records []model.LogRecord, stepName string) *model.StepSummary {
	for i := len(records) - 1; i >= 0; i-- {
		if !records[i].IsSummary() {
			continue
		}
		for _, step := range records[i].Steps {
			if step.Name == stepName {
				s := step
				return &s
			}
		}
	}
	return nil
}

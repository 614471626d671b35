package model

// FlowStatus is the derived state of a task group or a whole flow.
type FlowStatus string

const (
	FlowStatusSuccess    FlowStatus = "success"
	FlowStatusError      FlowStatus = "error"
	FlowStatusInProgress FlowStatus = "in_progress"
)

// TaskGroup is a visualization-time grouping of records sharing a
// task_id, collapsed into one node in the flow view. Derived per
// reconstruction call, never cached or persisted.
type TaskGroup struct {
	TaskID     string      `json:"task_id"`
	Title      string      `json:"title"`
	Steps      []LogRecord `json:"steps"`
	StartTime  Time        `json:"start_time"`
	EndTime    Time        `json:"end_time"`
	DurationMS float64     `json:"duration_ms"`
	Status     FlowStatus  `json:"status"`
}

// FlowEntry is one chronological node of a flow view: either a collapsed
// task group or a single ungrouped record. Exactly one of Group/Step is set.
type FlowEntry struct {
	Group *TaskGroup `json:"group,omitempty"`
	Step  *LogRecord `json:"step,omitempty"`
}

// FlowView is the reconstructed, chronologically ordered timeline for one
// webhook delivery.
type FlowView struct {
	HookID          string      `json:"hook_id"`
	Entries         []FlowEntry `json:"entries"`
	TotalDurationMS float64     `json:"total_duration_ms"`
	StepCount       int         `json:"step_count"`
	// TokenSpend is nil for deliveries recorded before spend tracking
	// existed; presentation renders that as "N/A", never 0.
	TokenSpend *int64     `json:"token_spend"`
	Status     FlowStatus `json:"status"`
}

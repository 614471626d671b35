// Package flow rebuilds the chronological, task-grouped timeline of one
// webhook delivery from its stored log records. Reconstruction is a pure
// function of the record slice: no caching, no store access, so the same
// input always yields the same view.
package flow

import (
	"sort"
	"strings"

	"github.com/myk-org/hooktrail/internal/model"
)

// boilerplateMessages are record messages carrying no visualization
// value. Records whose message contains one of these are dropped before
// grouping.
var boilerplateMessages = []string{
	"Webhook signature verified",
	"Webhook signature not configured",
	"Received webhook delivery",
	"Request body read",
}

// indexedRecord pairs a surviving record with its position in the
// filtered sequence, which drives the final chronological merge.
type indexedRecord struct {
	index  int
	record model.LogRecord
}

// flowSignals are whole-flow completion facts derived before any group
// status, so trailing ambiguous group state can be resolved with flow
// context rather than guessed from the group alone.
type flowSignals struct {
	hasFailed             bool
	hasActive             bool
	completedSuccessfully bool
}

func deriveSignals(records []indexedRecord) flowSignals {
	var s flowSignals
	for _, ir := range records {
		if ir.record.Level == model.LevelError || ir.record.TaskStatus == model.TaskStatusFailed {
			s.hasFailed = true
		}
		if ir.record.TaskStatus.Active() {
			s.hasActive = true
		}
	}
	s.completedSuccessfully = !s.hasFailed && !s.hasActive
	return s
}

// GroupStatus derives a task group's status from its steps and the
// whole-flow completion signal. Precedence: error beats success beats
// in-progress; a group with one ERROR step and one SUCCESS step is an
// error regardless of their order.
func GroupStatus(steps []model.LogRecord, flowCompleted bool) model.FlowStatus {
	if len(steps) == 0 {
		if flowCompleted {
			return model.FlowStatusSuccess
		}
		return model.FlowStatusInProgress
	}
	last := steps[len(steps)-1]

	for _, s := range steps {
		if s.Level == model.LevelError {
			return model.FlowStatusError
		}
	}
	if last.TaskStatus == model.TaskStatusFailed {
		return model.FlowStatusError
	}

	for _, s := range steps {
		if s.Level == model.LevelSuccess {
			return model.FlowStatusSuccess
		}
	}
	if last.TaskStatus == model.TaskStatusCompleted {
		return model.FlowStatusSuccess
	}

	if last.TaskStatus.Active() {
		return model.FlowStatusInProgress
	}

	if flowCompleted {
		return model.FlowStatusSuccess
	}
	return model.FlowStatusInProgress
}

// Reconstruct builds the flow view for one delivery from its records in
// append order.
func Reconstruct(hookID string, records []model.LogRecord) model.FlowView {
	view := model.FlowView{HookID: hookID}

	survivors := make([]indexedRecord, 0, len(records))
	for _, rec := range records {
		if isBoilerplate(rec.Message) {
			continue
		}
		survivors = append(survivors, indexedRecord{index: len(survivors), record: rec})
	}
	if len(survivors) == 0 {
		view.Status = model.FlowStatusSuccess
		return view
	}

	signals := deriveSignals(survivors)

	// Partition into task groups and ungrouped steps, keeping insertion
	// order for both.
	groupOrder := make([]string, 0)
	grouped := make(map[string][]indexedRecord)
	ungrouped := make([]indexedRecord, 0)
	for _, ir := range survivors {
		if ir.record.TaskID == "" {
			ungrouped = append(ungrouped, ir)
			continue
		}
		if _, seen := grouped[ir.record.TaskID]; !seen {
			groupOrder = append(groupOrder, ir.record.TaskID)
		}
		grouped[ir.record.TaskID] = append(grouped[ir.record.TaskID], ir)
	}

	type placedGroup struct {
		index int
		group *model.TaskGroup
	}
	groups := make([]placedGroup, 0, len(groupOrder))
	for _, taskID := range groupOrder {
		members := grouped[taskID]
		g := buildGroup(taskID, members, signals.completedSuccessfully)
		groups = append(groups, placedGroup{index: members[0].index, group: g})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].index < groups[j].index })

	// Merge: a group occupies the timeline slot of its earliest step.
	entries := make([]model.FlowEntry, 0, len(groups)+len(ungrouped))
	gi, ui := 0, 0
	for gi < len(groups) || ui < len(ungrouped) {
		if ui >= len(ungrouped) || (gi < len(groups) && groups[gi].index < ungrouped[ui].index) {
			entries = append(entries, model.FlowEntry{Group: groups[gi].group})
			gi++
			continue
		}
		rec := ungrouped[ui].record
		entries = append(entries, model.FlowEntry{Step: &rec})
		ui++
	}
	view.Entries = entries
	view.StepCount = len(survivors)

	first := survivors[0].record.Timestamp
	last := survivors[len(survivors)-1].record.Timestamp
	view.TotalDurationMS = float64(last.Sub(first).Microseconds()) / 1000

	for _, ir := range survivors {
		if ir.record.TokenSpend != nil {
			spend := *ir.record.TokenSpend
			view.TokenSpend = &spend
		}
	}

	switch {
	case signals.hasFailed:
		view.Status = model.FlowStatusError
	case signals.hasActive:
		view.Status = model.FlowStatusInProgress
	default:
		view.Status = model.FlowStatusSuccess
	}
	return view
}

func buildGroup(taskID string, members []indexedRecord, flowCompleted bool) *model.TaskGroup {
	steps := make([]model.LogRecord, 0, len(members))
	for _, ir := range members {
		steps = append(steps, ir.record)
	}

	title := taskID
	if t := steps[0].TaskTitle; t != "" {
		title = t
	}

	start, end := steps[0].Timestamp, steps[0].Timestamp
	for _, s := range steps[1:] {
		if s.Timestamp.Before(start) {
			start = s.Timestamp
		}
		if s.Timestamp.After(end) {
			end = s.Timestamp
		}
	}

	return &model.TaskGroup{
		TaskID:     taskID,
		Title:      title,
		Steps:      steps,
		StartTime:  start,
		EndTime:    end,
		DurationMS: float64(end.Sub(start).Microseconds()) / 1000,
		Status:     GroupStatus(steps, flowCompleted),
	}
}

// StepRecords returns the records correlated with a named step by its
// step_name or task_id tag. Correlation is by tag, never by message
// text, so a zero-match result means the step emitted no records rather
// than a lookup failure.
func StepRecords(records []model.LogRecord, stepName string) []model.LogRecord {
	out := make([]model.LogRecord, 0)
	for _, rec := range records {
		if rec.StepName == stepName || rec.TaskID == stepName {
			out = append(out, rec)
		}
	}
	return out
}

func isBoilerplate(message string) bool {
	for _, b := range boilerplateMessages {
		if strings.Contains(message, b) {
			return true
		}
	}
	return false
}

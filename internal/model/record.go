// Package model provides the data model for webhook execution tracing.
package model

import (
	"fmt"
	"time"
)

// TimeLayout is the wire format for record timestamps: UTC with
// microsecond precision. Append order equals chronological order within
// one file, so the precision is what makes intra-delivery ordering visible.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// Time is a UTC timestamp with microsecond precision.
// It marshals to a fixed-width layout so persisted lines sort lexically.
type Time time.Time

// Now returns the current time truncated to microsecond precision in UTC.
func Now() Time {
	return NewTime(time.Now())
}

// NewTime converts a time.Time to a record Time.
func NewTime(t time.Time) Time {
	return Time(t.UTC().Truncate(time.Microsecond))
}

// Std returns the underlying time.Time.
func (t Time) Std() time.Time {
	return time.Time(t)
}

// IsZero reports whether the timestamp is unset.
func (t Time) IsZero() bool {
	return time.Time(t).IsZero()
}

// Before reports whether t is before other.
func (t Time) Before(other Time) bool {
	return time.Time(t).Before(time.Time(other))
}

// After reports whether t is after other.
func (t Time) After(other Time) bool {
	return time.Time(t).After(time.Time(other))
}

// Sub returns the duration t-other.
func (t Time) Sub(other Time) time.Duration {
	return time.Time(t).Sub(time.Time(other))
}

// MarshalJSON implements json.Marshaler using TimeLayout.
func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(t).UTC().Format(TimeLayout) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler. It accepts the canonical
// layout and falls back to RFC3339 for records written by other tooling.
func (t *Time) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid timestamp: %s", s)
	}
	s = s[1 : len(s)-1]
	parsed, err := time.Parse(TimeLayout, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
	}
	*t = NewTime(parsed)
	return nil
}

// Level represents the severity or kind of a log record.
type Level string

const (
	LevelDebug   Level = "DEBUG"
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
	LevelStep    Level = "STEP"
	LevelSuccess Level = "SUCCESS"
)

// ValidLevel reports whether s is a recognized level value.
func ValidLevel(s string) bool {
	switch Level(s) {
	case LevelDebug, LevelInfo, LevelWarning, LevelError, LevelStep, LevelSuccess:
		return true
	}
	return false
}

// TaskStatus represents the lifecycle state of a tracked workflow step.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Active reports whether the status indicates work still underway.
func (s TaskStatus) Active() bool {
	return s == TaskStatusProcessing || s == TaskStatusInProgress
}

// StepError is the structured failure payload attached to a failed step.
type StepError struct {
	// Type is the error classification (usually the Go error type name)
	Type string `json:"type,omitempty"`
	// Message is the error text
	Message string `json:"message"`
	// Trace is the captured stack trace at failure time
	Trace string `json:"trace,omitempty"`
}

// StepSummary is one step's entry in an execution-context summary record.
// Steps keep their insertion order, so summaries use a slice, not a map.
type StepSummary struct {
	Name        string         `json:"name"`
	Status      TaskStatus     `json:"status"`
	StartedAt   Time           `json:"started_at"`
	CompletedAt *Time          `json:"completed_at,omitempty"`
	DurationMS  *float64       `json:"duration_ms,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       *StepError     `json:"error,omitempty"`
}

// LogRecord is the persisted unit of the log store: one JSON object per
// line, immutable once written. Optional correlation and step fields are
// explicit so readers never have to guess at ad hoc keys; only the
// free-form result/error payloads stay generic.
type LogRecord struct {
	Timestamp Time   `json:"timestamp"`
	Level     Level  `json:"level"`
	Logger    string `json:"logger_name,omitempty"`
	Message   string `json:"message"`

	// Delivery correlation
	HookID     string `json:"hook_id,omitempty"`
	EventType  string `json:"event_type,omitempty"`
	Repository string `json:"repository,omitempty"`
	PRNumber   int    `json:"pr_number,omitempty"`
	GithubUser string `json:"github_user,omitempty"`

	// Step tracking
	TaskID         string     `json:"task_id,omitempty"`
	TaskTitle      string     `json:"task_title,omitempty"`
	TaskStatus     TaskStatus `json:"task_status,omitempty"`
	StepName       string     `json:"step_name,omitempty"`
	StepDurationMS *float64   `json:"step_duration_ms,omitempty"`
	StepError      *StepError `json:"step_error,omitempty"`

	// Summary fields, present only on execution-context summary records.
	// TokenSpend is a pointer: records predating its introduction have no
	// value and must render as unknown, never as zero.
	Steps      []StepSummary `json:"steps,omitempty"`
	TokenSpend *int64        `json:"token_spend,omitempty"`
	Success    *bool         `json:"success,omitempty"`
}

// IsSummary reports whether the record is an execution-context summary.
func (r *LogRecord) IsSummary() bool {
	return r.Success != nil
}

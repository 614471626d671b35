// Package logger provides structured logging capabilities for the application.
package logger

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/myk-org/hooktrail/internal/model"
)

// Recognized field keys for hook capture. Entries carrying FieldHookID
// are mirrored into the trace store; the other keys populate the
// corresponding record columns when present.
const (
	FieldHookID     = "hook_id"
	FieldEventType  = "event_type"
	FieldRepository = "repository"
	FieldPRNumber   = "pr_number"
	FieldGithubUser = "github_user"
	FieldTaskID     = "task_id"
	FieldTaskTitle  = "task_title"
	FieldStepName   = "step_name"
)

// TraceWriter receives log records correlated with a webhook delivery.
// This abstraction keeps the logger package independent of the store
// implementation; the log store satisfies it directly.
type TraceWriter interface {
	Append(model.LogRecord) error
}

// hookCapture holds the active trace writer. The core is wrapped once;
// setting a new writer (or nil, to disable capture) swaps the target
// without re-wrapping.
var hookCapture struct {
	mu      sync.RWMutex
	writer  TraceWriter
	wrapped bool
}

// SetHookCapture wraps the global logger's core so that entries carrying
// a hook_id field are also appended to the trace store. Writes are
// synchronous and unbuffered: the store is the single serialization
// point, and buffering here would reorder ambient entries against
// recorder lifecycle records. A nil writer disables capture.
//
// This should be called after Init() and before any logging that should
// be captured.
func SetHookCapture(writer TraceWriter) {
	hookCapture.mu.Lock()
	hookCapture.writer = writer
	needWrap := !hookCapture.wrapped && globalLogger != nil
	if needWrap {
		hookCapture.wrapped = true
	}
	hookCapture.mu.Unlock()

	if needWrap {
		globalLogger = globalLogger.WithOptions(
			zap.WrapCore(func(core zapcore.Core) zapcore.Core {
				return &hookCaptureCore{Core: core}
			}),
		)
	}
}

// hookCaptureCore wraps a zapcore.Core to mirror hook-correlated entries
// into the trace store.
type hookCaptureCore struct {
	zapcore.Core
	fields []zapcore.Field
}

// With creates a new Core carrying additional context fields.
func (c *hookCaptureCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &hookCaptureCore{
		Core:   c.Core.With(fields),
		fields: merged,
	}
}

// Check determines whether the supplied Entry should be logged.
func (c *hookCaptureCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return ce.AddCore(entry, c)
	}
	return ce
}

// Write forwards the entry to the underlying core and, when it carries a
// hook_id, appends a trace record. Store failures go to stderr to avoid
// recursive logging.
func (c *hookCaptureCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if err := c.Core.Write(entry, fields); err != nil {
		return err
	}

	hookCapture.mu.RLock()
	writer := hookCapture.writer
	hookCapture.mu.RUnlock()
	if writer == nil {
		return nil
	}

	all := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	all = append(all, c.fields...)
	all = append(all, fields...)

	rec, ok := buildRecord(entry, all)
	if !ok {
		return nil
	}
	if err := writer.Append(rec); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to append captured trace record: %v\n", err)
	}
	return nil
}

// Sync flushes the underlying core.
func (c *hookCaptureCore) Sync() error {
	return c.Core.Sync()
}

// buildRecord converts a zap entry into a trace record. Returns false
// when the entry carries no hook_id and is therefore not ours to keep.
func buildRecord(entry zapcore.Entry, fields []zapcore.Field) (model.LogRecord, bool) {
	rec := model.LogRecord{
		Timestamp: model.NewTime(entry.Time),
		Level:     convertLevel(entry.Level),
		Logger:    entry.LoggerName,
		Message:   entry.Message,
	}

	for _, field := range fields {
		switch field.Key {
		case FieldHookID:
			rec.HookID = fieldString(field)
		case FieldEventType:
			rec.EventType = fieldString(field)
		case FieldRepository:
			rec.Repository = fieldString(field)
		case FieldGithubUser:
			rec.GithubUser = fieldString(field)
		case FieldTaskID:
			rec.TaskID = fieldString(field)
		case FieldTaskTitle:
			rec.TaskTitle = fieldString(field)
		case FieldStepName:
			rec.StepName = fieldString(field)
		case FieldPRNumber:
			switch field.Type {
			case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type:
				rec.PRNumber = int(field.Integer)
			case zapcore.StringType:
				if n, err := strconv.Atoi(field.String); err == nil {
					rec.PRNumber = n
				}
			}
		}
	}

	if rec.HookID == "" {
		return model.LogRecord{}, false
	}
	return rec, true
}

// fieldString extracts a string value from a zap field.
func fieldString(field zapcore.Field) string {
	if field.Type == zapcore.StringType {
		return field.String
	}
	if field.Interface != nil {
		if s, ok := field.Interface.(fmt.Stringer); ok {
			return s.String()
		}
	}
	return ""
}

// convertLevel maps zapcore levels onto trace record levels.
func convertLevel(level zapcore.Level) model.Level {
	switch level {
	case zapcore.DebugLevel:
		return model.LevelDebug
	case zapcore.WarnLevel:
		return model.LevelWarning
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return model.LevelError
	default:
		return model.LevelInfo
	}
}

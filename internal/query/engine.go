// Package query provides filtered, paginated, memory-bounded retrieval
// from the log store. Scans are lazy line iterations over the rotated
// files; memory use is bounded by the requested page, never by log size,
// and every scan terminates within the configured line cap.
package query

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/myk-org/hooktrail/internal/logstore"
	"github.com/myk-org/hooktrail/internal/model"
	"github.com/myk-org/hooktrail/pkg/errors"
	"github.com/myk-org/hooktrail/pkg/logger"
	"github.com/myk-org/hooktrail/pkg/telemetry"
)

// Query limits and defaults
const (
	// DefaultScanCap bounds the lines examined by one scan. Operator
	// configurable; this is the default, not a hard constant.
	DefaultScanCap = 250000
	// DefaultLimit applies when a filter requests no limit
	DefaultLimit = 100
	// MaxQueryLimit is the page ceiling for point queries
	MaxQueryLimit = 1000
	// MaxExportLimit is the ceiling for exports
	MaxExportLimit = 50000
)

// Result is one scan's outcome. IsPartialScan distinguishes "the cap cut
// the scan short" from "no more data exists": callers must surface it so
// a thin page is never mistaken for the end of the log.
type Result struct {
	Entries          []model.LogRecord `json:"entries"`
	EntriesProcessed int               `json:"entries_processed"`
	IsPartialScan    bool              `json:"is_partial_scan"`
	MalformedLines   int               `json:"malformed_lines"`
}

// Engine scans the log store. It holds no state between calls and takes
// no locks: readers tolerate records appearing mid-scan.
type Engine struct {
	store   *logstore.Store
	scanCap int
}

// NewEngine creates a query engine over the given store.
func NewEngine(store *logstore.Store, scanCap int) *Engine {
	if scanCap <= 0 {
		scanCap = DefaultScanCap
	}
	return &Engine{store: store, scanCap: scanCap}
}

// Query returns records matching the filter, most recent first, honoring
// limit and offset. Limit is clamped to [1, MaxQueryLimit].
func (e *Engine) Query(ctx context.Context, f model.Filter) (*Result, error) {
	clampLimit(&f, MaxQueryLimit)
	return e.scan(ctx, f, false)
}

// QueryAscending returns matching records in append order, oldest first.
// The flow reconstructor depends on this ordering.
func (e *Engine) QueryAscending(ctx context.Context, f model.Filter) (*Result, error) {
	clampLimit(&f, MaxQueryLimit)
	return e.scan(ctx, f, true)
}

// Export is the same engine with a higher limit ceiling and no
// pagination window: offset is forced to zero and limit is clamped to
// MaxExportLimit regardless of the requested value. The scan cap and
// partial-scan flag still apply.
func (e *Engine) Export(ctx context.Context, f model.Filter) (*Result, error) {
	f.Offset = 0
	if f.Limit <= 0 || f.Limit > MaxExportLimit {
		f.Limit = MaxExportLimit
	}
	return e.scan(ctx, f, false)
}

// HookRecords returns every record for one delivery in append order.
// A nil-entry result with a hook-not-found error distinguishes "never
// seen" from "seen with zero steps".
func (e *Engine) HookRecords(ctx context.Context, hookID string) ([]model.LogRecord, error) {
	if hookID == "" {
		return nil, errors.ErrValidation("hook_id is required")
	}
	res, err := e.scan(ctx, model.Filter{HookID: hookID, Limit: MaxExportLimit}, true)
	if err != nil {
		return nil, err
	}
	if len(res.Entries) == 0 {
		return nil, errors.ErrHookNotFound(hookID)
	}
	return res.Entries, nil
}

// clampLimit normalizes pagination bounds in place.
func clampLimit(f *model.Filter, ceiling int) {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > ceiling {
		f.Limit = ceiling
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// scan walks the store's files evaluating the filter per line. Ascending
// scans stop as soon as limit+offset matches accumulate; descending
// scans walk files newest first and keep only the last limit+offset
// matches per file, so memory stays bounded by the page size.
func (e *Engine) scan(ctx context.Context, f model.Filter, ascending bool) (*Result, error) {
	start := time.Now()

	files, err := e.store.Files()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreRead, "failed to list log files", err)
	}
	if !ascending {
		reverseStrings(files)
	}

	need := f.Limit + f.Offset
	res := &Result{Entries: make([]model.LogRecord, 0, min(need, 1024))}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if res.IsPartialScan || len(res.Entries) >= need {
			break
		}
		if err := e.scanFile(path, &f, ascending, need, res); err != nil {
			// A file rotated away mid-scan is not an error: the next
			// poll picks up the new layout.
			logger.Debug("Skipping unreadable log file",
				zap.String("file", path),
				zap.Error(err),
			)
		}
	}

	// Apply the pagination window.
	if f.Offset >= len(res.Entries) {
		res.Entries = res.Entries[:0]
	} else {
		end := min(f.Offset+f.Limit, len(res.Entries))
		res.Entries = res.Entries[f.Offset:end]
	}

	telemetry.GetMetrics().RecordQuery(ctx,
		res.EntriesProcessed, res.MalformedLines, res.IsPartialScan,
		time.Since(start).Seconds())
	return res, nil
}

// scanFile consumes one file's lines into res. For descending scans the
// per-file matches are collected forward, trimmed to the newest `need`,
// then reversed and appended: within one file append order is
// chronological, so the tail of the file is the front of the page.
func (e *Engine) scanFile(path string, f *model.Filter, ascending bool, need int, res *Result) error {
	it, err := logstore.OpenLines(path)
	if err != nil {
		return err
	}
	defer it.Close()

	var fileMatches []model.LogRecord

	for {
		line, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if res.EntriesProcessed >= e.scanCap {
			res.IsPartialScan = true
			break
		}
		res.EntriesProcessed++

		var rec model.LogRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			// Corrupt or truncated by a rotation race: skipped and
			// counted, never fatal.
			res.MalformedLines++
			continue
		}
		if !Matches(f, &rec) {
			continue
		}

		if ascending {
			res.Entries = append(res.Entries, rec)
			if len(res.Entries) >= need {
				break
			}
		} else {
			fileMatches = append(fileMatches, rec)
			if len(fileMatches) > need {
				fileMatches = fileMatches[1:]
			}
		}
	}

	if !ascending && len(fileMatches) > 0 {
		for i := len(fileMatches) - 1; i >= 0; i-- {
			res.Entries = append(res.Entries, fileMatches[i])
		}
	}
	return nil
}

// reverseStrings reverses a slice in place.
func reverseStrings(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/myk-org/hooktrail/internal/model"
	"github.com/myk-org/hooktrail/internal/query"
	"github.com/myk-org/hooktrail/pkg/errors"
	"github.com/myk-org/hooktrail/pkg/logger"
)

// LogsHandler handles historical log query and export requests
type LogsHandler struct {
	engine *query.Engine
}

// NewLogsHandler creates a new logs handler
func NewLogsHandler(engine *query.Engine) *LogsHandler {
	return &LogsHandler{engine: engine}
}

// Query handles GET /api/v1/logs
func (h *LogsHandler) Query(c *gin.Context) {
	f := parseFilter(c)

	res, err := h.engine.Query(c.Request.Context(), f)
	if err != nil {
		logger.Error("Log query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    errors.ErrCodeQueryFailed,
			"message": "Failed to query logs",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries":           res.Entries,
		"entries_processed": res.EntriesProcessed,
		"is_partial_scan":   res.IsPartialScan,
		"malformed_lines":   res.MalformedLines,
	})
}

// Export handles GET /api/v1/logs/export. Same filter surface as Query
// with a higher limit ceiling and no pagination window; the output is a
// single JSON array of records, most recent first.
func (h *LogsHandler) Export(c *gin.Context) {
	f := parseFilter(c)

	res, err := h.engine.Export(c.Request.Context(), f)
	if err != nil {
		logger.Error("Log export failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    errors.ErrCodeQueryFailed,
			"message": "Failed to export logs",
		})
		return
	}

	if res.IsPartialScan {
		c.Header("X-Partial-Scan", "true")
	}
	c.Header("Content-Disposition", `attachment; filename="webhook-logs.json"`)
	c.JSON(http.StatusOK, res.Entries)
}

// parseFilter builds a Filter from query parameters. Unparseable time
// bounds are treated as absent, not rejected.
func parseFilter(c *gin.Context) model.Filter {
	var f model.Filter
	f.HookID = c.Query("hook_id")
	f.Repository = c.Query("repository")
	f.EventType = c.Query("event_type")
	f.GithubUser = c.Query("github_user")
	f.Search = strings.TrimSpace(c.Query("search"))

	if level := c.Query("level"); level != "" {
		level = strings.ToUpper(level)
		if model.ValidLevel(level) {
			f.Level = level
		}
	}

	if pr := c.Query("pr_number"); pr != "" {
		if n, err := strconv.Atoi(pr); err == nil && n > 0 {
			f.PRNumber = n
		}
	}
	if limit := c.Query("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			f.Limit = n
		}
	}
	if offset := c.Query("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil && n > 0 {
			f.Offset = n
		}
	}

	f.StartTime = parseTimeBound(c.Query("start_time"))
	f.EndTime = parseTimeBound(c.Query("end_time"))
	return f
}

// parseTimeBound accepts RFC3339 or the record timestamp layout; nil on
// any parse failure.
func parseTimeBound(s string) *time.Time {
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t
	}
	if t, err := time.Parse(model.TimeLayout, s); err == nil {
		return &t
	}
	return nil
}

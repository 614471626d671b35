package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/myk-org/hooktrail/internal/flow"
	"github.com/myk-org/hooktrail/internal/trace"
	"github.com/myk-org/hooktrail/pkg/errors"
	"github.com/myk-org/hooktrail/pkg/logger"
)

// FlowHandler handles flow reconstruction and active-delivery requests
type FlowHandler struct {
	flows    *flow.Service
	recorder *trace.Recorder
}

// NewFlowHandler creates a new flow handler
func NewFlowHandler(flows *flow.Service, recorder *trace.Recorder) *FlowHandler {
	return &FlowHandler{flows: flows, recorder: recorder}
}

// GetFlow handles GET /api/v1/hooks/:id/flow
func (h *FlowHandler) GetFlow(c *gin.Context) {
	hookID := c.Param("id")
	if hookID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    errors.ErrCodeValidation,
			"message": "Invalid hook ID",
		})
		return
	}

	view, err := h.flows.Flow(c.Request.Context(), hookID)
	if err != nil {
		h.renderError(c, err, hookID)
		return
	}

	c.JSON(http.StatusOK, view)
}

// GetStepLogs handles GET /api/v1/hooks/:id/steps/:name/logs
func (h *FlowHandler) GetStepLogs(c *gin.Context) {
	hookID := c.Param("id")
	stepName := c.Param("name")
	if hookID == "" || stepName == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    errors.ErrCodeValidation,
			"message": "Invalid hook ID or step name",
		})
		return
	}

	records, summary, err := h.flows.StepLogs(c.Request.Context(), hookID, stepName)
	if err != nil {
		h.renderError(c, err, hookID)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"hook_id":   hookID,
		"step_name": stepName,
		"entries":   records,
		"step":      summary,
	})
}

// GetActive handles GET /api/v1/hooks/active
func (h *FlowHandler) GetActive(c *gin.Context) {
	snapshots := h.recorder.Active()
	c.JSON(http.StatusOK, gin.H{
		"data":  snapshots,
		"total": len(snapshots),
	})
}

// renderError maps flow lookup failures to responses; unknown hook ids
// are a distinct not-found, never an empty success.
func (h *FlowHandler) renderError(c *gin.Context, err error, hookID string) {
	if appErr, ok := errors.AsAppError(err); ok {
		c.JSON(appErr.HTTPStatus(), gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
		})
		return
	}
	logger.Error("Flow reconstruction failed",
		zap.String("hook_id", hookID),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    errors.ErrCodeInternal,
		"message": "Failed to reconstruct flow",
	})
}

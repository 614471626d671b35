package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/myk-org/hooktrail/consts"
)

// Health handles GET /health
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": consts.ServiceName,
		"version": consts.Version,
		"uptime":  consts.Uptime().String(),
	})
}

// Version handles GET /api/v1/version
func Version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":    consts.Version,
		"build_time": consts.BuildTime,
		"git_commit": consts.GitCommit,
	})
}

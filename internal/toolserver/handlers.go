package toolserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	v1 "github.com/compeek/compeek/pkg/api/v1"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, v1.HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Seconds(),
	})
}

func (s *Server) handleInfo(c *gin.Context) {
	info, err := s.exec.GetInfo(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to get container info", zap.Error(err))
		c.JSON(http.StatusInternalServerError, v1.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

// handleTool runs one action. Execution failures are reported in the body
// with status 200, like successes.
func (s *Server) handleTool(c *gin.Context) {
	var action v1.Action
	if err := c.ShouldBindJSON(&action); err != nil {
		c.JSON(http.StatusBadRequest, v1.ActionResult{Error: "invalid action: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.exec.ExecuteAction(c.Request.Context(), action))
}

func (s *Server) handleBash(c *gin.Context) {
	var req v1.BashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, v1.BashResponse{Error: "invalid request: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		c.JSON(http.StatusBadRequest, v1.BashResponse{Error: "command is required"})
		return
	}
	res := s.exec.ExecuteBash(c.Request.Context(), req.Command)
	if res.Error != "" {
		c.JSON(http.StatusOK, res)
		return
	}
	// output is always present on success, even when empty
	c.JSON(http.StatusOK, gin.H{"output": res.Output})
}

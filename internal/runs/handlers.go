package runs

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/compeek/compeek/internal/agent"
	"github.com/compeek/compeek/internal/common/logger"
	v1 "github.com/compeek/compeek/pkg/api/v1"
)

// Handlers serves the run API.
type Handlers struct {
	manager *Manager
	logger  *logger.Logger
}

// RegisterRoutes mounts the run API on router.
func RegisterRoutes(router gin.IRouter, manager *Manager, log *logger.Logger) {
	h := &Handlers{
		manager: manager,
		logger:  log.WithFields(zap.String("component", "run-handlers")),
	}
	api := router.Group("/api")
	api.POST("/runs", h.httpStartRun)
	api.GET("/runs", h.httpListRuns)
	api.GET("/runs/:id", h.httpGetRun)
	api.GET("/runs/:id/events", h.httpListEvents)
	api.POST("/runs/:id/stop", h.httpStopRun)
	api.GET("/runs/:id/stream", h.wsStreamRun)
	api.POST("/extract", h.httpExtract)
}

func (h *Handlers) httpStartRun(c *gin.Context) {
	var req v1.StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, v1.ErrorResponse{Error: "invalid request body"})
		return
	}
	run, err := h.manager.Start(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, run)
}

func (h *Handlers) httpListRuns(c *gin.Context) {
	filter := ListFilter{
		Status: v1.RunStatus(c.Query("status")),
		Query:  c.Query("q"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, v1.ErrorResponse{Error: "invalid limit"})
			return
		}
		filter.Limit = limit
	}
	runs, err := h.manager.List(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v1.RunListResponse{Runs: runs, Total: len(runs)})
}

func (h *Handlers) httpGetRun(c *gin.Context) {
	run, err := h.manager.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *Handlers) httpListEvents(c *gin.Context) {
	after, ok := afterSeq(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if _, err := h.manager.Get(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	events, err := h.manager.Events(c.Request.Context(), id, after)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v1.RunEventsResponse{Events: events})
}

func (h *Handlers) httpStopRun(c *gin.Context) {
	id := c.Param("id")
	if err := h.manager.Stop(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "stopping": true})
}

func (h *Handlers) httpExtract(c *gin.Context) {
	var req v1.ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, v1.ErrorResponse{Error: "document_base64 is required"})
		return
	}
	out, err := h.manager.Extract(c.Request.Context(), req.DocumentBase64, req.DocumentMimeType)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// afterSeq reads the ?after= cursor, writing a 400 when it is malformed.
func afterSeq(c *gin.Context) (int, bool) {
	raw := c.Query("after")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, v1.ErrorResponse{Error: "invalid after cursor"})
		return 0, false
	}
	return n, true
}

func (h *Handlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, v1.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrRunNotFound):
		c.JSON(http.StatusNotFound, v1.ErrorResponse{Error: "run not found"})
	case errors.Is(err, ErrRunFinished):
		c.JSON(http.StatusConflict, v1.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrContainerUnavailable):
		c.JSON(http.StatusBadGateway, v1.ErrorResponse{Error: err.Error()})
	case errors.Is(err, agent.ErrNoExtraction):
		c.JSON(http.StatusBadGateway, v1.ErrorResponse{Error: err.Error()})
	default:
		h.logger.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, v1.ErrorResponse{Error: "request failed"})
	}
}

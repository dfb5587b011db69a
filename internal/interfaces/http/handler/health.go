package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/groupbuy/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// StreamCounter reports the number of open chat streams
type StreamCounter interface {
	ActiveStreams() int64
}

// HealthHandler reports service liveness and database reachability
type HealthHandler struct {
	BaseHandler
	db      Pinger
	streams StreamCounter
	timeout time.Duration
}

// NewHealthHandler creates a new HealthHandler. streams may be nil.
func NewHealthHandler(db Pinger, streams StreamCounter) *HealthHandler {
	return &HealthHandler{db: db, streams: streams, timeout: 2 * time.Second}
}

// HealthResponse is the health payload
type HealthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	ChatStreams int64  `json:"chatStreams"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Database: "ok"}
	if h.streams != nil {
		resp.ChatStreams = h.streams.ActiveStreams()
	}

	if err := h.db.Ping(ctx); err != nil {
		logger.L(c.Request.Context()).Warn("health check: database unreachable", zap.Error(err))
		resp.Status = "degraded"
		resp.Database = "unreachable"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

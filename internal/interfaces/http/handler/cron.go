package handler

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/groupbuy/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// CronHandler lets an external scheduler trigger the deadline sweep
type CronHandler struct {
	BaseHandler
	sweeper SweepRunner
	secret  string
}

// NewCronHandler creates a new CronHandler. An empty secret leaves the
// trigger open.
func NewCronHandler(sweeper SweepRunner, secret string) *CronHandler {
	return &CronHandler{sweeper: sweeper, secret: secret}
}

// Reminders handles GET /group-orders/cron/reminders. The secret is taken
// from the secret query parameter or an "Authorization: Bearer" header.
func (h *CronHandler) Reminders(c *gin.Context) {
	if h.secret != "" && !h.authorized(c) {
		logger.L(c.Request.Context()).Warn("cron trigger rejected", zap.String("client_ip", c.ClientIP()))
		h.Unauthorized(c, "Invalid cron secret")
		return
	}

	result, err := h.sweeper.Sweep(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

func (h *CronHandler) authorized(c *gin.Context) bool {
	given := c.Query("secret")
	if given == "" {
		given = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(h.secret)) == 1
}

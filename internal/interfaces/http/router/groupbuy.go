package router

import (
	"github.com/gin-gonic/gin"
	"github.com/groupbuy/backend/internal/infrastructure/auth"
	"github.com/groupbuy/backend/internal/interfaces/http/handler"
	"github.com/groupbuy/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// GroupBuyHandlers are the handlers mounted by GroupBuyRoutes
type GroupBuyHandlers struct {
	Public *handler.GroupOrderHandler
	Admin  *handler.AdminGroupOrderHandler
	Chat   *handler.ChatHandler
	Cron   *handler.CronHandler
}

// GroupBuyAuth carries what the group-buy routes authenticate with
type GroupBuyAuth struct {
	JWT        *auth.JWTService
	ChatTokens *auth.ChatTokenService
	Logger     *zap.Logger
}

// GroupBuyRoutes builds the public and operator route groups
func GroupBuyRoutes(h GroupBuyHandlers, a GroupBuyAuth) []RouteRegistrar {
	access := middleware.GroupAccess(middleware.GroupAccessConfig{
		JWTService: a.JWT,
		ChatTokens: a.ChatTokens,
		Logger:     a.Logger,
	})

	public := NewDomainGroup("group-orders", "/group-orders")
	public.GET("/active", h.Public.ListActive)
	public.POST("/proposals", h.Public.Propose)
	public.GET("/cron/reminders", h.Cron.Reminders)
	public.GET("/:id", h.Public.Get)
	public.POST("/:id/join", h.Public.Join)
	public.DELETE("/:id/participants/:participantId", access, h.Public.Leave)
	public.GET("/:id/chat/stream", access, h.Chat.Stream)
	public.GET("/:id/chat/messages", access, h.Chat.History)
	public.POST("/:id/chat/messages", access, h.Chat.Post)

	admin := NewDomainGroup("admin-group-orders", "/admin/group-orders").Use(
		middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{
			JWTService: a.JWT,
			Logger:     a.Logger,
		}),
		middleware.RequirePermissionWithConfig(auth.PermissionGroupBuyManage,
			middleware.PermissionConfig{Logger: a.Logger}),
	)
	admin.GET("", h.Admin.List)
	admin.POST("", h.Admin.Create)
	admin.GET("/pending", h.Admin.ListPending)
	admin.POST("/sweep", h.Admin.Sweep)
	admin.GET("/:id", h.Admin.Get)
	admin.POST("/:id/publish", h.Admin.Publish)
	admin.POST("/:id/approve", h.Admin.Approve)
	admin.POST("/:id/reject", h.Admin.Reject)
	admin.POST("/:id/begin-ordering", h.Admin.BeginOrdering)
	admin.POST("/:id/confirm-ordered", h.Admin.ConfirmOrdered)
	admin.POST("/:id/ship", h.Admin.Ship)
	admin.POST("/:id/deliver", h.Admin.Deliver)
	admin.POST("/:id/cancel", h.Admin.Cancel)
	admin.POST("/:id/extend-deadline", h.Admin.ExtendDeadline)
	admin.POST("/:id/notes", h.Admin.AddNote)
	admin.POST("/:id/chat", h.Admin.SetChat)
	admin.POST("/:id/participants", h.Admin.Seed)

	return []RouteRegistrar{public, admin}
}

// RegisterHealth mounts the health endpoint outside the versioned API
func RegisterHealth(engine *gin.Engine, h *handler.HealthHandler) {
	engine.GET("/health", h.Health)
}

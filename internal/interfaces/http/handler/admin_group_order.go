package handler

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	groupbuyapp "github.com/groupbuy/backend/internal/application/groupbuy"
	"github.com/groupbuy/backend/internal/domain/groupbuy"
	"github.com/groupbuy/backend/internal/domain/shared"
	"github.com/groupbuy/backend/internal/interfaces/http/dto"
)

// SweepRunner runs one deadline sweep
type SweepRunner interface {
	Sweep(ctx context.Context) (*groupbuyapp.SweepResult, error)
}

// AdminGroupOrderHandler serves the operator group order endpoints
type AdminGroupOrderHandler struct {
	BaseHandler
	service *groupbuyapp.Service
	sweeper SweepRunner
}

// NewAdminGroupOrderHandler creates a new AdminGroupOrderHandler
func NewAdminGroupOrderHandler(service *groupbuyapp.Service, sweeper SweepRunner) *AdminGroupOrderHandler {
	return &AdminGroupOrderHandler{
		service: service,
		sweeper: sweeper,
	}
}

func toFilter(req dto.ListRequest) shared.Filter {
	req.Normalize()
	filter := shared.DefaultFilter()
	filter.Page = req.Page
	filter.PageSize = req.Limit
	filter.OrderBy = req.OrderBy
	filter.OrderDir = req.OrderDir
	return filter
}

// parseStatuses accepts a comma-separated status list
func parseStatuses(raw string) ([]groupbuy.Status, error) {
	if raw == "" {
		return nil, nil
	}
	var out []groupbuy.Status
	for _, part := range strings.Split(raw, ",") {
		s, err := groupbuy.ParseStatus(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ListPending handles GET /admin/group-orders/pending
func (h *AdminGroupOrderHandler) ListPending(c *gin.Context) {
	var req dto.ListRequest
	if !h.BindQuery(c, &req) {
		return
	}

	list, err := h.service.ListPending(c.Request.Context(), toFilter(req))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, list.Items, list.Total, list.Page, list.PageSize)
}

// List handles GET /admin/group-orders
func (h *AdminGroupOrderHandler) List(c *gin.Context) {
	var req dto.ListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	statuses, err := parseStatuses(req.Status)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	list, err := h.service.List(c.Request.Context(), toFilter(req), statuses...)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, list.Items, list.Total, list.Page, list.PageSize)
}

// Get handles GET /admin/group-orders/:id
func (h *AdminGroupOrderHandler) Get(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	group, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, group)
}

// Create handles POST /admin/group-orders
func (h *AdminGroupOrderHandler) Create(c *gin.Context) {
	var req groupbuyapp.CreateGroupOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}

	group, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, group)
}

type transition func(ctx context.Context, id uuid.UUID) (*groupbuyapp.GroupOrderResponse, error)

// runTransition serves the body-less lifecycle endpoints
func (h *AdminGroupOrderHandler) runTransition(c *gin.Context, fn transition) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	group, err := fn(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, group)
}

// Publish handles POST /admin/group-orders/:id/publish
func (h *AdminGroupOrderHandler) Publish(c *gin.Context) {
	h.runTransition(c, h.service.Publish)
}

// BeginOrdering handles POST /admin/group-orders/:id/begin-ordering
func (h *AdminGroupOrderHandler) BeginOrdering(c *gin.Context) {
	h.runTransition(c, h.service.BeginOrdering)
}

// ConfirmOrdered handles POST /admin/group-orders/:id/confirm-ordered
func (h *AdminGroupOrderHandler) ConfirmOrdered(c *gin.Context) {
	h.runTransition(c, h.service.ConfirmOrdered)
}

// Ship handles POST /admin/group-orders/:id/ship
func (h *AdminGroupOrderHandler) Ship(c *gin.Context) {
	h.runTransition(c, h.service.Ship)
}

// Deliver handles POST /admin/group-orders/:id/deliver
func (h *AdminGroupOrderHandler) Deliver(c *gin.Context) {
	h.runTransition(c, h.service.Deliver)
}

// Approve handles POST /admin/group-orders/:id/approve. The body is optional.
func (h *AdminGroupOrderHandler) Approve(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req groupbuyapp.ApproveRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}

	group, err := h.service.Approve(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, group)
}

// Reject handles POST /admin/group-orders/:id/reject
func (h *AdminGroupOrderHandler) Reject(c *gin.Context) {
	h.withReason(c, h.service.Reject)
}

// Cancel handles POST /admin/group-orders/:id/cancel
func (h *AdminGroupOrderHandler) Cancel(c *gin.Context) {
	h.withReason(c, h.service.Cancel)
}

func (h *AdminGroupOrderHandler) withReason(c *gin.Context, fn func(context.Context, uuid.UUID, string) (*groupbuyapp.GroupOrderResponse, error)) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req groupbuyapp.ReasonRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}

	group, err := fn(c.Request.Context(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, group)
}

// ExtendDeadline handles POST /admin/group-orders/:id/extend-deadline
func (h *AdminGroupOrderHandler) ExtendDeadline(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req groupbuyapp.ExtendDeadlineRequest
	if !h.BindJSON(c, &req) {
		return
	}

	group, err := h.service.ExtendDeadline(c.Request.Context(), id, req.Deadline)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, group)
}

// AddNote handles POST /admin/group-orders/:id/notes
func (h *AdminGroupOrderHandler) AddNote(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req groupbuyapp.NoteRequest
	if !h.BindJSON(c, &req) {
		return
	}

	group, err := h.service.AddNote(c.Request.Context(), id, req.Note)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, group)
}

// SetChat handles POST /admin/group-orders/:id/chat
func (h *AdminGroupOrderHandler) SetChat(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req groupbuyapp.ChatToggleRequest
	if !h.BindJSON(c, &req) {
		return
	}

	group, err := h.service.SetChatEnabled(c.Request.Context(), id, *req.Enabled)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, group)
}

// Seed handles POST /admin/group-orders/:id/participants
func (h *AdminGroupOrderHandler) Seed(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req groupbuyapp.JoinRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.service.Seed(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, groupbuyapp.ToGroupOrderResponse(result.Group))
}

// Sweep handles POST /admin/group-orders/sweep
func (h *AdminGroupOrderHandler) Sweep(c *gin.Context) {
	result, err := h.sweeper.Sweep(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// bindOptionalJSON binds a body when one was sent
func (h *AdminGroupOrderHandler) bindOptionalJSON(c *gin.Context, req any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		h.bindError(c, err)
		return false
	}
	return true
}

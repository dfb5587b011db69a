package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	groupbuyapp "github.com/groupbuy/backend/internal/application/groupbuy"
	"github.com/groupbuy/backend/internal/infrastructure/auth"
	"github.com/groupbuy/backend/internal/infrastructure/logger"
	"github.com/groupbuy/backend/internal/interfaces/http/dto"
	"github.com/groupbuy/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// IdempotencyKeyHeader lets a client retry a join without joining twice
const IdempotencyKeyHeader = "Idempotency-Key"

const maxIdempotencyKeyLength = 128

// GroupOrderHandler serves the public group order endpoints
type GroupOrderHandler struct {
	BaseHandler
	service    *groupbuyapp.Service
	chatTokens *auth.ChatTokenService
}

// NewGroupOrderHandler creates a new GroupOrderHandler
func NewGroupOrderHandler(service *groupbuyapp.Service, chatTokens *auth.ChatTokenService) *GroupOrderHandler {
	return &GroupOrderHandler{
		service:    service,
		chatTokens: chatTokens,
	}
}

// ListActive handles GET /group-orders/active
func (h *GroupOrderHandler) ListActive(c *gin.Context) {
	var req dto.ActiveListRequest
	if !h.BindQuery(c, &req) {
		return
	}

	items, err := h.service.ListActive(c.Request.Context(), req.Limit, req.ExcludeProductID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, items)
}

// Get handles GET /group-orders/:id
func (h *GroupOrderHandler) Get(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	group, err := h.service.GetPublic(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, group)
}

// Propose handles POST /group-orders/proposals
func (h *GroupOrderHandler) Propose(c *gin.Context) {
	var req groupbuyapp.ProposalRequest
	if !h.BindJSON(c, &req) {
		return
	}

	group, err := h.service.Propose(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, group)
}

// Join handles POST /group-orders/:id/join. The response carries the
// participant's capability token for chat and leaving.
func (h *GroupOrderHandler) Join(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	idemKey := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	if len(idemKey) > maxIdempotencyKeyLength {
		h.BadRequest(c, IdempotencyKeyHeader+" is too long")
		return
	}

	var req groupbuyapp.JoinRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.service.Join(c.Request.Context(), id, req, idemKey)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := groupbuyapp.JoinResponse{
		Participant: groupbuyapp.ToParticipantResponse(result.Participant),
		Group:       groupbuyapp.ToPublicGroupOrderResponse(result.Group, h.service.Now()),
	}
	if h.chatTokens != nil {
		token, expiresAt, err := h.chatTokens.Issue(result.Group.ID, result.Participant.ID)
		if err != nil {
			// the join is committed; the participant can still be reached by an operator
			logger.L(c.Request.Context()).Error("failed to issue chat token",
				zap.String("group_id", result.Group.ID.String()),
				zap.String("participant_id", result.Participant.ID.String()),
				zap.Error(err))
		} else {
			resp.ChatToken = token
			resp.ChatTokenExpiresAt = &expiresAt
		}
	}
	h.Created(c, resp)
}

// Leave handles DELETE /group-orders/:id/participants/:participantId. A
// participant token may only remove its own entry.
func (h *GroupOrderHandler) Leave(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	participantID, ok := h.ParseID(c, "participantId")
	if !ok {
		return
	}

	if claims := middleware.GetChatClaims(c); claims != nil && claims.ParticipantUUID() != participantID {
		h.Forbidden(c, "A participant may only withdraw their own commitment")
		return
	}

	group, err := h.service.Leave(c.Request.Context(), id, participantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, group)
}

// viewerFrom builds the chat viewer from what GroupAccess stored
func viewerFrom(c *gin.Context) (groupbuyapp.Viewer, bool) {
	if claims := middleware.GetJWTClaims(c); claims != nil {
		name := claims.Username
		if name == "" {
			name = "Operator"
		}
		return groupbuyapp.Viewer{Operator: true, OperatorName: name}, true
	}
	if claims := middleware.GetChatClaims(c); claims != nil {
		return groupbuyapp.Viewer{ParticipantID: claims.ParticipantUUID()}, true
	}
	return groupbuyapp.Viewer{ParticipantID: uuid.Nil}, false
}

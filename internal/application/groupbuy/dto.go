package groupbuy

import (
	"time"

	"github.com/google/uuid"
	"github.com/groupbuy/backend/internal/domain/groupbuy"
	"github.com/groupbuy/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PriceTierDTO is one row of a tier table
type PriceTierDTO struct {
	MinQty int             `json:"minQty" binding:"required,gt=0"`
	Price  decimal.Decimal `json:"price" binding:"required,decimal_positive"`
}

func tiersToDomain(in []PriceTierDTO) []groupbuy.PriceTier {
	if in == nil {
		return nil
	}
	out := make([]groupbuy.PriceTier, 0, len(in))
	for _, t := range in {
		out = append(out, groupbuy.PriceTier{MinQty: t.MinQty, Price: t.Price})
	}
	return out
}

func tiersFromDomain(in groupbuy.PriceTiers) []PriceTierDTO {
	out := make([]PriceTierDTO, 0, len(in))
	for _, t := range in {
		out = append(out, PriceTierDTO{MinQty: t.MinQty, Price: t.Price})
	}
	return out
}

// CreateGroupOrderRequest is the operator's create payload
type CreateGroupOrderRequest struct {
	ProductID     string         `json:"productId" binding:"required,max=100"`
	PriceTiers    []PriceTierDTO `json:"priceTiers" binding:"omitempty,max=10,dive"`
	MinQty        int            `json:"minQty" binding:"gte=0"`
	TargetQty     int            `json:"targetQty" binding:"required,gt=0"`
	Deadline      time.Time      `json:"deadline" binding:"required"`
	AsDraft       bool           `json:"asDraft"`
	InternalNotes string         `json:"internalNotes" binding:"max=2000"`
}

// ProposalRequest is a client's proposal for a new group
type ProposalRequest struct {
	ProductID      string     `json:"productId" binding:"required,max=100"`
	DesiredQty     int        `json:"desiredQty" binding:"required,gt=0"`
	Message        string     `json:"message" binding:"max=2000"`
	ProposerUserID *uuid.UUID `json:"proposerUserId"`
	ProposerName   string     `json:"proposerName" binding:"required,max=200"`
	ProposerEmail  string     `json:"proposerEmail" binding:"required,email,max=200"`
}

// JoinRequest is the public join payload; operators seed with the same shape
type JoinRequest struct {
	UserID *uuid.UUID `json:"userId"`
	Name   string     `json:"name" binding:"required,max=200"`
	Email  string     `json:"email" binding:"omitempty,email,max=200"`
	Phone  string     `json:"phone" binding:"omitempty,max=50"`
	Qty    int        `json:"qty" binding:"required,gt=0"`
}

func (r JoinRequest) toInput() groupbuy.ParticipantInput {
	return groupbuy.ParticipantInput{
		UserID: r.UserID,
		Name:   r.Name,
		Email:  r.Email,
		Phone:  r.Phone,
		Qty:    r.Qty,
	}
}

// ApproveRequest carries the terms set when approving a proposal
type ApproveRequest struct {
	Deadline   *time.Time     `json:"deadline"`
	PriceTiers []PriceTierDTO `json:"priceTiers" binding:"omitempty,max=10,dive"`
	TargetQty  *int           `json:"targetQty" binding:"omitempty,gt=0"`
	MinQty     *int           `json:"minQty" binding:"omitempty,gte=0"`
}

// ReasonRequest carries an optional free-text reason
type ReasonRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// ExtendDeadlineRequest moves a deadline later
type ExtendDeadlineRequest struct {
	Deadline time.Time `json:"deadline" binding:"required"`
}

// NoteRequest appends to the internal notes
type NoteRequest struct {
	Note string `json:"note" binding:"required,max=2000"`
}

// ChatToggleRequest switches a group's chat on or off
type ChatToggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// ProductResponse is the product snapshot
type ProductResponse struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"imageUrl,omitempty"`
	BasePrice decimal.Decimal `json:"basePrice"`
	Currency  string          `json:"currency"`
}

// ParticipantResponse is a full ledger entry
type ParticipantResponse struct {
	ID          uuid.UUID       `json:"id"`
	GroupID     uuid.UUID       `json:"groupId"`
	UserID      *uuid.UUID      `json:"userId,omitempty"`
	Name        string          `json:"name"`
	Email       string          `json:"email,omitempty"`
	Phone       string          `json:"phone,omitempty"`
	Qty         int             `json:"qty"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	JoinedAt    time.Time       `json:"joinedAt"`
}

// PublicParticipantResponse hides contact details and shortens names
type PublicParticipantResponse struct {
	Name     string    `json:"name"`
	Qty      int       `json:"qty"`
	JoinedAt time.Time `json:"joinedAt"`
}

// ProposalResponse is the client proposal attached to a group
type ProposalResponse struct {
	Message        string     `json:"message,omitempty"`
	DesiredQty     int        `json:"desiredQty"`
	SubmittedAt    time.Time  `json:"submittedAt"`
	ProposerUserID *uuid.UUID `json:"proposerUserId,omitempty"`
	ProposerName   string     `json:"proposerName"`
	ProposerEmail  string     `json:"proposerEmail"`
}

// NextTierResponse describes the next price break
type NextTierResponse struct {
	MinQty        int             `json:"minQty"`
	Price         decimal.Decimal `json:"price"`
	UnitsToUnlock int             `json:"unitsToUnlock"`
}

// GroupOrderResponse is the operator view of a group order
type GroupOrderResponse struct {
	ID               uuid.UUID             `json:"id"`
	Product          ProductResponse       `json:"product"`
	PriceTiers       []PriceTierDTO        `json:"priceTiers"`
	MinQty           int                   `json:"minQty"`
	TargetQty        int                   `json:"targetQty"`
	CurrentQty       int                   `json:"currentQty"`
	CurrentUnitPrice decimal.Decimal       `json:"currentUnitPrice"`
	ProgressPercent  int                   `json:"progressPercent"`
	NextTier         *NextTierResponse     `json:"nextTier,omitempty"`
	Participants     []ParticipantResponse `json:"participants"`
	Status           string                `json:"status"`
	Origin           string                `json:"origin"`
	Proposal         *ProposalResponse     `json:"proposal,omitempty"`
	Deadline         time.Time             `json:"deadline"`
	InternalNotes    string                `json:"internalNotes,omitempty"`
	ChatEnabled      bool                  `json:"chatEnabled"`
	RemindersSent    []string              `json:"remindersSent"`
	CancelReason     string                `json:"cancelReason,omitempty"`
	Version          int                   `json:"version"`
	CreatedAt        time.Time             `json:"createdAt"`
	UpdatedAt        time.Time             `json:"updatedAt"`
	PublishedAt      *time.Time            `json:"publishedAt,omitempty"`
	ApprovedAt       *time.Time            `json:"approvedAt,omitempty"`
	FilledAt         *time.Time            `json:"filledAt,omitempty"`
	OrderingAt       *time.Time            `json:"orderingAt,omitempty"`
	OrderedAt        *time.Time            `json:"orderedAt,omitempty"`
	ShippedAt        *time.Time            `json:"shippedAt,omitempty"`
	DeliveredAt      *time.Time            `json:"deliveredAt,omitempty"`
	CancelledAt      *time.Time            `json:"cancelledAt,omitempty"`
}

// PublicGroupOrderResponse is what anyone may see about a group
type PublicGroupOrderResponse struct {
	ID               uuid.UUID                   `json:"id"`
	Product          ProductResponse             `json:"product"`
	PriceTiers       []PriceTierDTO              `json:"priceTiers"`
	MinQty           int                         `json:"minQty"`
	TargetQty        int                         `json:"targetQty"`
	CurrentQty       int                         `json:"currentQty"`
	CurrentUnitPrice decimal.Decimal             `json:"currentUnitPrice"`
	ProgressPercent  int                         `json:"progressPercent"`
	Urgency          string                      `json:"urgency"`
	NextTier         *NextTierResponse           `json:"nextTier,omitempty"`
	Participants     []PublicParticipantResponse `json:"participants"`
	Status           string                      `json:"status"`
	Deadline         time.Time                   `json:"deadline"`
	ChatEnabled      bool                        `json:"chatEnabled"`
}

// ActiveGroupOrderResponse is one card of the public listing
type ActiveGroupOrderResponse struct {
	ID               uuid.UUID         `json:"id"`
	Product          ProductResponse   `json:"product"`
	TargetQty        int               `json:"targetQty"`
	CurrentQty       int               `json:"currentQty"`
	CurrentUnitPrice decimal.Decimal   `json:"currentUnitPrice"`
	ProgressPercent  int               `json:"progressPercent"`
	Urgency          string            `json:"urgency"`
	NextTier         *NextTierResponse `json:"nextTier,omitempty"`
	Deadline         time.Time         `json:"deadline"`
}

// JoinResponse is returned to a participant after joining
type JoinResponse struct {
	Participant        ParticipantResponse      `json:"participant"`
	Group              PublicGroupOrderResponse `json:"group"`
	ChatToken          string                   `json:"chatToken,omitempty"`
	ChatTokenExpiresAt *time.Time               `json:"chatTokenExpiresAt,omitempty"`
}

// ListResponse is a page of operator results
type ListResponse = shared.Paginated[GroupOrderResponse]

// ChatMessageResponse is one chat message
type ChatMessageResponse struct {
	ID                  string     `json:"id"`
	GroupID             uuid.UUID  `json:"groupId"`
	AuthorType          string     `json:"authorType"`
	AuthorParticipantID *uuid.UUID `json:"authorParticipantId,omitempty"`
	AuthorName          string     `json:"authorName"`
	Text                string     `json:"text"`
	CreatedAt           time.Time  `json:"createdAt"`
}

// PostChatMessageRequest is the chat post payload
type PostChatMessageRequest struct {
	Text string `json:"text" binding:"required,max=2000"`
}

func productResponse(p groupbuy.ProductSnapshot) ProductResponse {
	return ProductResponse{
		ProductID: p.ProductID,
		Name:      p.Name,
		ImageURL:  p.ImageURL,
		BasePrice: p.BasePrice,
		Currency:  string(p.Currency),
	}
}

func nextTierResponse(g *groupbuy.GroupOrder) *NextTierResponse {
	tier, units, ok := g.UnitsToNextTier()
	if !ok {
		return nil
	}
	return &NextTierResponse{MinQty: tier.MinQty, Price: tier.Price, UnitsToUnlock: units}
}

// ToParticipantResponse converts a ledger entry
func ToParticipantResponse(p *groupbuy.Participant) ParticipantResponse {
	return ParticipantResponse{
		ID:          p.ID,
		GroupID:     p.GroupID,
		UserID:      p.UserID,
		Name:        p.Name,
		Email:       p.Email,
		Phone:       p.Phone,
		Qty:         p.Qty,
		UnitPrice:   p.UnitPrice,
		TotalAmount: p.TotalAmount,
		JoinedAt:    p.JoinedAt,
	}
}

// ToGroupOrderResponse converts an aggregate to the operator view
func ToGroupOrderResponse(g *groupbuy.GroupOrder) GroupOrderResponse {
	resp := GroupOrderResponse{
		ID:               g.ID,
		Product:          productResponse(g.Product),
		PriceTiers:       tiersFromDomain(g.PriceTiers),
		MinQty:           g.MinQty,
		TargetQty:        g.TargetQty,
		CurrentQty:       g.CurrentQty,
		CurrentUnitPrice: g.CurrentUnitPrice,
		ProgressPercent:  g.ProgressPercent(),
		NextTier:         nextTierResponse(g),
		Participants:     make([]ParticipantResponse, 0, len(g.Participants)),
		Status:           g.Status.String(),
		Origin:           string(g.Origin),
		Deadline:         g.Deadline,
		InternalNotes:    g.InternalNotes,
		ChatEnabled:      g.ChatEnabled,
		RemindersSent:    make([]string, 0, len(g.RemindersSent)),
		CancelReason:     g.CancelReason,
		Version:          g.Version,
		CreatedAt:        g.CreatedAt,
		UpdatedAt:        g.UpdatedAt,
		PublishedAt:      g.PublishedAt,
		ApprovedAt:       g.ApprovedAt,
		FilledAt:         g.FilledAt,
		OrderingAt:       g.OrderingAt,
		OrderedAt:        g.OrderedAt,
		ShippedAt:        g.ShippedAt,
		DeliveredAt:      g.DeliveredAt,
		CancelledAt:      g.CancelledAt,
	}
	for _, p := range g.Participants {
		resp.Participants = append(resp.Participants, ToParticipantResponse(p))
	}
	for _, w := range g.RemindersSent {
		resp.RemindersSent = append(resp.RemindersSent, string(w))
	}
	if p := g.Proposal; p != nil {
		resp.Proposal = &ProposalResponse{
			Message:        p.Message,
			DesiredQty:     p.DesiredQty,
			SubmittedAt:    p.SubmittedAt,
			ProposerUserID: p.ProposerUserID,
			ProposerName:   p.ProposerName,
			ProposerEmail:  p.ProposerEmail,
		}
	}
	return resp
}

// ToPublicGroupOrderResponse converts an aggregate to the public view
func ToPublicGroupOrderResponse(g *groupbuy.GroupOrder, now time.Time) PublicGroupOrderResponse {
	resp := PublicGroupOrderResponse{
		ID:               g.ID,
		Product:          productResponse(g.Product),
		PriceTiers:       tiersFromDomain(g.PriceTiers),
		MinQty:           g.MinQty,
		TargetQty:        g.TargetQty,
		CurrentQty:       g.CurrentQty,
		CurrentUnitPrice: g.CurrentUnitPrice,
		ProgressPercent:  g.ProgressPercent(),
		Urgency:          string(g.Urgency(now)),
		NextTier:         nextTierResponse(g),
		Participants:     make([]PublicParticipantResponse, 0, len(g.Participants)),
		Status:           g.Status.String(),
		Deadline:         g.Deadline,
		ChatEnabled:      g.ChatEnabled,
	}
	for _, p := range g.Participants {
		resp.Participants = append(resp.Participants, PublicParticipantResponse{
			Name:     p.DisplayName(),
			Qty:      p.Qty,
			JoinedAt: p.JoinedAt,
		})
	}
	return resp
}

// ToActiveGroupOrderResponse converts an aggregate to a listing card
func ToActiveGroupOrderResponse(g *groupbuy.GroupOrder, now time.Time) ActiveGroupOrderResponse {
	return ActiveGroupOrderResponse{
		ID:               g.ID,
		Product:          productResponse(g.Product),
		TargetQty:        g.TargetQty,
		CurrentQty:       g.CurrentQty,
		CurrentUnitPrice: g.CurrentUnitPrice,
		ProgressPercent:  g.ProgressPercent(),
		Urgency:          string(g.Urgency(now)),
		NextTier:         nextTierResponse(g),
		Deadline:         g.Deadline,
	}
}

// ToChatMessageResponse converts a chat message
func ToChatMessageResponse(m groupbuy.ChatMessage) ChatMessageResponse {
	return ChatMessageResponse{
		ID:                  m.ID,
		GroupID:             m.GroupID,
		AuthorType:          string(m.AuthorType),
		AuthorParticipantID: m.AuthorParticipantID,
		AuthorName:          m.AuthorName,
		Text:                m.Text,
		CreatedAt:           m.CreatedAt,
	}
}

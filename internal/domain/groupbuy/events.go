package groupbuy

import (
	"time"

	"github.com/google/uuid"
	"github.com/groupbuy/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// AggregateTypeGroupOrder is the aggregate type for group order events
const AggregateTypeGroupOrder = "GroupOrder"

// Event type constants for group orders
const (
	EventTypeGroupOrderCreated         = "GroupOrderCreated"
	EventTypeGroupOrderStatusChanged   = "GroupOrderStatusChanged"
	EventTypeParticipantJoined         = "GroupOrderParticipantJoined"
	EventTypeParticipantLeft           = "GroupOrderParticipantLeft"
	EventTypeGroupOrderDeadlineChanged = "GroupOrderDeadlineExtended"
)

// GroupOrderCreatedEvent is raised when an operator creates a group or a
// client submits a proposal
type GroupOrderCreatedEvent struct {
	shared.BaseDomainEvent
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	Origin      Origin    `json:"origin"`
	Status      Status    `json:"status"`
	TargetQty   int       `json:"target_qty"`
	Deadline    time.Time `json:"deadline"`
}

// NewGroupOrderCreatedEvent creates a new GroupOrderCreatedEvent
func NewGroupOrderCreatedEvent(g *GroupOrder) *GroupOrderCreatedEvent {
	return &GroupOrderCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeGroupOrderCreated, AggregateTypeGroupOrder, g.ID),
		ProductID:       g.Product.ProductID,
		ProductName:     g.Product.Name,
		Origin:          g.Origin,
		Status:          g.Status,
		TargetQty:       g.TargetQty,
		Deadline:        g.Deadline,
	}
}

// EventType returns the event type name
func (e *GroupOrderCreatedEvent) EventType() string {
	return EventTypeGroupOrderCreated
}

// GroupOrderStatusChangedEvent is raised on every accepted state transition
type GroupOrderStatusChangedEvent struct {
	shared.BaseDomainEvent
	ProductName      string          `json:"product_name"`
	FromStatus       Status          `json:"from_status"`
	ToStatus         Status          `json:"to_status"`
	Reason           string          `json:"reason,omitempty"`
	CurrentQty       int             `json:"current_qty"`
	CurrentUnitPrice decimal.Decimal `json:"current_unit_price"`
	Currency         string          `json:"currency"`
}

// NewGroupOrderStatusChangedEvent creates a new GroupOrderStatusChangedEvent
func NewGroupOrderStatusChangedEvent(g *GroupOrder, from, to Status, reason string) *GroupOrderStatusChangedEvent {
	return &GroupOrderStatusChangedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypeGroupOrderStatusChanged, AggregateTypeGroupOrder, g.ID),
		ProductName:      g.Product.Name,
		FromStatus:       from,
		ToStatus:         to,
		Reason:           reason,
		CurrentQty:       g.CurrentQty,
		CurrentUnitPrice: g.CurrentUnitPrice,
		Currency:         string(g.Product.Currency),
	}
}

// EventType returns the event type name
func (e *GroupOrderStatusChangedEvent) EventType() string {
	return EventTypeGroupOrderStatusChanged
}

// ParticipantJoinedEvent is raised after a join commits
type ParticipantJoinedEvent struct {
	shared.BaseDomainEvent
	ParticipantID    uuid.UUID       `json:"participant_id"`
	Qty              int             `json:"qty"`
	CurrentQty       int             `json:"current_qty"`
	CurrentUnitPrice decimal.Decimal `json:"current_unit_price"`
}

// NewParticipantJoinedEvent creates a new ParticipantJoinedEvent
func NewParticipantJoinedEvent(g *GroupOrder, p *Participant) *ParticipantJoinedEvent {
	return &ParticipantJoinedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypeParticipantJoined, AggregateTypeGroupOrder, g.ID),
		ParticipantID:    p.ID,
		Qty:              p.Qty,
		CurrentQty:       g.CurrentQty,
		CurrentUnitPrice: g.CurrentUnitPrice,
	}
}

// EventType returns the event type name
func (e *ParticipantJoinedEvent) EventType() string {
	return EventTypeParticipantJoined
}

// ParticipantLeftEvent is raised after a leave commits
type ParticipantLeftEvent struct {
	shared.BaseDomainEvent
	ParticipantID    uuid.UUID       `json:"participant_id"`
	Qty              int             `json:"qty"`
	CurrentQty       int             `json:"current_qty"`
	CurrentUnitPrice decimal.Decimal `json:"current_unit_price"`
}

// NewParticipantLeftEvent creates a new ParticipantLeftEvent
func NewParticipantLeftEvent(g *GroupOrder, p *Participant) *ParticipantLeftEvent {
	return &ParticipantLeftEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypeParticipantLeft, AggregateTypeGroupOrder, g.ID),
		ParticipantID:    p.ID,
		Qty:              p.Qty,
		CurrentQty:       g.CurrentQty,
		CurrentUnitPrice: g.CurrentUnitPrice,
	}
}

// EventType returns the event type name
func (e *ParticipantLeftEvent) EventType() string {
	return EventTypeParticipantLeft
}

// DeadlineExtendedEvent is raised when an operator moves the deadline
type DeadlineExtendedEvent struct {
	shared.BaseDomainEvent
	PreviousDeadline time.Time `json:"previous_deadline"`
	NewDeadline      time.Time `json:"new_deadline"`
}

// NewDeadlineExtendedEvent creates a new DeadlineExtendedEvent
func NewDeadlineExtendedEvent(g *GroupOrder, previous time.Time) *DeadlineExtendedEvent {
	return &DeadlineExtendedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypeGroupOrderDeadlineChanged, AggregateTypeGroupOrder, g.ID),
		PreviousDeadline: previous,
		NewDeadline:      g.Deadline,
	}
}

// EventType returns the event type name
func (e *DeadlineExtendedEvent) EventType() string {
	return EventTypeGroupOrderDeadlineChanged
}

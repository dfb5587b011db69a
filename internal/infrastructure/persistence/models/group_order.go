package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/groupbuy/backend/internal/domain/groupbuy"
	"github.com/groupbuy/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// modelLogger resolves the global logger lazily so it sees the one installed at startup
func modelLogger() *zap.Logger {
	return zap.L().Named("groupbuy.models")
}

// GroupOrderModel is the persistence model for the GroupOrder aggregate root
type GroupOrderModel struct {
	AggregateModel
	ProductID           string                    `gorm:"type:varchar(100);not null;index"`
	ProductName         string                    `gorm:"type:varchar(200);not null"`
	ProductImageURL     string                    `gorm:"column:product_image_url;type:varchar(500)"`
	BasePrice           decimal.Decimal           `gorm:"type:decimal(18,4);not null"`
	Currency            string                    `gorm:"type:varchar(3);not null"`
	TiersJSON           string                    `gorm:"column:price_tiers;type:jsonb;not null;default:'[]'"`
	MinQty              int                       `gorm:"not null;default:0"`
	TargetQty           int                       `gorm:"not null"`
	CurrentQty          int                       `gorm:"not null;default:0"`
	CurrentUnitPrice    decimal.Decimal           `gorm:"type:decimal(18,4);not null"`
	Status              groupbuy.Status           `gorm:"type:varchar(30);not null;index"`
	Origin              groupbuy.Origin           `gorm:"type:varchar(20);not null"`
	ProposalMessage     string                    `gorm:"type:text"`
	ProposalDesiredQty  *int                      `gorm:""`
	ProposalSubmittedAt *time.Time                `gorm:""`
	ProposerUserID      *uuid.UUID                `gorm:"type:uuid"`
	ProposerName        string                    `gorm:"type:varchar(200)"`
	ProposerEmail       string                    `gorm:"type:varchar(200)"`
	Deadline            time.Time                 `gorm:"not null;index"`
	InternalNotes       string                    `gorm:"type:text"`
	ChatEnabled         bool                      `gorm:"not null"`
	CancelReason        string                    `gorm:"type:varchar(500)"`
	PublishedAt         *time.Time                `gorm:""`
	ApprovedAt          *time.Time                `gorm:""`
	FilledAt            *time.Time                `gorm:""`
	OrderingAt          *time.Time                `gorm:""`
	OrderedAt           *time.Time                `gorm:""`
	ShippedAt           *time.Time                `gorm:""`
	DeliveredAt         *time.Time                `gorm:""`
	CancelledAt         *time.Time                `gorm:""`
	Participants        []ParticipantModel        `gorm:"foreignKey:GroupID;references:ID"`
	Reminders           []GroupOrderReminderModel `gorm:"foreignKey:GroupID;references:ID"`
}

// TableName returns the table name for GORM
func (GroupOrderModel) TableName() string {
	return "group_orders"
}

type tierJSON struct {
	MinQty int             `json:"minQty"`
	Price  decimal.Decimal `json:"price"`
}

// ToDomain converts the persistence model to a domain GroupOrder
func (m *GroupOrderModel) ToDomain() *groupbuy.GroupOrder {
	g := &groupbuy.GroupOrder{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		Product: groupbuy.ProductSnapshot{
			ProductID: m.ProductID,
			Name:      m.ProductName,
			ImageURL:  m.ProductImageURL,
			BasePrice: m.BasePrice,
			Currency:  valueobject.Currency(m.Currency),
		},
		PriceTiers:       groupbuy.PriceTiers{},
		MinQty:           m.MinQty,
		TargetQty:        m.TargetQty,
		CurrentQty:       m.CurrentQty,
		CurrentUnitPrice: m.CurrentUnitPrice,
		Participants:     make([]*groupbuy.Participant, 0, len(m.Participants)),
		Status:           m.Status,
		Origin:           m.Origin,
		Deadline:         m.Deadline,
		InternalNotes:    m.InternalNotes,
		ChatEnabled:      m.ChatEnabled,
		RemindersSent:    make([]groupbuy.ReminderWindow, 0, len(m.Reminders)),
		CancelReason:     m.CancelReason,
		PublishedAt:      m.PublishedAt,
		ApprovedAt:       m.ApprovedAt,
		FilledAt:         m.FilledAt,
		OrderingAt:       m.OrderingAt,
		OrderedAt:        m.OrderedAt,
		ShippedAt:        m.ShippedAt,
		DeliveredAt:      m.DeliveredAt,
		CancelledAt:      m.CancelledAt,
	}

	if m.TiersJSON != "" && m.TiersJSON != "[]" {
		var tiers []tierJSON
		if err := json.Unmarshal([]byte(m.TiersJSON), &tiers); err != nil {
			modelLogger().Warn("failed to parse price_tiers JSON",
				zap.String("group_id", m.ID.String()),
				zap.String("raw_json", m.TiersJSON),
				zap.Error(err))
		} else {
			for _, t := range tiers {
				g.PriceTiers = append(g.PriceTiers, groupbuy.PriceTier{MinQty: t.MinQty, Price: t.Price})
			}
		}
	}

	if m.Origin == groupbuy.OriginClient {
		p := &groupbuy.Proposal{
			Message:        m.ProposalMessage,
			ProposerUserID: m.ProposerUserID,
			ProposerName:   m.ProposerName,
			ProposerEmail:  m.ProposerEmail,
		}
		if m.ProposalDesiredQty != nil {
			p.DesiredQty = *m.ProposalDesiredQty
		}
		if m.ProposalSubmittedAt != nil {
			p.SubmittedAt = *m.ProposalSubmittedAt
		}
		g.Proposal = p
	}

	for i := range m.Participants {
		g.Participants = append(g.Participants, m.Participants[i].ToDomain())
	}
	for _, r := range m.Reminders {
		g.RemindersSent = append(g.RemindersSent, groupbuy.ReminderWindow(r.Window))
	}
	return g
}

// FromDomain populates the model from a domain GroupOrder. Participants and
// reminders are persisted through their own tables.
func (m *GroupOrderModel) FromDomain(g *groupbuy.GroupOrder) {
	m.FromDomainAggregateRoot(g.BaseAggregateRoot)
	m.ProductID = g.Product.ProductID
	m.ProductName = g.Product.Name
	m.ProductImageURL = g.Product.ImageURL
	m.BasePrice = g.Product.BasePrice
	m.Currency = string(g.Product.Currency)
	m.TiersJSON = MarshalTiers(g.PriceTiers)
	m.MinQty = g.MinQty
	m.TargetQty = g.TargetQty
	m.CurrentQty = g.CurrentQty
	m.CurrentUnitPrice = g.CurrentUnitPrice
	m.Status = g.Status
	m.Origin = g.Origin
	m.Deadline = g.Deadline
	m.InternalNotes = g.InternalNotes
	m.ChatEnabled = g.ChatEnabled
	m.CancelReason = g.CancelReason
	m.PublishedAt = g.PublishedAt
	m.ApprovedAt = g.ApprovedAt
	m.FilledAt = g.FilledAt
	m.OrderingAt = g.OrderingAt
	m.OrderedAt = g.OrderedAt
	m.ShippedAt = g.ShippedAt
	m.DeliveredAt = g.DeliveredAt
	m.CancelledAt = g.CancelledAt

	if p := g.Proposal; p != nil {
		desired := p.DesiredQty
		submitted := p.SubmittedAt
		m.ProposalMessage = p.Message
		m.ProposalDesiredQty = &desired
		m.ProposalSubmittedAt = &submitted
		m.ProposerUserID = p.ProposerUserID
		m.ProposerName = p.ProposerName
		m.ProposerEmail = p.ProposerEmail
	}
}

// GroupOrderModelFromDomain creates a new GroupOrderModel from a domain GroupOrder
func GroupOrderModelFromDomain(g *groupbuy.GroupOrder) *GroupOrderModel {
	m := &GroupOrderModel{}
	m.FromDomain(g)
	return m
}

// MarshalTiers renders a tier table for the price_tiers column, kept sorted
func MarshalTiers(tiers groupbuy.PriceTiers) string {
	out := make([]tierJSON, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, tierJSON{MinQty: t.MinQty, Price: t.Price})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// ParticipantModel is one row of a group order's participant ledger
type ParticipantModel struct {
	BaseModel
	GroupID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	UserID      *uuid.UUID      `gorm:"type:uuid;index"`
	Name        string          `gorm:"type:varchar(200);not null"`
	Email       string          `gorm:"type:varchar(200)"`
	Phone       string          `gorm:"type:varchar(50)"`
	Qty         int             `gorm:"not null"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	JoinedAt    time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ParticipantModel) TableName() string {
	return "group_order_participants"
}

// ToDomain converts the row to a domain Participant
func (m *ParticipantModel) ToDomain() *groupbuy.Participant {
	return &groupbuy.Participant{
		ID:          m.ID,
		GroupID:     m.GroupID,
		UserID:      m.UserID,
		Name:        m.Name,
		Email:       m.Email,
		Phone:       m.Phone,
		Qty:         m.Qty,
		UnitPrice:   m.UnitPrice,
		TotalAmount: m.TotalAmount,
		JoinedAt:    m.JoinedAt,
	}
}

// ParticipantModelFromDomain creates a row from a domain Participant
func ParticipantModelFromDomain(p *groupbuy.Participant, now time.Time) *ParticipantModel {
	return &ParticipantModel{
		BaseModel:   BaseModel{ID: p.ID, CreatedAt: now, UpdatedAt: now},
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

// GroupOrderReminderModel records one reminder window fired for a group.
// The composite primary key makes a second claim of the same window a no-op.
type GroupOrderReminderModel struct {
	GroupID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Window  string    `gorm:"column:reminder_window;type:varchar(10);primaryKey"`
	SentAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (GroupOrderReminderModel) TableName() string {
	return "group_order_reminders"
}

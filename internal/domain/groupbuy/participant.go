package groupbuy

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/groupbuy/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Participant is one ledger entry of a group order
type Participant struct {
	ID          uuid.UUID
	GroupID     uuid.UUID
	UserID      *uuid.UUID // nil for guests
	Name        string
	Email       string
	Phone       string
	Qty         int
	UnitPrice   decimal.Decimal // price in effect when the entry was last settled
	TotalAmount decimal.Decimal
	JoinedAt    time.Time
}

// ParticipantInput carries the contact details of someone joining
type ParticipantInput struct {
	UserID *uuid.UUID
	Name   string
	Email  string
	Phone  string
	Qty    int
}

// NewParticipant validates input and builds an unsettled ledger entry
func NewParticipant(groupID uuid.UUID, in ParticipantInput, now time.Time) (*Participant, error) {
	if in.Qty <= 0 {
		return nil, shared.NewValidationError("quantity must be greater than zero")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, shared.NewValidationError("participant name is required")
	}
	email := strings.TrimSpace(in.Email)
	phone := strings.TrimSpace(in.Phone)
	if email == "" && phone == "" {
		return nil, shared.NewValidationError("an email address or phone number is required")
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, shared.NewValidationError("email address is invalid")
		}
	}
	return &Participant{
		ID:          uuid.New(),
		GroupID:     groupID,
		UserID:      in.UserID,
		Name:        name,
		Email:       strings.ToLower(email),
		Phone:       phone,
		Qty:         in.Qty,
		UnitPrice:   decimal.Zero,
		TotalAmount: decimal.Zero,
		JoinedAt:    now,
	}, nil
}

// Settle fixes the entry's unit price and total. Returns true if anything changed.
func (p *Participant) Settle(price decimal.Decimal) bool {
	total := price.Mul(decimal.NewFromInt(int64(p.Qty)))
	if p.UnitPrice.Equal(price) && p.TotalAmount.Equal(total) {
		return false
	}
	p.UnitPrice = price
	p.TotalAmount = total
	return true
}

// DisplayName returns the name shown to other buyers: first name plus initial
func (p *Participant) DisplayName() string {
	fields := strings.Fields(p.Name)
	if len(fields) == 0 {
		return ""
	}
	if len(fields) == 1 {
		return fields[0]
	}
	last := []rune(fields[len(fields)-1])
	return fields[0] + " " + string(last[0]) + "."
}

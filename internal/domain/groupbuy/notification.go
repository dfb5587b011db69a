package groupbuy

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Recipient is a participant contact a notification is addressed to
type Recipient struct {
	ParticipantID uuid.UUID
	Name          string
	Email         string
	Phone         string
	Qty           int
	UnitPrice     decimal.Decimal
}

// Reminder tells participants the deadline is approaching
type Reminder struct {
	GroupID          uuid.UUID
	ProductName      string
	Window           ReminderWindow
	Deadline         time.Time
	CurrentQty       int
	TargetQty        int
	CurrentUnitPrice decimal.Decimal
	Currency         string
	Recipients       []Recipient
}

// StatusChange tells participants the group moved to a new status
type StatusChange struct {
	GroupID     uuid.UUID
	ProductName string
	From        Status
	To          Status
	Reason      string
	Recipients  []Recipient
}

// Dispatcher delivers notifications over email or SMS. Delivery itself is
// owned by an external service.
type Dispatcher interface {
	SendReminder(ctx context.Context, r Reminder) error
	SendStatusChange(ctx context.Context, c StatusChange) error
}

// RecipientsOf builds the recipient list of a group's ledger
func RecipientsOf(g *GroupOrder) []Recipient {
	out := make([]Recipient, 0, len(g.Participants))
	for _, p := range g.Participants {
		out = append(out, Recipient{
			ParticipantID: p.ID,
			Name:          p.Name,
			Email:         p.Email,
			Phone:         p.Phone,
			Qty:           p.Qty,
			UnitPrice:     p.UnitPrice,
		})
	}
	return out
}

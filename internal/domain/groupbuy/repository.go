package groupbuy

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/groupbuy/backend/internal/domain/shared"
)

// ActiveQuery selects the public listing of open groups
type ActiveQuery struct {
	Limit            int
	ExcludeProductID string
	Now              time.Time
}

// JoinCommand is an atomic ledger append
type JoinCommand struct {
	GroupID     uuid.UUID
	Participant *Participant
	Mode        JoinMode
	Policy      PricingPolicy
	Now         time.Time
}

// LeaveCommand is an atomic ledger removal
type LeaveCommand struct {
	GroupID       uuid.UUID
	ParticipantID uuid.UUID
	Policy        PricingPolicy
	Now           time.Time
}

// LedgerChange is the committed result of a join or leave. Group carries the
// domain events raised while settling.
type LedgerChange struct {
	Group       *GroupOrder
	Participant *Participant
	Repriced    []*Participant
}

// GroupOrderRepository persists group orders and their participant ledger
type GroupOrderRepository interface {
	// FindByID loads a group order with its participants and reminder log
	FindByID(ctx context.Context, id uuid.UUID) (*GroupOrder, error)

	// FindActive returns open, not yet expired groups ordered by committed
	// quantity descending then deadline ascending
	FindActive(ctx context.Context, q ActiveQuery) ([]*GroupOrder, error)

	// FindPendingProposals returns client proposals awaiting approval
	FindPendingProposals(ctx context.Context, filter shared.Filter) ([]*GroupOrder, int64, error)

	// FindAll lists group orders for operators; statuses narrows the result when non-empty
	FindAll(ctx context.Context, filter shared.Filter, statuses ...Status) ([]*GroupOrder, int64, error)

	// FindOpenIDs returns ids of every open group, oldest deadline first
	FindOpenIDs(ctx context.Context) ([]uuid.UUID, error)

	// Create inserts a new group order
	Create(ctx context.Context, g *GroupOrder) error

	// Save writes operator-owned fields with optimistic locking on Version.
	// Participant prices in repriced are written in the same transaction.
	// The ledger counters are never written here.
	Save(ctx context.Context, g *GroupOrder, repriced ...*Participant) error

	// Join appends a participant and increments the committed quantity in
	// one transaction guarded on the group's status
	Join(ctx context.Context, cmd JoinCommand) (*LedgerChange, error)

	// Leave removes a participant and decrements the committed quantity in
	// one transaction guarded on the group's status
	Leave(ctx context.Context, cmd LeaveCommand) (*LedgerChange, error)

	// FindParticipant loads one ledger entry of a group
	FindParticipant(ctx context.Context, groupID, participantID uuid.UUID) (*Participant, error)
}

// ReminderLog records which reminder windows already fired for a group
type ReminderLog interface {
	// Claim records window for group. Returns false if it was already recorded.
	Claim(ctx context.Context, groupID uuid.UUID, window ReminderWindow, at time.Time) (bool, error)

	// Release removes a claim so a later sweep can retry the window
	Release(ctx context.Context, groupID uuid.UUID, window ReminderWindow) error
}

// ChatMessageRepository stores chat messages
type ChatMessageRepository interface {
	// Append stores a new message
	Append(ctx context.Context, msg *ChatMessage) error

	// ListSince returns up to limit messages of group created at or after
	// since, ordered by creation time then id
	ListSince(ctx context.Context, groupID uuid.UUID, since time.Time, limit int) ([]ChatMessage, error)

	// ListRecent returns the newest limit messages of group in ascending order
	ListRecent(ctx context.Context, groupID uuid.UUID, limit int) ([]ChatMessage, error)
}

// ProductCatalog is the read-only view of the product catalog
type ProductCatalog interface {
	// GetProduct returns the current snapshot of a product
	GetProduct(ctx context.Context, productID string) (*ProductSnapshot, error)
}

package groupbuy

import (
	"fmt"

	"github.com/groupbuy/backend/internal/domain/shared"
)

// Status is the lifecycle state of a group order
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusOpen            Status = "open"
	StatusFilled          Status = "filled"
	StatusOrdering        Status = "ordering"
	StatusOrdered         Status = "ordered"
	StatusShipped         Status = "shipped"
	StatusDelivered       Status = "delivered"
	StatusCancelled       Status = "cancelled"
)

// AllStatuses lists every status in lifecycle order
var AllStatuses = []Status{
	StatusDraft,
	StatusPendingApproval,
	StatusOpen,
	StatusFilled,
	StatusOrdering,
	StatusOrdered,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
}

// ParseStatus converts a raw string into a Status
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.IsValid() {
		return "", shared.NewValidationError(fmt.Sprintf("unknown group order status %q", raw))
	}
	return s, nil
}

// IsValid checks if the status is a known Status
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPendingApproval, StatusOpen, StatusFilled, StatusOrdering,
		StatusOrdered, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransitionTo checks if the status can move to target. Forward edges never
// skip a state; cancellation is reachable from every non-terminal state.
func (s Status) CanTransitionTo(target Status) bool {
	if target == StatusCancelled {
		return s.IsValid() && !s.IsTerminal()
	}
	switch s {
	case StatusDraft:
		return target == StatusOpen
	case StatusPendingApproval:
		return target == StatusOpen
	case StatusOpen:
		return target == StatusFilled
	case StatusFilled:
		return target == StatusOrdering
	case StatusOrdering:
		return target == StatusOrdered
	case StatusOrdered:
		return target == StatusShipped
	case StatusShipped:
		return target == StatusDelivered
	case StatusDelivered, StatusCancelled:
		return false // Terminal states
	}
	return false
}

// AcceptsParticipants reports whether the ledger may change in this status.
// Operator seeding is additionally allowed while a proposal awaits approval.
func (s Status) AcceptsParticipants(mode JoinMode) bool {
	switch s {
	case StatusOpen:
		return true
	case StatusPendingApproval:
		return mode == JoinModeSeeding
	}
	return false
}

// JoinableStatuses returns the statuses in which a join in mode may commit
func JoinableStatuses(mode JoinMode) []Status {
	if mode == JoinModeSeeding {
		return []Status{StatusOpen, StatusPendingApproval}
	}
	return []Status{StatusOpen}
}

// LeavableStatuses returns the statuses in which a participant may leave
func LeavableStatuses() []Status {
	return []Status{StatusOpen, StatusPendingApproval}
}

// JoinMode distinguishes public joins from operator seeding
type JoinMode int

const (
	JoinModePublic JoinMode = iota
	JoinModeSeeding
)

func newTransitionError(from, to Status) error {
	return shared.NewDomainError(shared.CodeInvalidTransition,
		fmt.Sprintf("cannot move group order from %s to %s", from, to))
}

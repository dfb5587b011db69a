package groupbuy

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/groupbuy/backend/internal/domain/shared"
	"github.com/groupbuy/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Origin records who started the negotiation
type Origin string

const (
	OriginAdmin  Origin = "admin"
	OriginClient Origin = "client"
)

// Urgency classifies an open group for the public listing
type Urgency string

const (
	UrgencyActive     Urgency = "active"
	UrgencyAlmostFull Urgency = "almost_full"
	UrgencyEndingSoon Urgency = "ending_soon"
)

const (
	// AlmostFullPercent is the progress at which a group counts as almost full
	AlmostFullPercent = 80
	// EndingSoonWindow is the time left under which a group is ending soon
	EndingSoonWindow = 24 * time.Hour
	// DefaultProposalDuration is the provisional deadline of a client proposal
	DefaultProposalDuration = 14 * 24 * time.Hour
	// ExpiryNote is recorded when the sweeper cancels a group past its deadline
	ExpiryNote = "expired: deadline passed"

	maxNoteLength     = 2000
	maxProposalLength = 2000
)

// ProductSnapshot is the catalog data frozen into a group order at creation
type ProductSnapshot struct {
	ProductID string
	Name      string
	ImageURL  string
	BasePrice decimal.Decimal
	Currency  valueobject.Currency
}

// Validate checks the snapshot carries what pricing needs
func (p ProductSnapshot) Validate() error {
	if strings.TrimSpace(p.ProductID) == "" {
		return shared.NewValidationError("product id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return shared.NewValidationError("product name is required")
	}
	if !p.BasePrice.IsPositive() {
		return shared.NewValidationError("product base price must be positive")
	}
	if p.Currency == "" {
		return shared.NewValidationError("product currency is required")
	}
	return nil
}

// Proposal is the client's request that started a client-origin group
type Proposal struct {
	Message        string
	DesiredQty     int
	SubmittedAt    time.Time
	ProposerUserID *uuid.UUID
	ProposerName   string
	ProposerEmail  string
}

// GroupOrder is the aggregate root of one collective purchase negotiation
type GroupOrder struct {
	shared.BaseAggregateRoot
	Product          ProductSnapshot
	PriceTiers       PriceTiers
	MinQty           int // smallest quantity a single join may commit
	TargetQty        int
	CurrentQty       int
	CurrentUnitPrice decimal.Decimal
	Participants     []*Participant
	Status           Status
	Origin           Origin
	Proposal         *Proposal
	Deadline         time.Time
	InternalNotes    string
	ChatEnabled      bool
	RemindersSent    []ReminderWindow
	CancelReason     string
	PublishedAt      *time.Time
	ApprovedAt       *time.Time
	FilledAt         *time.Time
	OrderingAt       *time.Time
	OrderedAt        *time.Time
	ShippedAt        *time.Time
	DeliveredAt      *time.Time
	CancelledAt      *time.Time
}

// CreateInput describes an operator-created group order
type CreateInput struct {
	Product       ProductSnapshot
	Tiers         []PriceTier
	MinQty        int
	TargetQty     int
	Deadline      time.Time
	AsDraft       bool
	InternalNotes string
}

// NewGroupOrder creates an operator group order, open unless AsDraft is set
func NewGroupOrder(in CreateInput, now time.Time) (*GroupOrder, error) {
	if err := in.Product.Validate(); err != nil {
		return nil, err
	}
	tiers, err := NewPriceTiers(in.Tiers, in.Product.BasePrice)
	if err != nil {
		return nil, err
	}
	if err := validateQuantities(in.MinQty, in.TargetQty); err != nil {
		return nil, err
	}
	if !in.Deadline.After(now) {
		return nil, shared.NewValidationError("deadline must be in the future")
	}

	g := &GroupOrder{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Product:           in.Product,
		PriceTiers:        tiers,
		MinQty:            in.MinQty,
		TargetQty:         in.TargetQty,
		CurrentUnitPrice:  tiers.Resolve(0, in.Product.BasePrice),
		Participants:      make([]*Participant, 0),
		Status:            StatusOpen,
		Origin:            OriginAdmin,
		Deadline:          in.Deadline,
		ChatEnabled:       true,
	}
	g.CreatedAt, g.UpdatedAt = now, now
	if in.AsDraft {
		g.Status = StatusDraft
	} else {
		g.PublishedAt = &now
	}
	if note := strings.TrimSpace(in.InternalNotes); note != "" {
		g.AppendNote(note, now)
	}

	g.AddDomainEvent(NewGroupOrderCreatedEvent(g))
	return g, nil
}

// ProposalInput describes a client proposal for a new group
type ProposalInput struct {
	Product        ProductSnapshot
	DesiredQty     int
	Message        string
	ProposerUserID *uuid.UUID
	ProposerName   string
	ProposerEmail  string
}

// NewProposal creates a client-origin group awaiting operator approval. The
// target starts at the desired quantity and the deadline is provisional until
// approval.
func NewProposal(in ProposalInput, now time.Time) (*GroupOrder, error) {
	if err := in.Product.Validate(); err != nil {
		return nil, err
	}
	if in.DesiredQty <= 0 {
		return nil, shared.NewValidationError("desired quantity must be greater than zero")
	}
	if strings.TrimSpace(in.ProposerName) == "" {
		return nil, shared.NewValidationError("proposer name is required")
	}
	if strings.TrimSpace(in.ProposerEmail) == "" {
		return nil, shared.NewValidationError("proposer email is required")
	}
	if utf8.RuneCountInString(in.Message) > maxProposalLength {
		return nil, shared.NewValidationError(fmt.Sprintf("proposal message exceeds %d characters", maxProposalLength))
	}

	g := &GroupOrder{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Product:           in.Product,
		PriceTiers:        PriceTiers{},
		TargetQty:         in.DesiredQty,
		CurrentUnitPrice:  in.Product.BasePrice,
		Participants:      make([]*Participant, 0),
		Status:            StatusPendingApproval,
		Origin:            OriginClient,
		Proposal: &Proposal{
			Message:        strings.TrimSpace(in.Message),
			DesiredQty:     in.DesiredQty,
			SubmittedAt:    now,
			ProposerUserID: in.ProposerUserID,
			ProposerName:   strings.TrimSpace(in.ProposerName),
			ProposerEmail:  strings.ToLower(strings.TrimSpace(in.ProposerEmail)),
		},
		Deadline:    now.Add(DefaultProposalDuration),
		ChatEnabled: true,
	}
	g.CreatedAt, g.UpdatedAt = now, now

	g.AddDomainEvent(NewGroupOrderCreatedEvent(g))
	return g, nil
}

func validateQuantities(minQty, targetQty int) error {
	if targetQty <= 0 {
		return shared.NewValidationError("target quantity must be greater than zero")
	}
	if minQty < 0 {
		return shared.NewValidationError("minimum quantity cannot be negative")
	}
	if minQty > targetQty {
		return shared.NewValidationError("minimum quantity cannot exceed target quantity")
	}
	return nil
}

// ==================== State transitions ====================

// Publish opens a draft group for participants
func (g *GroupOrder) Publish(now time.Time) error {
	if g.Status == StatusDraft && !g.Deadline.After(now) {
		return shared.NewValidationError("deadline must be in the future to publish")
	}
	return g.transition(StatusOpen, "", now)
}

// ApproveInput carries the terms an operator sets when approving a proposal
type ApproveInput struct {
	Deadline  *time.Time
	Tiers     []PriceTier // nil keeps the current table
	TargetQty *int
	MinQty    *int
}

// Approve opens a client proposal. Returns participants whose price changed.
func (g *GroupOrder) Approve(in ApproveInput, policy PricingPolicy, now time.Time) ([]*Participant, error) {
	if g.Status != StatusPendingApproval {
		return nil, newTransitionError(g.Status, StatusOpen)
	}

	tiers := g.PriceTiers
	if in.Tiers != nil {
		parsed, err := NewPriceTiers(in.Tiers, g.Product.BasePrice)
		if err != nil {
			return nil, err
		}
		tiers = parsed
	}
	target, minQty := g.TargetQty, g.MinQty
	if in.TargetQty != nil {
		target = *in.TargetQty
	}
	if in.MinQty != nil {
		minQty = *in.MinQty
	}
	if err := validateQuantities(minQty, target); err != nil {
		return nil, err
	}
	deadline := g.Deadline
	if in.Deadline != nil {
		deadline = *in.Deadline
	}
	if !deadline.After(now) {
		return nil, shared.NewValidationError("deadline must be in the future")
	}

	g.PriceTiers, g.TargetQty, g.MinQty, g.Deadline = tiers, target, minQty, deadline
	if err := g.transition(StatusOpen, "", now); err != nil {
		return nil, err
	}
	g.ApprovedAt = &now

	changed := g.reprice(policy, uuid.Nil)
	g.checkFilled(now)
	return changed, nil
}

// Reject declines a client proposal
func (g *GroupOrder) Reject(reason string, now time.Time) error {
	if g.Status != StatusPendingApproval {
		return newTransitionError(g.Status, StatusCancelled)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "proposal rejected"
	}
	return g.cancel(reason, now)
}

// BeginOrdering marks that the operator is placing the bulk order
func (g *GroupOrder) BeginOrdering(now time.Time) error {
	return g.transition(StatusOrdering, "", now)
}

// ConfirmOrdered marks the bulk order as placed with the supplier
func (g *GroupOrder) ConfirmOrdered(now time.Time) error {
	return g.transition(StatusOrdered, "", now)
}

// Ship marks the order as shipped
func (g *GroupOrder) Ship(now time.Time) error {
	return g.transition(StatusShipped, "", now)
}

// Deliver marks the order as delivered
func (g *GroupOrder) Deliver(now time.Time) error {
	return g.transition(StatusDelivered, "", now)
}

// Cancel is the operator's manual cancellation, valid from any non-terminal state
func (g *GroupOrder) Cancel(reason string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "cancelled by operator"
	}
	return g.cancel(reason, now)
}

// Expire cancels an open group whose deadline has passed. It reports whether
// the group was expired; a group that is not due is left untouched.
func (g *GroupOrder) Expire(now time.Time) (bool, error) {
	if g.Status != StatusOpen || !g.IsPastDeadline(now) {
		return false, nil
	}
	if err := g.cancel(ExpiryNote, now); err != nil {
		return false, err
	}
	return true, nil
}

func (g *GroupOrder) cancel(reason string, now time.Time) error {
	if err := g.transition(StatusCancelled, reason, now); err != nil {
		return err
	}
	g.CancelReason = reason
	g.AppendNote(reason, now)
	return nil
}

func (g *GroupOrder) transition(target Status, reason string, now time.Time) error {
	if !g.Status.CanTransitionTo(target) {
		return newTransitionError(g.Status, target)
	}
	from := g.Status
	g.Status = target
	g.UpdatedAt = now

	switch target {
	case StatusOpen:
		g.PublishedAt = &now
	case StatusFilled:
		g.FilledAt = &now
	case StatusOrdering:
		g.OrderingAt = &now
	case StatusOrdered:
		g.OrderedAt = &now
	case StatusShipped:
		g.ShippedAt = &now
	case StatusDelivered:
		g.DeliveredAt = &now
	case StatusCancelled:
		g.CancelledAt = &now
	}

	g.AddDomainEvent(NewGroupOrderStatusChangedEvent(g, from, target, reason))
	return nil
}

func (g *GroupOrder) checkFilled(now time.Time) {
	if g.Status == StatusOpen && g.CurrentQty >= g.TargetQty {
		// open -> filled is always legal
		_ = g.transition(StatusFilled, "target quantity reached", now)
	}
}

// ==================== Deadline and notes ====================

// ExtendDeadline moves the deadline later. Only operators call this; normal
// participant activity never touches the deadline.
func (g *GroupOrder) ExtendDeadline(deadline time.Time, now time.Time) error {
	switch g.Status {
	case StatusDraft, StatusPendingApproval, StatusOpen:
	default:
		return shared.NewDomainError(shared.CodeInvalidTransition,
			fmt.Sprintf("cannot extend the deadline of a group order in %s status", g.Status))
	}
	if !deadline.After(now) {
		return shared.NewValidationError("deadline must be in the future")
	}
	if !deadline.After(g.Deadline) {
		return shared.NewValidationError("new deadline must be later than the current deadline")
	}
	previous := g.Deadline
	g.Deadline = deadline
	g.UpdatedAt = now
	g.AppendNote(fmt.Sprintf("deadline extended from %s to %s",
		previous.UTC().Format(time.RFC3339), deadline.UTC().Format(time.RFC3339)), now)
	g.AddDomainEvent(NewDeadlineExtendedEvent(g, previous))
	return nil
}

// AppendNote adds a timestamped line to the internal notes
func (g *GroupOrder) AppendNote(note string, now time.Time) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	if utf8.RuneCountInString(note) > maxNoteLength {
		note = string([]rune(note)[:maxNoteLength])
	}
	line := fmt.Sprintf("[%s] %s", now.UTC().Format(time.RFC3339), note)
	if g.InternalNotes == "" {
		g.InternalNotes = line
	} else {
		g.InternalNotes += "\n" + line
	}
	g.UpdatedAt = now
}

// SetChatEnabled toggles the group's chat channel for participants
func (g *GroupOrder) SetChatEnabled(enabled bool, now time.Time) {
	g.ChatEnabled = enabled
	g.UpdatedAt = now
}

// ==================== Participant ledger ====================

// CheckJoinable returns the typed error a join in mode would fail with, or nil
func (g *GroupOrder) CheckJoinable(mode JoinMode, now time.Time) error {
	if !g.Status.AcceptsParticipants(mode) {
		return shared.NewDomainError(shared.CodeInvalidTransition,
			fmt.Sprintf("cannot join group order in %s status", g.Status))
	}
	if mode == JoinModePublic && g.IsPastDeadline(now) {
		return shared.NewDomainError(shared.CodeInvalidTransition, "cannot join group order after its deadline")
	}
	return nil
}

// CheckLeavable returns the typed error a leave would fail with, or nil
func (g *GroupOrder) CheckLeavable() error {
	for _, s := range LeavableStatuses() {
		if g.Status == s {
			return nil
		}
	}
	return shared.NewDomainError(shared.CodeInvalidTransition,
		fmt.Sprintf("cannot leave group order in %s status", g.Status))
}

// ValidateJoinQty checks qty against the group's per-join minimum
func (g *GroupOrder) ValidateJoinQty(qty int) error {
	if qty <= 0 {
		return shared.NewValidationError("quantity must be greater than zero")
	}
	if g.MinQty > 0 && qty < g.MinQty {
		return shared.NewValidationError(fmt.Sprintf("quantity must be at least %d", g.MinQty))
	}
	return nil
}

// Join appends p to the ledger in memory and settles it. Storage layers
// apply the increment atomically and call SettleJoin instead.
func (g *GroupOrder) Join(p *Participant, mode JoinMode, policy PricingPolicy, now time.Time) ([]*Participant, error) {
	if err := g.CheckJoinable(mode, now); err != nil {
		return nil, err
	}
	if err := g.ValidateJoinQty(p.Qty); err != nil {
		return nil, err
	}
	p.GroupID = g.ID
	g.Participants = append(g.Participants, p)
	g.CurrentQty += p.Qty
	return g.SettleJoin(p, policy, now), nil
}

// SettleJoin finishes a join whose ledger entry and quantity increment are
// already reflected in g: it re-resolves the tier price, re-rates entries
// per policy and fills the group when the target is reached. Returns the
// entries whose price changed.
func (g *GroupOrder) SettleJoin(p *Participant, policy PricingPolicy, now time.Time) []*Participant {
	changed := g.reprice(policy, p.ID)
	g.UpdatedAt = now
	g.AddDomainEvent(NewParticipantJoinedEvent(g, p))
	g.checkFilled(now)
	return changed
}

// Leave removes a participant from the ledger in memory
func (g *GroupOrder) Leave(participantID uuid.UUID, policy PricingPolicy, now time.Time) (*Participant, []*Participant, error) {
	if err := g.CheckLeavable(); err != nil {
		return nil, nil, err
	}
	idx := -1
	for i, p := range g.Participants {
		if p.ID == participantID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil, shared.NewNotFoundError("participant not found in this group order")
	}
	removed := g.Participants[idx]
	g.Participants = append(g.Participants[:idx], g.Participants[idx+1:]...)
	g.CurrentQty -= removed.Qty
	return removed, g.SettleLeave(removed, policy, now), nil
}

// SettleLeave is the leave counterpart of SettleJoin
func (g *GroupOrder) SettleLeave(removed *Participant, policy PricingPolicy, now time.Time) []*Participant {
	changed := g.reprice(policy, uuid.Nil)
	g.UpdatedAt = now
	g.AddDomainEvent(NewParticipantLeftEvent(g, removed))
	return changed
}

func (g *GroupOrder) reprice(policy PricingPolicy, joined uuid.UUID) []*Participant {
	g.CurrentUnitPrice = g.PriceTiers.Resolve(g.CurrentQty, g.Product.BasePrice)
	return policy.Apply(g.Participants, g.CurrentUnitPrice, joined)
}

// FindParticipant returns the ledger entry with id
func (g *GroupOrder) FindParticipant(id uuid.UUID) (*Participant, bool) {
	for _, p := range g.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// VerifyLedger checks that the counters agree with the loaded ledger
func (g *GroupOrder) VerifyLedger() error {
	sum := 0
	for _, p := range g.Participants {
		sum += p.Qty
	}
	if sum != g.CurrentQty {
		return fmt.Errorf("group order %s: current qty %d does not match ledger sum %d", g.ID, g.CurrentQty, sum)
	}
	want := g.PriceTiers.Resolve(g.CurrentQty, g.Product.BasePrice)
	if !want.Equal(g.CurrentUnitPrice) {
		return fmt.Errorf("group order %s: unit price %s does not match tier price %s", g.ID, g.CurrentUnitPrice, want)
	}
	return nil
}

// ==================== Derived views ====================

// IsPastDeadline reports whether now is strictly after the deadline
func (g *GroupOrder) IsPastDeadline(now time.Time) bool {
	return now.After(g.Deadline)
}

// ProgressPercent is committed quantity over target, capped at 100
func (g *GroupOrder) ProgressPercent() int {
	if g.TargetQty <= 0 {
		return 0
	}
	pct := g.CurrentQty * 100 / g.TargetQty
	if pct > 100 {
		return 100
	}
	return pct
}

// Urgency classifies the group for the public listing. Time pressure wins
// over fill progress.
func (g *GroupOrder) Urgency(now time.Time) Urgency {
	if g.Deadline.Sub(now) < EndingSoonWindow {
		return UrgencyEndingSoon
	}
	if g.ProgressPercent() >= AlmostFullPercent {
		return UrgencyAlmostFull
	}
	return UrgencyActive
}

// UnitsToNextTier returns the next tier and how many more units unlock it
func (g *GroupOrder) UnitsToNextTier() (PriceTier, int, bool) {
	next, ok := g.PriceTiers.NextTier(g.CurrentQty)
	if !ok {
		return PriceTier{}, 0, false
	}
	return next, next.MinQty - g.CurrentQty, true
}

// HasReminderBeenSent reports whether window already fired for this group
func (g *GroupOrder) HasReminderBeenSent(w ReminderWindow) bool {
	for _, sent := range g.RemindersSent {
		if sent == w {
			return true
		}
	}
	return false
}

// MarkReminderSent records that window fired
func (g *GroupOrder) MarkReminderSent(w ReminderWindow) {
	if !g.HasReminderBeenSent(w) {
		g.RemindersSent = append(g.RemindersSent, w)
	}
}

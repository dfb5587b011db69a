package groupbuy

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/groupbuy/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PricingPolicy decides what happens to already-settled participants when
// the group's tier price moves.
type PricingPolicy string

const (
	// PricingBestTierForAll re-rates every participant to the current tier
	// price whenever the ledger changes. Early buyers get the volume reward.
	PricingBestTierForAll PricingPolicy = "best_tier_for_all"
	// PricingLockAtJoin keeps the price in effect when each join committed.
	PricingLockAtJoin PricingPolicy = "lock_at_join"
)

// DefaultPricingPolicy is applied when configuration does not choose one
const DefaultPricingPolicy = PricingBestTierForAll

// ParsePricingPolicy validates a configured policy name
func ParsePricingPolicy(raw string) (PricingPolicy, error) {
	switch PricingPolicy(raw) {
	case "":
		return DefaultPricingPolicy, nil
	case PricingBestTierForAll, PricingLockAtJoin:
		return PricingPolicy(raw), nil
	}
	return "", shared.NewValidationError(fmt.Sprintf("unknown pricing policy %q", raw))
}

// Apply settles participants at price according to the policy. joined is
// the entry that just committed (uuid.Nil for leaves and tier edits); under
// lock_at_join only that entry, plus any never-settled entry, is priced.
// Returns the entries whose price or total changed.
func (p PricingPolicy) Apply(participants []*Participant, price decimal.Decimal, joined uuid.UUID) []*Participant {
	changed := make([]*Participant, 0, len(participants))
	for _, part := range participants {
		if p == PricingLockAtJoin && part.ID != joined && !part.UnitPrice.IsZero() {
			continue
		}
		if part.Settle(price) {
			changed = append(changed, part)
		}
	}
	return changed
}

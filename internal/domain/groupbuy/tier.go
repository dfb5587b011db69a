package groupbuy

import (
	"fmt"
	"sort"

	"github.com/groupbuy/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// MaxPriceTiers bounds the tier table; resolution is a linear scan
const MaxPriceTiers = 10

// PriceTier is a volume price rule: once the committed quantity reaches
// MinQty, every unit costs Price.
type PriceTier struct {
	MinQty int             `json:"minQty"`
	Price  decimal.Decimal `json:"price"`
}

// PriceTiers is a tier table ordered ascending by MinQty
type PriceTiers []PriceTier

// NewPriceTiers sorts the input and validates it against the base price
func NewPriceTiers(tiers []PriceTier, basePrice decimal.Decimal) (PriceTiers, error) {
	sorted := make(PriceTiers, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinQty < sorted[j].MinQty })
	if err := sorted.Validate(basePrice); err != nil {
		return nil, err
	}
	return sorted, nil
}

// Validate checks ordering, uniqueness and that prices reward volume
func (t PriceTiers) Validate(basePrice decimal.Decimal) error {
	if len(t) > MaxPriceTiers {
		return shared.NewValidationError(fmt.Sprintf("at most %d price tiers are allowed", MaxPriceTiers))
	}
	for i, tier := range t {
		if tier.MinQty <= 0 {
			return shared.NewValidationError("tier minQty must be positive")
		}
		if !tier.Price.IsPositive() {
			return shared.NewValidationError("tier price must be positive")
		}
		if tier.Price.GreaterThan(basePrice) {
			return shared.NewValidationError(fmt.Sprintf("tier price %s exceeds base price %s", tier.Price, basePrice))
		}
		if i == 0 {
			continue
		}
		prev := t[i-1]
		if tier.MinQty == prev.MinQty {
			return shared.NewValidationError(fmt.Sprintf("duplicate tier minQty %d", tier.MinQty))
		}
		if tier.MinQty < prev.MinQty {
			return shared.NewValidationError("price tiers must be sorted ascending by minQty")
		}
		if tier.Price.GreaterThan(prev.Price) {
			return shared.NewValidationError(fmt.Sprintf("tier at %d units is priced above the tier at %d units", tier.MinQty, prev.MinQty))
		}
	}
	return nil
}

// Resolve returns the unit price for qty: the price of the tier with the
// greatest MinQty not above qty, or basePrice when no tier qualifies.
func Resolve(tiers PriceTiers, qty int, basePrice decimal.Decimal) decimal.Decimal {
	price := basePrice
	for _, tier := range tiers {
		if tier.MinQty > qty {
			break
		}
		price = tier.Price
	}
	return price
}

// Resolve is the method form of the package-level Resolve
func (t PriceTiers) Resolve(qty int, basePrice decimal.Decimal) decimal.Decimal {
	return Resolve(t, qty, basePrice)
}

// NextTier returns the first tier above qty, if any
func (t PriceTiers) NextTier(qty int) (PriceTier, bool) {
	for _, tier := range t {
		if tier.MinQty > qty {
			return tier, true
		}
	}
	return PriceTier{}, false
}

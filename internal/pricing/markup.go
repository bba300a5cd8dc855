package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	"github.com/vendorisland/vendorisland-backend/pkg/money"
)

// Markup is the uplift a rule applies to the cost basis. The set of variants
// is closed: PercentageMarkup, FixedMarkup and TieredMarkup.
type Markup interface {
	Type() enums.MarkupType
	// upliftCents returns the markup amount for costCents. ok is false when
	// the markup has no answer for this cost (e.g. no tier bracket matches).
	upliftCents(costCents int64) (uplift int64, ok bool)
}

// PercentageMarkup adds Percent percent of the cost, rounded half up to the cent.
type PercentageMarkup struct {
	Percent decimal.Decimal
}

func (PercentageMarkup) Type() enums.MarkupType { return enums.MarkupTypePercentage }

func (m PercentageMarkup) upliftCents(costCents int64) (int64, bool) {
	uplift := decimal.NewFromInt(costCents).Mul(m.Percent).Div(decimal.NewFromInt(100))
	return uplift.Round(0).IntPart(), true
}

// FixedMarkup adds a flat amount.
type FixedMarkup struct {
	AmountCents int64
}

func (FixedMarkup) Type() enums.MarkupType { return enums.MarkupTypeFixed }

func (m FixedMarkup) upliftCents(int64) (int64, bool) {
	return m.AmountCents, true
}

// BracketResolver picks the markup for a cost price.
type BracketResolver interface {
	Resolve(costCents int64) (Markup, bool)
}

// TieredMarkup delegates to a resolver keyed by cost bracket.
type TieredMarkup struct {
	Resolver BracketResolver
}

func (TieredMarkup) Type() enums.MarkupType { return enums.MarkupTypeTiered }

func (m TieredMarkup) upliftCents(costCents int64) (int64, bool) {
	if m.Resolver == nil {
		return 0, false
	}
	inner, ok := m.Resolver.Resolve(costCents)
	if !ok || inner == nil {
		return 0, false
	}
	// brackets resolve to flat variants only
	if _, nested := inner.(TieredMarkup); nested {
		return 0, false
	}
	return inner.upliftCents(costCents)
}

// Bracket covers costs in [MinCostCents, MaxCostCents). A nil MaxCostCents is unbounded.
type Bracket struct {
	MinCostCents int64
	MaxCostCents *int64
	Markup       Markup
}

func (b Bracket) contains(costCents int64) bool {
	if costCents < b.MinCostCents {
		return false
	}
	return b.MaxCostCents == nil || costCents < *b.MaxCostCents
}

// BracketTable is the default resolver: first matching bracket wins.
type BracketTable []Bracket

func (t BracketTable) Resolve(costCents int64) (Markup, bool) {
	for _, b := range t {
		if b.contains(costCents) {
			return b.Markup, b.Markup != nil
		}
	}
	return nil, false
}

// Validate rejects overlapping or nested brackets.
func (t BracketTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("tiered markup requires at least one bracket")
	}
	for i, b := range t {
		if b.Markup == nil {
			return fmt.Errorf("bracket %d has no markup", i)
		}
		if _, nested := b.Markup.(TieredMarkup); nested {
			return fmt.Errorf("bracket %d cannot be tiered", i)
		}
		if b.MaxCostCents != nil && *b.MaxCostCents <= b.MinCostCents {
			return fmt.Errorf("bracket %d has empty range", i)
		}
		for j := i + 1; j < len(t); j++ {
			if overlaps(b, t[j]) {
				return fmt.Errorf("brackets %d and %d overlap", i, j)
			}
		}
	}
	return nil
}

func overlaps(a, b Bracket) bool {
	aBelowB := a.MaxCostCents != nil && *a.MaxCostCents <= b.MinCostCents
	bBelowA := b.MaxCostCents != nil && *b.MaxCostCents <= a.MinCostCents
	return !aBelowB && !bBelowA
}

// Describe renders a markup for rejection messages and API output.
func Describe(m Markup) string {
	switch v := m.(type) {
	case PercentageMarkup:
		return v.Percent.String() + "%"
	case FixedMarkup:
		return "+" + money.FormatCents(v.AmountCents)
	case TieredMarkup:
		return "tiered"
	default:
		return "unknown"
	}
}

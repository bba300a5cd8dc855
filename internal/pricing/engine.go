// Package pricing computes selling prices from a cost basis and a vendor's
// pricing rules. It performs no I/O and holds no state.
package pricing

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vendorisland/vendorisland-backend/pkg/enums"
)

// Basis is the cost side of a catalog product.
type Basis struct {
	CostCents     int64
	ShippingCents int64
	Category      string
	ShippingZone  string
}

// Rule is the engine's view of a pricing rule.
type Rule struct {
	ID                 uuid.UUID
	Name               string
	Priority           int
	UpdatedAt          time.Time
	Active             bool
	Category           *string
	ShippingZone       *string
	MinPriceCents      *int64
	MaxPriceCents      *int64
	Markup             Markup
	HandlingFeeCents   int64
	MinimumProfitCents int64
	Rounding           enums.RoundingRule
}

// RejectReason explains why a rule did not produce the price.
type RejectReason string

const (
	RejectInactive         RejectReason = "inactive"
	RejectCategory         RejectReason = "category_mismatch"
	RejectShippingZone     RejectReason = "shipping_zone_mismatch"
	RejectNoBracket        RejectReason = "no_bracket"
	RejectOutOfBounds      RejectReason = "out_of_bounds"
	RejectMinimumProfit    RejectReason = "below_minimum_profit"
	RejectNonPositivePrice RejectReason = "non_positive_price"
)

type Rejection struct {
	RuleID uuid.UUID    `json:"rule_id"`
	Reason RejectReason `json:"reason"`
}

// Result is either a price (Found) or "no applicable rule".
type Result struct {
	Found         bool
	PriceCents    int64
	RuleID        uuid.UUID
	RawPriceCents int64
	ProfitCents   int64
	Clamped       bool
	Rejections    []Rejection
}

// Order sorts rules into evaluation order: priority desc, most recently
// updated first, then ID so the order is total.
func Order(rules []Rule) []Rule {
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return ordered
}

// ComputeSellingPrice returns the price produced by the first rule, in
// evaluation order, that applies to basis and clears its profit floor.
func ComputeSellingPrice(basis Basis, rules []Rule) Result {
	res := Result{}
	for _, rule := range Order(rules) {
		price, raw, clamped, reason := evaluate(basis, rule)
		if reason != "" {
			res.Rejections = append(res.Rejections, Rejection{RuleID: rule.ID, Reason: reason})
			continue
		}
		res.Found = true
		res.PriceCents = price
		res.RawPriceCents = raw
		res.Clamped = clamped
		res.RuleID = rule.ID
		res.ProfitCents = price - basis.CostCents - basis.ShippingCents
		return res
	}
	return res
}

func evaluate(basis Basis, rule Rule) (price, raw int64, clamped bool, reason RejectReason) {
	if !rule.Active {
		return 0, 0, false, RejectInactive
	}
	if !matches(rule.Category, basis.Category) {
		return 0, 0, false, RejectCategory
	}
	if !matches(rule.ShippingZone, basis.ShippingZone) {
		return 0, 0, false, RejectShippingZone
	}
	if rule.Markup == nil {
		return 0, 0, false, RejectNoBracket
	}
	uplift, ok := rule.Markup.upliftCents(basis.CostCents)
	if !ok {
		return 0, 0, false, RejectNoBracket
	}

	raw = basis.CostCents + uplift + rule.HandlingFeeCents
	if !withinBounds(raw, rule.MinPriceCents, rule.MaxPriceCents) {
		return 0, raw, false, RejectOutOfBounds
	}

	price = Round(raw, rule.Rounding)
	if rule.MaxPriceCents != nil && price > *rule.MaxPriceCents {
		price = gridFloor(*rule.MaxPriceCents, rule.Rounding)
		clamped = true
	}
	if rule.MinPriceCents != nil && price < *rule.MinPriceCents {
		price = gridCeil(*rule.MinPriceCents, rule.Rounding)
		clamped = true
	}
	if clamped && !withinBounds(price, rule.MinPriceCents, rule.MaxPriceCents) {
		// the rounding grid has no point inside the window
		return 0, raw, false, RejectOutOfBounds
	}

	if price <= 0 {
		return 0, raw, clamped, RejectNonPositivePrice
	}
	if price-basis.CostCents-basis.ShippingCents < rule.MinimumProfitCents {
		return 0, raw, clamped, RejectMinimumProfit
	}
	return price, raw, clamped, ""
}

func matches(filter *string, value string) bool {
	if filter == nil || strings.TrimSpace(*filter) == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(*filter), strings.TrimSpace(value))
}

func withinBounds(price int64, lo, hi *int64) bool {
	if lo != nil && price < *lo {
		return false
	}
	if hi != nil && price > *hi {
		return false
	}
	return true
}

// EvaluateAll prices every basis against the same rule snapshot. Results are
// positionally aligned with bases.
func EvaluateAll(ctx context.Context, bases []Basis, rules []Rule, workers int) ([]Result, error) {
	ordered := Order(rules)
	results := make([]Result, len(bases))
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range bases {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = ComputeSellingPrice(bases[i], ordered)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

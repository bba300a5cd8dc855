package pricingrules

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vendorisland/vendorisland-backend/internal/pricing"
	"github.com/vendorisland/vendorisland-backend/pkg/db/models"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
)

// tierRecord is the jsonb shape of one bracket in pricing_rules.tiers.
type tierRecord struct {
	MinCostCents int64            `json:"min_cost_cents"`
	MaxCostCents *int64           `json:"max_cost_cents,omitempty"`
	MarkupType   enums.MarkupType `json:"markup_type"`
	MarkupValue  decimal.Decimal  `json:"markup_value"`
}

// ToEngineRule converts a stored rule into the engine's tagged form.
func ToEngineRule(rule models.PricingRule) (pricing.Rule, error) {
	markup, err := toMarkup(rule.MarkupType, rule.MarkupValue, rule.Tiers)
	if err != nil {
		return pricing.Rule{}, fmt.Errorf("pricing rule %s: %w", rule.ID, err)
	}
	return pricing.Rule{
		ID:                 rule.ID,
		Name:               rule.Name,
		Priority:           rule.Priority,
		UpdatedAt:          rule.UpdatedAt,
		Active:             rule.IsActive,
		Category:           rule.Category,
		ShippingZone:       rule.ShippingZone,
		MinPriceCents:      rule.MinPriceCents,
		MaxPriceCents:      rule.MaxPriceCents,
		Markup:             markup,
		HandlingFeeCents:   rule.HandlingFeeCents,
		MinimumProfitCents: rule.MinimumProfitCents,
		Rounding:           rule.RoundingRule,
	}, nil
}

// ToEngineRules converts a rule set, failing on the first malformed row.
func ToEngineRules(rules []models.PricingRule) ([]pricing.Rule, error) {
	out := make([]pricing.Rule, 0, len(rules))
	for _, rule := range rules {
		converted, err := ToEngineRule(rule)
		if err != nil {
			return nil, err
		}
		out = append(out, converted)
	}
	return out, nil
}

func toMarkup(markupType enums.MarkupType, value decimal.Decimal, tiers json.RawMessage) (pricing.Markup, error) {
	switch markupType {
	case enums.MarkupTypePercentage, enums.MarkupTypeFixed:
		return flatMarkup(markupType, value)
	case enums.MarkupTypeTiered:
		table, err := decodeTiers(tiers)
		if err != nil {
			return nil, err
		}
		return pricing.TieredMarkup{Resolver: table}, nil
	default:
		return nil, fmt.Errorf("unknown markup type %q", markupType)
	}
}

func flatMarkup(markupType enums.MarkupType, value decimal.Decimal) (pricing.Markup, error) {
	if value.IsNegative() {
		return nil, fmt.Errorf("markup value cannot be negative")
	}
	switch markupType {
	case enums.MarkupTypePercentage:
		return pricing.PercentageMarkup{Percent: value}, nil
	case enums.MarkupTypeFixed:
		if !value.Equal(value.Truncate(0)) {
			return nil, fmt.Errorf("fixed markup must be a whole number of cents")
		}
		return pricing.FixedMarkup{AmountCents: value.IntPart()}, nil
	default:
		return nil, fmt.Errorf("markup type %q cannot be used inside a bracket", markupType)
	}
}

func decodeTiers(raw json.RawMessage) (pricing.BracketTable, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("tiered markup requires tiers")
	}
	var records []tierRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode tiers: %w", err)
	}
	table := make(pricing.BracketTable, 0, len(records))
	for i, rec := range records {
		markup, err := flatMarkup(rec.MarkupType, rec.MarkupValue)
		if err != nil {
			return nil, fmt.Errorf("tier %d: %w", i, err)
		}
		table = append(table, pricing.Bracket{
			MinCostCents: rec.MinCostCents,
			MaxCostCents: rec.MaxCostCents,
			Markup:       markup,
		})
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

func encodeTiers(tiers []TierInput) (json.RawMessage, error) {
	if len(tiers) == 0 {
		return nil, nil
	}
	records := make([]tierRecord, 0, len(tiers))
	for _, t := range tiers {
		records = append(records, tierRecord{
			MinCostCents: t.MinCostCents,
			MaxCostCents: t.MaxCostCents,
			MarkupType:   t.MarkupType,
			MarkupValue:  t.MarkupValue,
		})
	}
	return json.Marshal(records)
}

func tiersFromJSON(raw json.RawMessage) []TierInput {
	if len(raw) == 0 {
		return nil
	}
	var records []tierRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil
	}
	out := make([]TierInput, 0, len(records))
	for _, rec := range records {
		out = append(out, TierInput(rec))
	}
	return out
}

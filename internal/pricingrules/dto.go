package pricingrules

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vendorisland/vendorisland-backend/internal/pricing"
	"github.com/vendorisland/vendorisland-backend/pkg/db/models"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	"github.com/vendorisland/vendorisland-backend/pkg/money"
)

// TierInput is one cost bracket of a tiered rule. MaxCostCents is exclusive.
type TierInput struct {
	MinCostCents int64            `json:"min_cost_cents"`
	MaxCostCents *int64           `json:"max_cost_cents,omitempty"`
	MarkupType   enums.MarkupType `json:"markup_type"`
	MarkupValue  decimal.Decimal  `json:"markup_value"`
}

// CreateRuleInput holds a validated rule definition.
type CreateRuleInput struct {
	Name               string
	Priority           int
	Category           *string
	ShippingZone       *string
	MinPriceCents      *int64
	MaxPriceCents      *int64
	MarkupType         enums.MarkupType
	MarkupValue        decimal.Decimal
	Tiers              []TierInput
	HandlingFeeCents   int64
	MinimumProfitCents int64
	RoundingRule       enums.RoundingRule
}

// UpdateRuleInput carries optional changes; nil fields are left untouched.
// ClearCategory, ClearShippingZone and ClearBounds drop a filter entirely.
type UpdateRuleInput struct {
	Name               *string
	Priority           *int
	Category           *string
	ClearCategory      bool
	ShippingZone       *string
	ClearShippingZone  bool
	MinPriceCents      *int64
	MaxPriceCents      *int64
	ClearBounds        bool
	MarkupType         *enums.MarkupType
	MarkupValue        *decimal.Decimal
	Tiers              *[]TierInput
	HandlingFeeCents   *int64
	MinimumProfitCents *int64
	RoundingRule       *enums.RoundingRule
	IsActive           *bool
}

// QuoteInput prices a hypothetical product against the vendor's active rules.
type QuoteInput struct {
	CostCents     int64
	ShippingCents int64
	Category      string
	ShippingZone  string
}

// QuoteResult reports the winning rule, or Found=false with every rejection.
type QuoteResult struct {
	Found         bool                `json:"found"`
	PriceCents    int64               `json:"price_cents,omitempty"`
	Price         string              `json:"price,omitempty"`
	RawPriceCents int64               `json:"raw_price_cents,omitempty"`
	ProfitCents   int64               `json:"profit_cents,omitempty"`
	Clamped       bool                `json:"clamped,omitempty"`
	RuleID        *uuid.UUID          `json:"rule_id,omitempty"`
	Rejections    []pricing.Rejection `json:"rejections,omitempty"`
}

// RuleDTO is the API view of a pricing rule.
type RuleDTO struct {
	ID                 uuid.UUID          `json:"id"`
	VendorID           uuid.UUID          `json:"vendor_id"`
	Name               string             `json:"name"`
	Priority           int                `json:"priority"`
	Category           *string            `json:"category,omitempty"`
	ShippingZone       *string            `json:"shipping_zone,omitempty"`
	MinPriceCents      *int64             `json:"min_price_cents,omitempty"`
	MaxPriceCents      *int64             `json:"max_price_cents,omitempty"`
	MarkupType         enums.MarkupType   `json:"markup_type"`
	MarkupValue        decimal.Decimal    `json:"markup_value"`
	Markup             string             `json:"markup"`
	Tiers              []TierInput        `json:"tiers,omitempty"`
	HandlingFeeCents   int64              `json:"handling_fee_cents"`
	MinimumProfitCents int64              `json:"minimum_profit_cents"`
	RoundingRule       enums.RoundingRule `json:"rounding_rule"`
	IsActive           bool               `json:"is_active"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

func toRuleDTO(rule *models.PricingRule) *RuleDTO {
	dto := &RuleDTO{
		ID:                 rule.ID,
		VendorID:           rule.VendorID,
		Name:               rule.Name,
		Priority:           rule.Priority,
		Category:           rule.Category,
		ShippingZone:       rule.ShippingZone,
		MinPriceCents:      rule.MinPriceCents,
		MaxPriceCents:      rule.MaxPriceCents,
		MarkupType:         rule.MarkupType,
		MarkupValue:        rule.MarkupValue,
		Tiers:              tiersFromJSON(rule.Tiers),
		HandlingFeeCents:   rule.HandlingFeeCents,
		MinimumProfitCents: rule.MinimumProfitCents,
		RoundingRule:       rule.RoundingRule,
		IsActive:           rule.IsActive,
		CreatedAt:          rule.CreatedAt,
		UpdatedAt:          rule.UpdatedAt,
	}
	if markup, err := toMarkup(rule.MarkupType, rule.MarkupValue, rule.Tiers); err == nil {
		dto.Markup = pricing.Describe(markup)
	}
	return dto
}

func toQuoteResult(res pricing.Result) *QuoteResult {
	out := &QuoteResult{Found: res.Found, Rejections: res.Rejections}
	if res.Found {
		id := res.RuleID
		out.RuleID = &id
		out.PriceCents = res.PriceCents
		out.Price = money.FormatCents(res.PriceCents)
		out.RawPriceCents = res.RawPriceCents
		out.ProfitCents = res.ProfitCents
		out.Clamped = res.Clamped
	}
	return out
}

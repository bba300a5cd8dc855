package pricingrules

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/vendorisland/vendorisland-backend/internal/pricing"
	"github.com/vendorisland/vendorisland-backend/pkg/db"
	"github.com/vendorisland/vendorisland-backend/pkg/db/models"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	pkgerrors "github.com/vendorisland/vendorisland-backend/pkg/errors"
	"github.com/vendorisland/vendorisland-backend/pkg/logger"
)

// Service manages the pricing rules a vendor's catalog is priced with.
type Service interface {
	Create(ctx context.Context, vendorID uuid.UUID, input CreateRuleInput) (*RuleDTO, error)
	Update(ctx context.Context, vendorID, ruleID uuid.UUID, input UpdateRuleInput) (*RuleDTO, error)
	Deactivate(ctx context.Context, vendorID, ruleID uuid.UUID) (*RuleDTO, error)
	Get(ctx context.Context, vendorID, ruleID uuid.UUID) (*RuleDTO, error)
	List(ctx context.Context, vendorID uuid.UUID, includeInactive bool) ([]RuleDTO, error)
	EngineRules(ctx context.Context, vendorID uuid.UUID) ([]pricing.Rule, error)
	Quote(ctx context.Context, vendorID uuid.UUID, input QuoteInput) (*QuoteResult, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
	now  func() time.Time
}

// NewService builds the rule store. logg may be nil.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("pricing rule repository required")
	}
	return &service{repo: repo, logg: logg, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *service) Create(ctx context.Context, vendorID uuid.UUID, input CreateRuleInput) (*RuleDTO, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	tiers, err := encodeTiers(input.Tiers)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tiers")
	}
	now := s.now()
	rule := &models.PricingRule{
		ID:                 uuid.New(),
		VendorID:           vendorID,
		Name:               strings.TrimSpace(input.Name),
		Priority:           input.Priority,
		Category:           trimmed(input.Category),
		ShippingZone:       trimmed(input.ShippingZone),
		MinPriceCents:      input.MinPriceCents,
		MaxPriceCents:      input.MaxPriceCents,
		MarkupType:         input.MarkupType,
		MarkupValue:        input.MarkupValue,
		Tiers:              tiers,
		HandlingFeeCents:   input.HandlingFeeCents,
		MinimumProfitCents: input.MinimumProfitCents,
		RoundingRule:       input.RoundingRule,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if rule.RoundingRule == "" {
		rule.RoundingRule = enums.RoundingNone
	}
	normalizeMarkup(rule)
	if err := validateRule(rule); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, rule); err != nil {
		return nil, db.Classify(err, "create pricing rule")
	}
	s.logRule(ctx, rule, "pricing rule created")
	return toRuleDTO(rule), nil
}

func (s *service) Update(ctx context.Context, vendorID, ruleID uuid.UUID, input UpdateRuleInput) (*RuleDTO, error) {
	rule, err := s.load(ctx, vendorID, ruleID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		rule.Name = strings.TrimSpace(*input.Name)
	}
	if input.Priority != nil {
		rule.Priority = *input.Priority
	}
	if input.ClearCategory {
		rule.Category = nil
	} else if input.Category != nil {
		rule.Category = trimmed(input.Category)
	}
	if input.ClearShippingZone {
		rule.ShippingZone = nil
	} else if input.ShippingZone != nil {
		rule.ShippingZone = trimmed(input.ShippingZone)
	}
	if input.ClearBounds {
		rule.MinPriceCents, rule.MaxPriceCents = nil, nil
	}
	if input.MinPriceCents != nil {
		rule.MinPriceCents = input.MinPriceCents
	}
	if input.MaxPriceCents != nil {
		rule.MaxPriceCents = input.MaxPriceCents
	}
	if input.MarkupType != nil {
		rule.MarkupType = *input.MarkupType
	}
	if input.MarkupValue != nil {
		rule.MarkupValue = *input.MarkupValue
	}
	if input.Tiers != nil {
		tiers, err := encodeTiers(*input.Tiers)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tiers")
		}
		rule.Tiers = tiers
	}
	if input.HandlingFeeCents != nil {
		rule.HandlingFeeCents = *input.HandlingFeeCents
	}
	if input.MinimumProfitCents != nil {
		rule.MinimumProfitCents = *input.MinimumProfitCents
	}
	if input.RoundingRule != nil {
		rule.RoundingRule = *input.RoundingRule
	}
	if input.IsActive != nil {
		rule.IsActive = *input.IsActive
	}
	normalizeMarkup(rule)
	if err := validateRule(rule); err != nil {
		return nil, err
	}

	rule.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, rule.ID, map[string]any{
		"name":                 rule.Name,
		"priority":             rule.Priority,
		"category":             rule.Category,
		"shipping_zone":        rule.ShippingZone,
		"min_price_cents":      rule.MinPriceCents,
		"max_price_cents":      rule.MaxPriceCents,
		"markup_type":          rule.MarkupType,
		"markup_value":         rule.MarkupValue,
		"tiers":                rule.Tiers,
		"handling_fee_cents":   rule.HandlingFeeCents,
		"minimum_profit_cents": rule.MinimumProfitCents,
		"rounding_rule":        rule.RoundingRule,
		"is_active":            rule.IsActive,
		"updated_at":           rule.UpdatedAt,
	}); err != nil {
		return nil, ruleLookupError(err)
	}
	s.logRule(ctx, rule, "pricing rule updated")
	return toRuleDTO(rule), nil
}

// Deactivate keeps the row so products priced by it retain their history.
func (s *service) Deactivate(ctx context.Context, vendorID, ruleID uuid.UUID) (*RuleDTO, error) {
	rule, err := s.load(ctx, vendorID, ruleID)
	if err != nil {
		return nil, err
	}
	if !rule.IsActive {
		return toRuleDTO(rule), nil
	}
	rule.IsActive = false
	rule.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, rule.ID, map[string]any{"is_active": false, "updated_at": rule.UpdatedAt}); err != nil {
		return nil, ruleLookupError(err)
	}
	s.logRule(ctx, rule, "pricing rule deactivated")
	return toRuleDTO(rule), nil
}

func (s *service) Get(ctx context.Context, vendorID, ruleID uuid.UUID) (*RuleDTO, error) {
	rule, err := s.load(ctx, vendorID, ruleID)
	if err != nil {
		return nil, err
	}
	return toRuleDTO(rule), nil
}

func (s *service) List(ctx context.Context, vendorID uuid.UUID, includeInactive bool) ([]RuleDTO, error) {
	rules, err := s.repo.List(ctx, vendorID, !includeInactive)
	if err != nil {
		return nil, db.Classify(err, "list pricing rules")
	}
	out := make([]RuleDTO, 0, len(rules))
	for i := range rules {
		out = append(out, *toRuleDTO(&rules[i]))
	}
	return out, nil
}

// EngineRules returns the vendor's active rules ready for evaluation. A row
// that no longer maps to a markup is an invariant failure, not a skip.
func (s *service) EngineRules(ctx context.Context, vendorID uuid.UUID) ([]pricing.Rule, error) {
	rows, err := s.repo.List(ctx, vendorID, true)
	if err != nil {
		return nil, db.Classify(err, "list pricing rules")
	}
	rules, err := ToEngineRules(rows)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInvariant, err, "stored pricing rule is malformed")
	}
	return rules, nil
}

func (s *service) Quote(ctx context.Context, vendorID uuid.UUID, input QuoteInput) (*QuoteResult, error) {
	if input.CostCents < 0 || input.ShippingCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cost and shipping cannot be negative")
	}
	rules, err := s.EngineRules(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	res := pricing.ComputeSellingPrice(pricing.Basis{
		CostCents:     input.CostCents,
		ShippingCents: input.ShippingCents,
		Category:      input.Category,
		ShippingZone:  input.ShippingZone,
	}, rules)
	return toQuoteResult(res), nil
}

func (s *service) load(ctx context.Context, vendorID, ruleID uuid.UUID) (*models.PricingRule, error) {
	rule, err := s.repo.FindByID(ctx, ruleID)
	if err != nil {
		return nil, ruleLookupError(err)
	}
	if rule.VendorID != vendorID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "pricing rule not found")
	}
	return rule, nil
}

func (s *service) logRule(ctx context.Context, rule *models.PricingRule, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"vendor_id":       rule.VendorID.String(),
		"pricing_rule_id": rule.ID.String(),
		"priority":        rule.Priority,
		"is_active":       rule.IsActive,
	}), msg)
}

// normalizeMarkup drops the fields the markup type ignores.
func normalizeMarkup(rule *models.PricingRule) {
	if rule.MarkupType == enums.MarkupTypeTiered {
		rule.MarkupValue = decimal.Zero
		return
	}
	rule.Tiers = nil
}

func validateRule(rule *models.PricingRule) error {
	fail := func(msg string) error { return pkgerrors.New(pkgerrors.CodeValidation, msg) }
	switch {
	case rule.Name == "":
		return fail("name required")
	case !rule.MarkupType.IsValid():
		return fail("unknown markup type")
	case !rule.RoundingRule.IsValid():
		return fail("unknown rounding rule")
	case rule.HandlingFeeCents < 0:
		return fail("handling fee cannot be negative")
	case rule.MinimumProfitCents < 0:
		return fail("minimum profit cannot be negative")
	case rule.MinPriceCents != nil && *rule.MinPriceCents < 0:
		return fail("min price cannot be negative")
	case rule.MaxPriceCents != nil && *rule.MaxPriceCents <= 0:
		return fail("max price must be positive")
	case rule.MinPriceCents != nil && rule.MaxPriceCents != nil && *rule.MinPriceCents > *rule.MaxPriceCents:
		return fail("min price exceeds max price")
	}
	if _, err := toMarkup(rule.MarkupType, rule.MarkupValue, rule.Tiers); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid markup")
	}
	return nil
}

func ruleLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "pricing rule not found")
	}
	return db.Classify(err, "load pricing rule")
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}

package pricingrules

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vendorisland/vendorisland-backend/api/controllers/vendorcontext"
	"github.com/vendorisland/vendorisland-backend/api/responses"
	"github.com/vendorisland/vendorisland-backend/api/validators"
	internalrules "github.com/vendorisland/vendorisland-backend/internal/pricingrules"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	pkgerrors "github.com/vendorisland/vendorisland-backend/pkg/errors"
	"github.com/vendorisland/vendorisland-backend/pkg/logger"
)

// Markup values arrive as strings: a percent for percentage markups and a
// money amount for fixed markups.
type tierRequest struct {
	MinCost     string  `json:"min_cost" validate:"required,money"`
	MaxCost     *string `json:"max_cost" validate:"omitempty,money"`
	MarkupType  string  `json:"markup_type" validate:"required,oneof=percentage fixed"`
	MarkupValue string  `json:"markup_value" validate:"required"`
}

type createRuleRequest struct {
	Name          string        `json:"name" validate:"required,max=255"`
	Priority      int           `json:"priority" validate:"gte=0,lte=10000"`
	Category      *string       `json:"category" validate:"omitempty,max=100"`
	ShippingZone  *string       `json:"shipping_zone" validate:"omitempty,max=100"`
	MinPrice      *string       `json:"min_price" validate:"omitempty,money"`
	MaxPrice      *string       `json:"max_price" validate:"omitempty,money"`
	MarkupType    string        `json:"markup_type" validate:"required,oneof=percentage fixed tiered"`
	MarkupValue   string        `json:"markup_value"`
	Tiers         []tierRequest `json:"tiers" validate:"omitempty,dive"`
	HandlingFee   *string       `json:"handling_fee" validate:"omitempty,money"`
	MinimumProfit *string       `json:"minimum_profit" validate:"omitempty,money"`
	RoundingRule  string        `json:"rounding_rule" validate:"omitempty,oneof=none up down nearest end_99"`
}

type updateRuleRequest struct {
	Name              *string        `json:"name" validate:"omitempty,max=255"`
	Priority          *int           `json:"priority" validate:"omitempty,gte=0,lte=10000"`
	Category          *string        `json:"category" validate:"omitempty,max=100"`
	ClearCategory     bool           `json:"clear_category"`
	ShippingZone      *string        `json:"shipping_zone" validate:"omitempty,max=100"`
	ClearShippingZone bool           `json:"clear_shipping_zone"`
	MinPrice          *string        `json:"min_price" validate:"omitempty,money"`
	MaxPrice          *string        `json:"max_price" validate:"omitempty,money"`
	ClearBounds       bool           `json:"clear_bounds"`
	MarkupType        *string        `json:"markup_type" validate:"omitempty,oneof=percentage fixed tiered"`
	MarkupValue       *string        `json:"markup_value"`
	Tiers             *[]tierRequest `json:"tiers" validate:"omitempty"`
	HandlingFee       *string        `json:"handling_fee" validate:"omitempty,money"`
	MinimumProfit     *string        `json:"minimum_profit" validate:"omitempty,money"`
	RoundingRule      *string        `json:"rounding_rule" validate:"omitempty,oneof=none up down nearest end_99"`
	IsActive          *bool          `json:"is_active"`
}

type quoteRequest struct {
	Cost         string  `json:"cost" validate:"required,money"`
	Shipping     *string `json:"shipping" validate:"omitempty,money"`
	Category     string  `json:"category" validate:"omitempty,max=100"`
	ShippingZone string  `json:"shipping_zone" validate:"omitempty,max=100"`
}

func Create(svc internalrules.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pricing rule service unavailable"))
			return
		}
		vendorID, err := vendorcontext.ResolveVendorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body createRuleRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := body.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rule, err := svc.Create(r.Context(), vendorID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, rule)
	}
}

// List returns the vendor's rules; pass include_inactive=true to see disabled ones.
func List(svc internalrules.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pricing rule service unavailable"))
			return
		}
		vendorID, err := vendorcontext.ResolveVendorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		includeInactive := strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("include_inactive")), "true")
		rules, err := svc.List(r.Context(), vendorID, includeInactive)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"rules": rules})
	}
}

func Detail(svc internalrules.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pricing rule service unavailable"))
			return
		}
		vendorID, err := vendorcontext.ResolveVendorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ruleID, err := validators.ParseUUIDParam(r, "ruleID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rule, err := svc.Get(r.Context(), vendorID, ruleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rule)
	}
}

func Update(svc internalrules.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pricing rule service unavailable"))
			return
		}
		vendorID, err := vendorcontext.ResolveVendorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ruleID, err := validators.ParseUUIDParam(r, "ruleID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateRuleRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := body.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rule, err := svc.Update(r.Context(), vendorID, ruleID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rule)
	}
}

// Deactivate disables the rule without deleting it.
func Deactivate(svc internalrules.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pricing rule service unavailable"))
			return
		}
		vendorID, err := vendorcontext.ResolveVendorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ruleID, err := validators.ParseUUIDParam(r, "ruleID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rule, err := svc.Deactivate(r.Context(), vendorID, ruleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rule)
	}
}

// Quote prices a hypothetical product against the vendor's active rules.
func Quote(svc internalrules.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pricing rule service unavailable"))
			return
		}
		vendorID, err := vendorcontext.ResolveVendorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body quoteRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cost, err := validators.ParseAmount("cost", body.Cost)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		shipping, err := validators.ParseOptionalAmount("shipping", body.Shipping)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := internalrules.QuoteInput{
			CostCents:    cost,
			Category:     strings.TrimSpace(body.Category),
			ShippingZone: strings.TrimSpace(body.ShippingZone),
		}
		if shipping != nil {
			input.ShippingCents = *shipping
		}
		result, err := svc.Quote(r.Context(), vendorID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func (req createRuleRequest) toInput() (internalrules.CreateRuleInput, error) {
	markupType := enums.MarkupType(req.MarkupType)
	input := internalrules.CreateRuleInput{
		Name:         strings.TrimSpace(req.Name),
		Priority:     req.Priority,
		Category:     req.Category,
		ShippingZone: req.ShippingZone,
		MarkupType:   markupType,
		RoundingRule: enums.RoundingNone,
	}
	var err error
	if input.MinPriceCents, err = validators.ParseOptionalAmount("min_price", req.MinPrice); err != nil {
		return input, err
	}
	if input.MaxPriceCents, err = validators.ParseOptionalAmount("max_price", req.MaxPrice); err != nil {
		return input, err
	}
	if markupType == enums.MarkupTypeTiered {
		if input.Tiers, err = parseTiers(req.Tiers); err != nil {
			return input, err
		}
	} else if input.MarkupValue, err = parseMarkupValue(markupType, req.MarkupValue); err != nil {
		return input, err
	}
	if fee, err := validators.ParseOptionalAmount("handling_fee", req.HandlingFee); err != nil {
		return input, err
	} else if fee != nil {
		input.HandlingFeeCents = *fee
	}
	if minProfit, err := validators.ParseOptionalAmount("minimum_profit", req.MinimumProfit); err != nil {
		return input, err
	} else if minProfit != nil {
		input.MinimumProfitCents = *minProfit
	}
	if req.RoundingRule != "" {
		input.RoundingRule = enums.RoundingRule(req.RoundingRule)
	}
	return input, nil
}

func (req updateRuleRequest) toInput() (internalrules.UpdateRuleInput, error) {
	input := internalrules.UpdateRuleInput{
		Name:              req.Name,
		Priority:          req.Priority,
		Category:          req.Category,
		ClearCategory:     req.ClearCategory,
		ShippingZone:      req.ShippingZone,
		ClearShippingZone: req.ClearShippingZone,
		ClearBounds:       req.ClearBounds,
		IsActive:          req.IsActive,
	}
	var err error
	if input.MinPriceCents, err = validators.ParseOptionalAmount("min_price", req.MinPrice); err != nil {
		return input, err
	}
	if input.MaxPriceCents, err = validators.ParseOptionalAmount("max_price", req.MaxPrice); err != nil {
		return input, err
	}
	if input.HandlingFeeCents, err = validators.ParseOptionalAmount("handling_fee", req.HandlingFee); err != nil {
		return input, err
	}
	if input.MinimumProfitCents, err = validators.ParseOptionalAmount("minimum_profit", req.MinimumProfit); err != nil {
		return input, err
	}
	if req.RoundingRule != nil {
		rounding := enums.RoundingRule(*req.RoundingRule)
		input.RoundingRule = &rounding
	}
	if req.MarkupType != nil {
		markupType := enums.MarkupType(*req.MarkupType)
		input.MarkupType = &markupType
	}
	if req.MarkupValue != nil {
		// The unit of the value depends on the type, so both travel together.
		if input.MarkupType == nil {
			return input, pkgerrors.New(pkgerrors.CodeValidation, "markup_type is required with markup_value").WithDetails(map[string]string{"markup_type": "is required"})
		}
		value, err := parseMarkupValue(*input.MarkupType, *req.MarkupValue)
		if err != nil {
			return input, err
		}
		input.MarkupValue = &value
	}
	if req.Tiers != nil {
		tiers, err := parseTiers(*req.Tiers)
		if err != nil {
			return input, err
		}
		input.Tiers = &tiers
	}
	return input, nil
}

func parseTiers(raw []tierRequest) ([]internalrules.TierInput, error) {
	if len(raw) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tiered markup requires tiers").WithDetails(map[string]string{"tiers": "is required"})
	}
	tiers := make([]internalrules.TierInput, 0, len(raw))
	for _, tier := range raw {
		minCost, err := validators.ParseAmount("min_cost", tier.MinCost)
		if err != nil {
			return nil, err
		}
		maxCost, err := validators.ParseOptionalAmount("max_cost", tier.MaxCost)
		if err != nil {
			return nil, err
		}
		markupType := enums.MarkupType(tier.MarkupType)
		value, err := parseMarkupValue(markupType, tier.MarkupValue)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, internalrules.TierInput{
			MinCostCents: minCost,
			MaxCostCents: maxCost,
			MarkupType:   markupType,
			MarkupValue:  value,
		})
	}
	return tiers, nil
}

// parseMarkupValue returns a percent for percentage markups and cents for fixed ones.
func parseMarkupValue(markupType enums.MarkupType, raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "markup value is required").WithDetails(map[string]string{"markup_value": "is required"})
	}
	if markupType == enums.MarkupTypeFixed {
		cents, err := validators.ParseAmount("markup_value", trimmed)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromInt(cents), nil
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid markup value").WithDetails(map[string]string{"markup_value": "must be numeric"})
	}
	return value, nil
}


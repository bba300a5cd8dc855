package pricingrules

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendorisland/vendorisland-backend/internal/pricing"
	"github.com/vendorisland/vendorisland-backend/pkg/db/dbtest"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	pkgerrors "github.com/vendorisland/vendorisland-backend/pkg/errors"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	svc, err := NewService(NewRepository(dbtest.Open(t)), nil)
	require.NoError(t, err)
	return svc
}

func percentRule(name string, priority int, percent int64) CreateRuleInput {
	return CreateRuleInput{
		Name:               name,
		Priority:           priority,
		MarkupType:         enums.MarkupTypePercentage,
		MarkupValue:        decimal.NewFromInt(percent),
		MinimumProfitCents: 300,
		RoundingRule:       enums.RoundingEnd99,
	}
}

func ptr[T any](v T) *T { return &v }

func TestCreateAndQuotePercentageRule(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	vendorID := uuid.New()

	rule, err := svc.Create(ctx, vendorID, percentRule("Default", 0, 25))
	require.NoError(t, err)
	assert.True(t, rule.IsActive)
	assert.Equal(t, "25%", rule.Markup)

	quote, err := svc.Quote(ctx, vendorID, QuoteInput{CostCents: 2000})
	require.NoError(t, err)
	require.True(t, quote.Found)
	assert.Equal(t, int64(2599), quote.PriceCents)
	assert.Equal(t, "25.99", quote.Price)
	assert.Equal(t, int64(599), quote.ProfitCents)
	assert.Equal(t, rule.ID, *quote.RuleID)

	// 1000 + 200 shipping prices at 12.99 and misses the 3.00 profit floor.
	quote, err = svc.Quote(ctx, vendorID, QuoteInput{CostCents: 1000, ShippingCents: 200})
	require.NoError(t, err)
	assert.False(t, quote.Found)
	require.Len(t, quote.Rejections, 1)
	assert.Equal(t, pricing.RejectMinimumProfit, quote.Rejections[0].Reason)
}

func TestQuoteFallsThroughToLowerPriority(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	vendorID := uuid.New()

	kitchen := CreateRuleInput{
		Name:         "Kitchen flat",
		Priority:     10,
		Category:     ptr("kitchen"),
		MarkupType:   enums.MarkupTypeFixed,
		MarkupValue:  decimal.NewFromInt(500),
		RoundingRule: enums.RoundingNone,
	}
	high, err := svc.Create(ctx, vendorID, kitchen)
	require.NoError(t, err)
	low, err := svc.Create(ctx, vendorID, percentRule("Fallback", 0, 25))
	require.NoError(t, err)

	quote, err := svc.Quote(ctx, vendorID, QuoteInput{CostCents: 2000, Category: "Kitchen"})
	require.NoError(t, err)
	require.True(t, quote.Found)
	assert.Equal(t, high.ID, *quote.RuleID)
	assert.Equal(t, int64(2500), quote.PriceCents)

	quote, err = svc.Quote(ctx, vendorID, QuoteInput{CostCents: 2000, Category: "garden"})
	require.NoError(t, err)
	require.True(t, quote.Found)
	assert.Equal(t, low.ID, *quote.RuleID)
	require.Len(t, quote.Rejections, 1)
	assert.Equal(t, pricing.RejectCategory, quote.Rejections[0].Reason)
}

func TestTieredRuleRoundTrips(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	vendorID := uuid.New()

	rule, err := svc.Create(ctx, vendorID, CreateRuleInput{
		Name:         "Tiered",
		MarkupType:   enums.MarkupTypeTiered,
		MarkupValue:  decimal.NewFromInt(99),
		RoundingRule: enums.RoundingNone,
		Tiers: []TierInput{
			{MinCostCents: 0, MaxCostCents: ptr(int64(1000)), MarkupType: enums.MarkupTypeFixed, MarkupValue: decimal.NewFromInt(300)},
			{MinCostCents: 1000, MarkupType: enums.MarkupTypePercentage, MarkupValue: decimal.NewFromInt(10)},
		},
	})
	require.NoError(t, err)
	assert.True(t, rule.MarkupValue.IsZero())

	got, err := svc.Get(ctx, vendorID, rule.ID)
	require.NoError(t, err)
	require.Len(t, got.Tiers, 2)
	assert.Equal(t, "tiered", got.Markup)

	cheap, err := svc.Quote(ctx, vendorID, QuoteInput{CostCents: 500})
	require.NoError(t, err)
	assert.Equal(t, int64(800), cheap.PriceCents)

	dear, err := svc.Quote(ctx, vendorID, QuoteInput{CostCents: 2000})
	require.NoError(t, err)
	assert.Equal(t, int64(2200), dear.PriceCents)
}

func TestCreateRejectsMalformedRules(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	vendorID := uuid.New()

	cases := map[string]CreateRuleInput{
		"missing name": {MarkupType: enums.MarkupTypeFixed, MarkupValue: decimal.NewFromInt(100)},
		"unknown markup": {Name: "x", MarkupType: enums.MarkupType("bogus")},
		"fractional fixed": {Name: "x", MarkupType: enums.MarkupTypeFixed, MarkupValue: decimal.RequireFromString("1.5")},
		"negative percent": {Name: "x", MarkupType: enums.MarkupTypePercentage, MarkupValue: decimal.NewFromInt(-5)},
		"tiered without tiers": {Name: "x", MarkupType: enums.MarkupTypeTiered},
		"inverted bounds": {
			Name: "x", MarkupType: enums.MarkupTypeFixed, MarkupValue: decimal.NewFromInt(100),
			MinPriceCents: ptr(int64(5000)), MaxPriceCents: ptr(int64(1000)),
		},
		"overlapping tiers": {
			Name: "x", MarkupType: enums.MarkupTypeTiered,
			Tiers: []TierInput{
				{MinCostCents: 0, MaxCostCents: ptr(int64(2000)), MarkupType: enums.MarkupTypeFixed, MarkupValue: decimal.NewFromInt(100)},
				{MinCostCents: 1000, MarkupType: enums.MarkupTypeFixed, MarkupValue: decimal.NewFromInt(200)},
			},
		},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(ctx, vendorID, input)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
}

func TestUpdateAndDeactivate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	vendorID := uuid.New()

	rule, err := svc.Create(ctx, vendorID, percentRule("Default", 0, 25))
	require.NoError(t, err)

	updated, err := svc.Update(ctx, vendorID, rule.ID, UpdateRuleInput{
		MarkupValue:   ptr(decimal.NewFromInt(50)),
		Category:      ptr("  decor "),
		MaxPriceCents: ptr(int64(10000)),
	})
	require.NoError(t, err)
	assert.Equal(t, "50%", updated.Markup)
	require.NotNil(t, updated.Category)
	assert.Equal(t, "decor", *updated.Category)

	cleared, err := svc.Update(ctx, vendorID, rule.ID, UpdateRuleInput{ClearCategory: true, ClearBounds: true})
	require.NoError(t, err)
	assert.Nil(t, cleared.Category)
	assert.Nil(t, cleared.MaxPriceCents)

	_, err = svc.Update(ctx, vendorID, rule.ID, UpdateRuleInput{RoundingRule: ptr(enums.RoundingRule("ceil"))})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	off, err := svc.Deactivate(ctx, vendorID, rule.ID)
	require.NoError(t, err)
	assert.False(t, off.IsActive)

	active, err := svc.EngineRules(ctx, vendorID)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := svc.List(ctx, vendorID, true)
	require.NoError(t, err)
	require.Len(t, all, 1)

	quote, err := svc.Quote(ctx, vendorID, QuoteInput{CostCents: 2000})
	require.NoError(t, err)
	assert.False(t, quote.Found)
}

func TestRulesAreVendorScoped(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	rule, err := svc.Create(ctx, owner, percentRule("Default", 0, 25))
	require.NoError(t, err)

	_, err = svc.Get(ctx, uuid.New(), rule.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = svc.Deactivate(ctx, uuid.New(), rule.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	others, err := svc.List(ctx, uuid.New(), true)
	require.NoError(t, err)
	assert.Empty(t, others)
}

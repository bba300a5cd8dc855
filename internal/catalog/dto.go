package catalog

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/vendorisland/vendorisland-backend/internal/pricing"
	"github.com/vendorisland/vendorisland-backend/pkg/db/models"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	"github.com/vendorisland/vendorisland-backend/pkg/money"
)

// ImportInput is supplier data for a new draft product.
type ImportInput struct {
	SupplierProductID   *string
	SupplierURL         *string
	Name                string
	Description         *string
	Category            *string
	ShippingZone        *string
	CostPriceCents      int64
	ShippingCostCents   int64
	CountryRestrictions []string
	Images              []string
	Variants            json.RawMessage
}

// PriceCheckInput records a fresh look at the supplier's price. Accept adopts
// the observed cost and reprices.
type PriceCheckInput struct {
	ObservedCostCents int64
	Accept            bool
}

// ProductDTO is the API view of a catalog product.
type ProductDTO struct {
	ID                  uuid.UUID           `json:"id"`
	VendorID            uuid.UUID           `json:"vendor_id"`
	SupplierProductID   *string             `json:"supplier_product_id,omitempty"`
	SupplierURL         *string             `json:"supplier_url,omitempty"`
	Name                string              `json:"name"`
	Description         *string             `json:"description,omitempty"`
	Category            *string             `json:"category,omitempty"`
	ShippingZone        *string             `json:"shipping_zone,omitempty"`
	CostPriceCents      int64               `json:"cost_price_cents"`
	ShippingCostCents   int64               `json:"shipping_cost_cents"`
	SellingPriceCents   *int64              `json:"selling_price_cents"`
	CostPrice           string              `json:"cost_price"`
	SellingPrice        *string             `json:"selling_price"`
	PricingRuleID       *uuid.UUID          `json:"pricing_rule_id,omitempty"`
	ObservedCostCents   *int64              `json:"observed_cost_cents,omitempty"`
	Status              enums.CatalogStatus `json:"status"`
	PriceChanged        bool                `json:"price_changed"`
	LastPriceCheck      *time.Time          `json:"last_price_check,omitempty"`
	CountryRestrictions []string            `json:"country_restrictions,omitempty"`
	Images              []string            `json:"images,omitempty"`
	Variants            json.RawMessage     `json:"variants,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// ProductList is one page of products.
type ProductList struct {
	Products   []ProductDTO `json:"products"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// RepriceResult reports a single product's repricing. Priced=false is the
// "no applicable rule" outcome.
type RepriceResult struct {
	Product     *ProductDTO         `json:"product"`
	Priced      bool                `json:"priced"`
	Changed     bool                `json:"changed"`
	Unpublished bool                `json:"unpublished,omitempty"`
	Rejections  []pricing.Rejection `json:"rejections,omitempty"`
}

// RepriceSummary aggregates a vendor-wide repricing pass.
type RepriceSummary struct {
	VendorID    uuid.UUID   `json:"vendor_id"`
	Evaluated   int         `json:"evaluated"`
	Priced      int         `json:"priced"`
	Unpriced    []uuid.UUID `json:"unpriced,omitempty"`
	Changed     int         `json:"changed"`
	Unpublished []uuid.UUID `json:"unpublished,omitempty"`
	Failed      []uuid.UUID `json:"failed,omitempty"`
}

// DeleteResult distinguishes a hard delete from the archive fallback.
type DeleteResult struct {
	Deleted  bool        `json:"deleted"`
	Archived bool        `json:"archived"`
	Product  *ProductDTO `json:"product,omitempty"`
}

func toProductDTO(p *models.CatalogProduct) *ProductDTO {
	return &ProductDTO{
		ID:                  p.ID,
		VendorID:            p.VendorID,
		SupplierProductID:   p.SupplierProductID,
		SupplierURL:         p.SupplierURL,
		Name:                p.Name,
		Description:         p.Description,
		Category:            p.Category,
		ShippingZone:        p.ShippingZone,
		CostPriceCents:      p.CostPriceCents,
		ShippingCostCents:   p.ShippingCostCents,
		SellingPriceCents:   p.SellingPriceCents,
		CostPrice:           money.FormatCents(p.CostPriceCents),
		SellingPrice:        money.FormatCentsPtr(p.SellingPriceCents),
		PricingRuleID:       p.PricingRuleID,
		ObservedCostCents:   p.ObservedCostCents,
		Status:              p.Status,
		PriceChanged:        p.PriceChanged,
		LastPriceCheck:      p.LastPriceCheck,
		CountryRestrictions: []string(p.CountryRestrictions),
		Images:              []string(p.Images),
		Variants:            p.Variants,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

func basisOf(p *models.CatalogProduct) pricing.Basis {
	basis := pricing.Basis{CostCents: p.CostPriceCents, ShippingCents: p.ShippingCostCents}
	if p.Category != nil {
		basis.Category = *p.Category
	}
	if p.ShippingZone != nil {
		basis.ShippingZone = *p.ShippingZone
	}
	return basis
}

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/vendorisland/vendorisland-backend/pkg/enums"
)

// CatalogProduct is a vendor's privately sourced item.
type CatalogProduct struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	VendorID            uuid.UUID           `gorm:"column:vendor_id;type:uuid;not null"`
	SupplierProductID   *string             `gorm:"column:supplier_product_id"`
	SupplierURL         *string             `gorm:"column:supplier_url"`
	Name                string              `gorm:"column:name;not null"`
	Description         *string             `gorm:"column:description"`
	Category            *string             `gorm:"column:category"`
	ShippingZone        *string             `gorm:"column:shipping_zone"`
	CostPriceCents      int64               `gorm:"column:cost_price_cents;not null"`
	ShippingCostCents   int64               `gorm:"column:shipping_cost_cents;not null;default:0"`
	SellingPriceCents   *int64              `gorm:"column:selling_price_cents"`
	PricingRuleID       *uuid.UUID          `gorm:"column:pricing_rule_id;type:uuid"`
	ObservedCostCents   *int64              `gorm:"column:observed_cost_cents"`
	Status              enums.CatalogStatus `gorm:"column:status;type:catalog_status;not null"`
	PriceChanged        bool                `gorm:"column:price_changed;not null;default:false"`
	LastPriceCheck      *time.Time          `gorm:"column:last_price_check"`
	CountryRestrictions pq.StringArray      `gorm:"column:country_restrictions;type:text[]"`
	Images              pq.StringArray      `gorm:"column:images;type:text[]"`
	Variants            json.RawMessage     `gorm:"column:variants;type:jsonb"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (CatalogProduct) TableName() string { return "catalog_products" }

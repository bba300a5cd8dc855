package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OrderItem snapshots the catalog product at purchase time. Later catalog
// edits never touch it.
type OrderItem struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	CatalogProductID  *uuid.UUID      `gorm:"column:catalog_product_id;type:uuid"`
	ProductName       string          `gorm:"column:product_name;not null"`
	UnitPriceCents    int64           `gorm:"column:unit_price_cents;not null"`
	CostPriceCents    int64           `gorm:"column:cost_price_cents;not null"`
	ShippingCostCents int64           `gorm:"column:shipping_cost_cents;not null;default:0"`
	Quantity          int             `gorm:"column:quantity;not null"`
	VariantInfo       json.RawMessage `gorm:"column:variant_info;type:jsonb"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (OrderItem) TableName() string { return "order_items" }

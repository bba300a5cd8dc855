package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vendorisland/vendorisland-backend/pkg/enums"
)

// PricingRule is persisted vendor pricing configuration.
//
// MarkupValue is a percent for percentage rules and a cent amount for fixed
// rules. Tiered rules carry their brackets in Tiers and ignore MarkupValue.
type PricingRule struct {
	ID                 uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	VendorID           uuid.UUID          `gorm:"column:vendor_id;type:uuid;not null"`
	Name               string             `gorm:"column:name;not null"`
	Priority           int                `gorm:"column:priority;not null;default:0"`
	Category           *string            `gorm:"column:category"`
	MinPriceCents      *int64             `gorm:"column:min_price_cents"`
	MaxPriceCents      *int64             `gorm:"column:max_price_cents"`
	ShippingZone       *string            `gorm:"column:shipping_zone"`
	MarkupType         enums.MarkupType   `gorm:"column:markup_type;type:markup_type;not null"`
	MarkupValue        decimal.Decimal    `gorm:"column:markup_value;type:numeric(12,4);not null"`
	Tiers              json.RawMessage    `gorm:"column:tiers;type:jsonb"`
	HandlingFeeCents   int64              `gorm:"column:handling_fee_cents;not null;default:0"`
	MinimumProfitCents int64              `gorm:"column:minimum_profit_cents;not null;default:0"`
	RoundingRule       enums.RoundingRule `gorm:"column:rounding_rule;type:rounding_rule;not null"`
	IsActive           bool               `gorm:"column:is_active;not null;default:true"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (PricingRule) TableName() string { return "pricing_rules" }

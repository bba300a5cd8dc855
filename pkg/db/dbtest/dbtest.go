// Package dbtest opens isolated sqlite databases carrying the service schema.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE wallets (
  id TEXT PRIMARY KEY,
  vendor_id TEXT NOT NULL UNIQUE,
  available_balance_cents INTEGER NOT NULL DEFAULT 0,
  reserved_balance_cents INTEGER NOT NULL DEFAULT 0,
  currency TEXT NOT NULL DEFAULT 'USD',
  last_sequence INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE wallet_transactions (
  id TEXT PRIMARY KEY,
  wallet_id TEXT NOT NULL,
  order_id TEXT,
  sequence INTEGER NOT NULL,
  type TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  reserved_delta_cents INTEGER NOT NULL DEFAULT 0,
  balance_after_cents INTEGER NOT NULL,
  reserved_after_cents INTEGER NOT NULL,
  description TEXT,
  reference_id TEXT,
  created_at DATETIME,
  UNIQUE (wallet_id, sequence)
);`,
	`CREATE UNIQUE INDEX wallet_transactions_reserve_order_uidx ON wallet_transactions (order_id) WHERE type = 'reserve';`,
	`CREATE UNIQUE INDEX wallet_transactions_release_order_uidx ON wallet_transactions (order_id) WHERE type = 'release';`,
	`CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  vendor_id TEXT NOT NULL,
  store_id TEXT,
  status TEXT NOT NULL,
  customer_name TEXT NOT NULL,
  customer_email TEXT NOT NULL,
  shipping_address TEXT,
  subtotal_cents INTEGER NOT NULL,
  shipping_total_cents INTEGER NOT NULL,
  total_paid_cents INTEGER NOT NULL DEFAULT 0,
  supplier_cost_cents INTEGER NOT NULL,
  platform_fee_cents INTEGER NOT NULL DEFAULT 0,
  profit_cents INTEGER,
  reserved_amount_cents INTEGER NOT NULL DEFAULT 0,
  refund_pending INTEGER NOT NULL DEFAULT 0,
  refund_amount_cents INTEGER NOT NULL DEFAULT 0,
  refunded_total_cents INTEGER NOT NULL DEFAULT 0,
  supplier_order_id TEXT,
  tracking_number TEXT,
  tracking_url TEXT,
  notes TEXT,
  paid_at DATETIME,
  funds_reserved_at DATETIME,
  shipped_at DATETIME,
  delivered_at DATETIME,
  settled_at DATETIME,
  cancelled_at DATETIME,
  refunded_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  catalog_product_id TEXT,
  product_name TEXT NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  cost_price_cents INTEGER NOT NULL,
  shipping_cost_cents INTEGER NOT NULL DEFAULT 0,
  quantity INTEGER NOT NULL,
  variant_info TEXT,
  created_at DATETIME
);`,
	`CREATE TABLE catalog_products (
  id TEXT PRIMARY KEY,
  vendor_id TEXT NOT NULL,
  supplier_product_id TEXT,
  supplier_url TEXT,
  name TEXT NOT NULL,
  description TEXT,
  category TEXT,
  shipping_zone TEXT,
  cost_price_cents INTEGER NOT NULL,
  shipping_cost_cents INTEGER NOT NULL DEFAULT 0,
  selling_price_cents INTEGER,
  pricing_rule_id TEXT,
  observed_cost_cents INTEGER,
  status TEXT NOT NULL,
  price_changed INTEGER NOT NULL DEFAULT 0,
  last_price_check DATETIME,
  country_restrictions TEXT,
  images TEXT,
  variants TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE pricing_rules (
  id TEXT PRIMARY KEY,
  vendor_id TEXT NOT NULL,
  name TEXT NOT NULL,
  priority INTEGER NOT NULL DEFAULT 0,
  category TEXT,
  min_price_cents INTEGER,
  max_price_cents INTEGER,
  shipping_zone TEXT,
  markup_type TEXT NOT NULL,
  markup_value TEXT NOT NULL,
  tiers TEXT,
  handling_fee_cents INTEGER NOT NULL DEFAULT 0,
  minimum_profit_cents INTEGER NOT NULL DEFAULT 0,
  rounding_rule TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE deposit_requests (
  id TEXT PRIMARY KEY,
  vendor_id TEXT NOT NULL,
  wallet_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  crypto_type TEXT NOT NULL,
  receipt_url TEXT,
  tx_hash TEXT,
  status TEXT NOT NULL,
  admin_notes TEXT,
  reviewed_by TEXT,
  reviewed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE stores (
  id TEXT PRIMARY KEY,
  vendor_id TEXT NOT NULL,
  name TEXT NOT NULL,
  description TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX stores_vendor_name_key ON stores (vendor_id, lower(name));`,
	`CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	`CREATE TABLE outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL UNIQUE,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`,
}

// Open returns a fresh in-memory database private to the calling test.
// Connections are capped at one so concurrent writers queue instead of
// failing with SQLITE_LOCKED.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}

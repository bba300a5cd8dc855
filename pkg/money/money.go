// Package money converts between integer minor units and the decimal strings
// used at the HTTP boundary. All internal arithmetic stays in cents.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseCents converts a decimal string such as "12.50" to 1250.
func ParseCents(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("amount is required")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", value)
	}
	if d.Exponent() < -2 && !d.Equal(d.Round(2)) {
		return 0, fmt.Errorf("amount %q has more than two decimal places", value)
	}
	return FromDecimal(d), nil
}

// FormatCents renders cents as a fixed two-decimal string.
func FormatCents(cents int64) string {
	return ToDecimal(cents).StringFixed(2)
}

// FormatCentsPtr renders nil as nil.
func FormatCentsPtr(cents *int64) *string {
	if cents == nil {
		return nil
	}
	out := FormatCents(*cents)
	return &out
}

// FromDecimal converts a unit amount to cents, rounding half away from zero.
func FromDecimal(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// ToDecimal converts cents to a unit amount.
func ToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

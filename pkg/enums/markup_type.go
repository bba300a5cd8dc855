package enums

import "fmt"

// MarkupType maps to the markup_type enum in Postgres.
type MarkupType string

const (
	MarkupTypePercentage MarkupType = "percentage"
	MarkupTypeFixed      MarkupType = "fixed"
	MarkupTypeTiered     MarkupType = "tiered"
)

var validMarkupTypes = []MarkupType{
	MarkupTypePercentage,
	MarkupTypeFixed,
	MarkupTypeTiered,
}

// IsValid reports whether the value matches the canonical markup type enum.
func (m MarkupType) IsValid() bool {
	for _, candidate := range validMarkupTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMarkupType converts raw input into MarkupType.
func ParseMarkupType(value string) (MarkupType, error) {
	for _, candidate := range validMarkupTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid markup type %q", value)
}

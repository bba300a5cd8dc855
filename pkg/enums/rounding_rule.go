package enums

import "fmt"

// RoundingRule maps to the rounding_rule enum in Postgres.
type RoundingRule string

const (
	RoundingNone    RoundingRule = "none"
	RoundingUp      RoundingRule = "up"
	RoundingDown    RoundingRule = "down"
	RoundingNearest RoundingRule = "nearest"
	RoundingEnd99   RoundingRule = "end_99"
)

var validRoundingRules = []RoundingRule{
	RoundingNone,
	RoundingUp,
	RoundingDown,
	RoundingNearest,
	RoundingEnd99,
}

// IsValid reports whether the value matches the canonical rounding rule enum.
func (r RoundingRule) IsValid() bool {
	for _, candidate := range validRoundingRules {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRoundingRule converts raw input into RoundingRule.
func ParseRoundingRule(value string) (RoundingRule, error) {
	for _, candidate := range validRoundingRules {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid rounding rule %q", value)
}

package pricing

import "github.com/vendorisland/vendorisland-backend/pkg/enums"

const unit = 100

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Round applies rule to a cent amount.
func Round(cents int64, rule enums.RoundingRule) int64 {
	switch rule {
	case enums.RoundingUp:
		if cents%unit == 0 {
			return cents
		}
		return (floorDiv(cents, unit) + 1) * unit
	case enums.RoundingDown:
		return floorDiv(cents, unit) * unit
	case enums.RoundingNearest:
		return floorDiv(cents+unit/2, unit) * unit
	case enums.RoundingEnd99:
		return floorDiv(cents, unit)*unit + 99
	default:
		return cents
	}
}

// gridFloor returns the largest value rule can produce that is <= cents.
func gridFloor(cents int64, rule enums.RoundingRule) int64 {
	switch rule {
	case enums.RoundingUp, enums.RoundingDown, enums.RoundingNearest:
		return floorDiv(cents, unit) * unit
	case enums.RoundingEnd99:
		g := floorDiv(cents, unit)*unit + 99
		if g > cents {
			g -= unit
		}
		return g
	default:
		return cents
	}
}

// gridCeil returns the smallest value rule can produce that is >= cents.
func gridCeil(cents int64, rule enums.RoundingRule) int64 {
	switch rule {
	case enums.RoundingUp, enums.RoundingDown, enums.RoundingNearest:
		if cents%unit == 0 {
			return cents
		}
		return (floorDiv(cents, unit) + 1) * unit
	case enums.RoundingEnd99:
		return floorDiv(cents, unit)*unit + 99
	default:
		return cents
	}
}

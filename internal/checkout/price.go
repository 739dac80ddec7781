package checkout

import "github.com/shopspring/decimal"

// MinorUnits converts a major-unit price to minor units, rounding half away from zero.
func MinorUnits(price decimal.Decimal) int64 {
	return price.Shift(2).Round(0).IntPart()
}

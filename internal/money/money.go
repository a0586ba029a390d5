// Package money holds the fixed-point helpers shared by the pricing,
// discount, tax and settlement code.  All amounts are decimal.Decimal in
// major currency units; floats never enter the engine.
package money

import "github.com/shopspring/decimal"

// Epsilon absorbs sub-cent rounding when comparing tendered amounts.
var Epsilon = decimal.RequireFromString("0.009")

// Hundred is used for percent arithmetic.
var Hundred = decimal.NewFromInt(100)

// Round rounds to two decimal places, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Clamp limits d to the closed interval [lo, hi].
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

// NonNegative returns d, or zero when d is negative.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Covers reports whether paid is at least due once Epsilon is allowed for.
func Covers(paid, due decimal.Decimal) bool {
	return !paid.Add(Epsilon).LessThan(due)
}

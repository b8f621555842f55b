// Package money holds the decimal arithmetic shared by quotation, proforma
// invoice, and payment computations. All totals are stored and compared at
// currency-unit granularity so amendments never accumulate sub-unit drift.
package money

import "github.com/shopspring/decimal"

// Tolerance is the maximum acceptable gap, in currency units, between a
// stored total and its recomputed value before the two are considered
// inconsistent.
var Tolerance = decimal.NewFromInt(1)

// RoundCurrency rounds to the nearest whole currency unit, half away from
// zero.
func RoundCurrency(x decimal.Decimal) decimal.Decimal {
	return x.Round(0)
}

// Percent applies rate (expressed in percent) to base.
func Percent(base, rate decimal.Decimal) decimal.Decimal {
	return base.Mul(rate).Div(decimal.NewFromInt(100))
}

// SplitInclusive back-calculates the tax-exclusive portion of a
// tax-inclusive total: taxable = total / (1 + rate/100), tax = total − taxable.
// Re-applying it with rate 0 to an already-exclusive value returns the value
// unchanged, so re-derivation is safe.
func SplitInclusive(total, taxRatePercent decimal.Decimal) (taxable, tax decimal.Decimal) {
	divisor := decimal.NewFromInt(1).Add(taxRatePercent.Div(decimal.NewFromInt(100)))
	taxable = total.Div(divisor)
	tax = total.Sub(taxable)
	return taxable, tax
}

// Prorate linearly rescales an amount from an original quantity to a new
// quantity, preserving the effective unit rate even when the amount carries
// item-level adjustments beyond unit price times quantity.
func Prorate(amount decimal.Decimal, originalQty, newQty int64) decimal.Decimal {
	if originalQty == 0 {
		return decimal.Zero
	}
	return amount.Div(decimal.NewFromInt(originalQty)).Mul(decimal.NewFromInt(newQty))
}

// WithinTolerance reports whether two amounts agree within Tolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

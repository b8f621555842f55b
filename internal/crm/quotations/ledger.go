package quotations

import (
	"github.com/shopspring/decimal"

	"github.com/meridian-crm/meridian/internal/money"
)

// Totals is the derived financial summary of an item set.
type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxableAmount  decimal.Decimal `json:"taxable_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Total          decimal.Decimal `json:"total_amount"`
}

// LedgerInput carries the rates and, when the source record stored explicit
// amounts, those amounts. An explicit value always wins over recomputing
// from the rate: a stored figure is never silently re-derived.
type LedgerInput struct {
	DiscountRate     decimal.Decimal
	TaxRate          decimal.Decimal
	ExplicitDiscount *decimal.Decimal
	ExplicitTax      *decimal.Decimal
}

// ComputeTotals derives subtotal, discount, taxable amount, tax, and total
// from an effective item set. Deterministic for a given item set and rates;
// no component of the result is ever negative.
func ComputeTotals(items []Item, in LedgerInput) Totals {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.TaxableAmount)
	}

	var discount decimal.Decimal
	if in.ExplicitDiscount != nil {
		discount = *in.ExplicitDiscount
	} else {
		discount = money.RoundCurrency(money.Percent(subtotal, in.DiscountRate))
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}

	taxable := subtotal.Sub(discount)
	if taxable.IsNegative() {
		taxable = decimal.Zero
	}

	var tax decimal.Decimal
	if in.ExplicitTax != nil {
		tax = *in.ExplicitTax
	} else {
		tax = money.RoundCurrency(money.Percent(taxable, in.TaxRate))
	}
	if tax.IsNegative() {
		tax = decimal.Zero
	}

	return Totals{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		TaxableAmount:  taxable,
		TaxAmount:      tax,
		Total:          taxable.Add(tax),
	}
}

// VerifyStored compares stored header totals against a recomputation over
// the same items. It reports false when any figure drifts beyond the one
// unit rounding tolerance; callers log and surface the drift but never
// overwrite the stored history without an explicit correction.
func VerifyStored(q Quotation) (Totals, bool) {
	// The stored discount is treated as explicit: the check is about whether
	// the item sum, tax, and total still cohere, not about re-litigating the
	// discount policy in force when the record was written.
	discount := q.DiscountAmount
	recomputed := ComputeTotals(q.Items, LedgerInput{
		DiscountRate:     q.DiscountRate,
		TaxRate:          q.TaxRate,
		ExplicitDiscount: &discount,
	})
	ok := money.WithinTolerance(recomputed.Subtotal, q.Subtotal) &&
		money.WithinTolerance(recomputed.TaxAmount, q.TaxAmount) &&
		money.WithinTolerance(recomputed.Total, q.TotalAmount)
	return recomputed, ok
}

package money

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var inr = message.NewPrinter(language.MustParse("en-IN"))

// FormatINR renders an amount with Indian digit grouping for display in
// payment timelines and summaries, e.g. 1234567 -> "₹12,34,567".
func FormatINR(amount decimal.Decimal) string {
	return inr.Sprintf("₹%d", RoundCurrency(amount).IntPart())
}

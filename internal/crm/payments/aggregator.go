package payments

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/meridian-crm/meridian/internal/crm/docstate"
	"github.com/meridian-crm/meridian/internal/money"
)

// Summary is the aggregate position of a quotation's payments against its
// total. Remaining and Credit are never both positive: an overpayment is
// usable credit, not a negative balance.
type Summary struct {
	TotalPaid decimal.Decimal `json:"total_paid"`
	Remaining decimal.Decimal `json:"remaining"`
	Credit    decimal.Decimal `json:"credit"`

	// Non-approved and refund entries are surfaced separately so callers can
	// render awaiting-approval, rejected, and refund states distinctly from
	// the due figure. They are never summed into TotalPaid.
	Pending  []Payment `json:"pending,omitempty"`
	Rejected []Payment `json:"rejected,omitempty"`
	Refunds  []Payment `json:"refunds,omitempty"`
}

// Aggregate computes the paid/remaining/credit position. Only approved,
// non-refund installments count toward TotalPaid.
func Aggregate(paymentList []Payment, quotationTotal decimal.Decimal) Summary {
	s := Summary{
		TotalPaid: decimal.Zero,
		Remaining: decimal.Zero,
		Credit:    decimal.Zero,
	}
	for _, p := range paymentList {
		if p.IsRefund {
			s.Refunds = append(s.Refunds, p)
			continue
		}
		switch p.ApprovalStatus {
		case docstate.PaymentApproved:
			s.TotalPaid = s.TotalPaid.Add(p.InstallmentAmount)
		case docstate.PaymentPending:
			s.Pending = append(s.Pending, p)
		case docstate.PaymentRejected:
			s.Rejected = append(s.Rejected, p)
		}
	}

	remaining := quotationTotal.Sub(s.TotalPaid)
	if remaining.IsPositive() {
		s.Remaining = remaining
	} else {
		s.Credit = remaining.Neg()
	}
	return s
}

// TimelineEntry is one approved installment in display order.
type TimelineEntry struct {
	Payment       Payment         `json:"payment"`
	Label         string          `json:"label"`
	Cumulative    decimal.Decimal `json:"cumulative"`
	AmountDisplay string          `json:"amount_display"`
}

// Timeline walks approved, non-refund payments oldest to newest with a
// running cumulative sum. An installment is labeled "Full Payment" when the
// cumulative reaches the quotation total at that point (and the total is
// positive); otherwise it is "Advance Payment #k", with k counting advances
// seen so far.
func Timeline(paymentList []Payment, quotationTotal decimal.Decimal) []TimelineEntry {
	approved := make([]Payment, 0, len(paymentList))
	for _, p := range paymentList {
		if p.IsRefund || p.ApprovalStatus != docstate.PaymentApproved {
			continue
		}
		approved = append(approved, p)
	}
	sort.SliceStable(approved, func(i, j int) bool {
		if approved[i].PaymentDate.Equal(approved[j].PaymentDate) {
			return approved[i].ID < approved[j].ID
		}
		return approved[i].PaymentDate.Before(approved[j].PaymentDate)
	})

	entries := make([]TimelineEntry, 0, len(approved))
	cumulative := decimal.Zero
	advances := 0
	for _, p := range approved {
		cumulative = cumulative.Add(p.InstallmentAmount)
		var label string
		if quotationTotal.IsPositive() && cumulative.GreaterThanOrEqual(quotationTotal) {
			label = "Full Payment"
		} else {
			advances++
			label = fmt.Sprintf("Advance Payment #%d", advances)
		}
		entries = append(entries, TimelineEntry{
			Payment:       p,
			Label:         label,
			Cumulative:    cumulative,
			AmountDisplay: money.FormatINR(p.InstallmentAmount),
		})
	}
	return entries
}

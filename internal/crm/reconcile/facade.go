package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-crm/meridian/internal/crm/payments"
	"github.com/meridian-crm/meridian/internal/crm/proforma"
	"github.com/meridian-crm/meridian/internal/crm/quotations"
	"github.com/meridian-crm/meridian/internal/shared"
)

// QuotationSource is the slice of the quotation service the facade reads.
type QuotationSource interface {
	Get(ctx context.Context, id int64) (*quotations.Quotation, error)
	List(ctx context.Context, req quotations.ListQuotationsRequest) ([]quotations.Quotation, int, error)
}

type PISource interface {
	ListByQuotation(ctx context.Context, quotationID int64) ([]proforma.ProformaInvoice, error)
}

type PaymentSource interface {
	ListByQuotation(ctx context.Context, quotationID int64) ([]payments.Payment, error)
}

// Facade composes the quotation ledger, the PI amendment chain, and the
// payment aggregator into the read views the rest of the system consumes.
// It owns no state of its own: every answer is derived from the three
// document stores on each call, optionally short-circuited by the summary
// cache.
type Facade struct {
	logger        *slog.Logger
	quotationsSvc QuotationSource
	proformaSvc   PISource
	paymentsSvc   PaymentSource
	summaries     *SummaryCache
}

func NewFacade(logger *slog.Logger, q QuotationSource, p PISource, pay PaymentSource, summaries *SummaryCache) *Facade {
	return &Facade{
		logger:        logger,
		quotationsSvc: q,
		proformaSvc:   p,
		paymentsSvc:   pay,
		summaries:     summaries,
	}
}

// BalanceView is the full reconciliation picture for one quotation: which
// document currently carries the amount due, and how payments stand against
// it.
type BalanceView struct {
	QuotationID    int64            `json:"quotation_id"`
	EffectiveTotal decimal.Decimal  `json:"effective_total"`
	ActivePIID     *int64           `json:"active_pi_id,omitempty"`
	Payments       payments.Summary `json:"payments"`
}

type records struct {
	quotation *quotations.Quotation
	pis       []proforma.ProformaInvoice
	payments  []payments.Payment
}

// load fetches the three record sets for a quotation concurrently. A missing
// quotation fails the whole load; the PI and payment lists may legitimately
// be empty.
func (f *Facade) load(ctx context.Context, quotationID int64) (records, error) {
	var rec records
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q, err := f.quotationsSvc.Get(ctx, quotationID)
		if err != nil {
			return fmt.Errorf("quotation %d: %w", quotationID, err)
		}
		rec.quotation = q
		return nil
	})
	g.Go(func() error {
		pis, err := f.proformaSvc.ListByQuotation(ctx, quotationID)
		if err != nil {
			return fmt.Errorf("proforma invoices for quotation %d: %w", quotationID, err)
		}
		rec.pis = pis
		return nil
	})
	g.Go(func() error {
		paid, err := f.paymentsSvc.ListByQuotation(ctx, quotationID)
		if err != nil {
			return fmt.Errorf("payments for quotation %d: %w", quotationID, err)
		}
		rec.payments = paid
		return nil
	})
	if err := g.Wait(); err != nil {
		return records{}, err
	}
	return rec, nil
}

// effectiveTotal resolves the amount due for a quotation: the active PI's
// total when an approved PI (or its latest approved revision) exists,
// otherwise the quotation's own stored total. The stored figure is checked
// against a recomputation over the items; on drift beyond the rounding
// tolerance the recomputed value wins and the drift is logged.
func (f *Facade) effectiveTotal(rec records) (decimal.Decimal, *int64) {
	if active := proforma.ResolveActive(rec.pis); active != nil {
		id := active.ID
		return active.TotalAmount, &id
	}
	q := rec.quotation
	if len(q.Items) == 0 {
		return q.TotalAmount, nil
	}
	recomputed, ok := quotations.VerifyStored(*q)
	if !ok {
		f.logger.Warn("stored totals drift from items, using recomputed",
			slog.Int64("quotation_id", q.ID),
			slog.String("stored_total", q.TotalAmount.String()),
			slog.String("recomputed_total", recomputed.Total.String()))
		return recomputed.Total, nil
	}
	return q.TotalAmount, nil
}

// Balance reconciles payments against the effective total for a quotation.
func (f *Facade) Balance(ctx context.Context, quotationID int64) (*BalanceView, error) {
	rec, err := f.load(ctx, quotationID)
	if err != nil {
		return nil, err
	}
	total, activeID := f.effectiveTotal(rec)
	return &BalanceView{
		QuotationID:    quotationID,
		EffectiveTotal: total,
		ActivePIID:     activeID,
		Payments:       payments.Aggregate(rec.payments, total),
	}, nil
}

// Summary serves GET /quotations/{id}/summary: the compact customer-facing
// balance. It consults the cache first and falls back to a live
// reconciliation when the cache misses or fails.
func (f *Facade) Summary(ctx context.Context, quotationID int64) (quotations.SummaryResponse, error) {
	if f.summaries != nil {
		if cached, ok := f.summaries.Get(ctx, quotationID); ok {
			return cached, nil
		}
	}
	bal, err := f.Balance(ctx, quotationID)
	if err != nil {
		return quotations.SummaryResponse{}, err
	}
	resp := quotations.SummaryResponse{
		QuotationID: quotationID,
		Total:       bal.EffectiveTotal,
		Paid:        bal.Payments.TotalPaid,
		Remaining:   bal.Payments.Remaining,
		Credit:      bal.Payments.Credit,
	}
	if f.summaries != nil {
		f.summaries.Set(ctx, resp)
	}
	return resp, nil
}

// ActivePI returns the PI currently in force for a quotation, walking the
// approved revision chain to its tip. Nil result with nil error means no PI
// has been approved yet.
func (f *Facade) ActivePI(ctx context.Context, quotationID int64) (*proforma.ProformaInvoice, error) {
	pis, err := f.proformaSvc.ListByQuotation(ctx, quotationID)
	if err != nil {
		return nil, err
	}
	return proforma.ResolveActive(pis), nil
}

// Timeline returns the approved payment installments for a quotation in
// chronological order with advance/full labels and running totals.
func (f *Facade) Timeline(ctx context.Context, quotationID int64) ([]payments.TimelineEntry, error) {
	rec, err := f.load(ctx, quotationID)
	if err != nil {
		return nil, err
	}
	total, _ := f.effectiveTotal(rec)
	return payments.Timeline(rec.payments, total), nil
}

// CustomerCredit is the per-quotation credit breakdown for one customer.
type CustomerCredit struct {
	CustomerID  int64             `json:"customer_id"`
	TotalCredit decimal.Decimal   `json:"total_credit"`
	Quotations  []QuotationCredit `json:"quotations,omitempty"`
}

type QuotationCredit struct {
	QuotationID int64           `json:"quotation_id"`
	Credit      decimal.Decimal `json:"credit"`
}

// Credit sums overpayment credit across a customer's quotations. Only
// quotations whose payments exceed the effective total contribute.
func (f *Facade) Credit(ctx context.Context, customerID int64) (*CustomerCredit, error) {
	qs, _, err := f.quotationsSvc.List(ctx, quotations.ListQuotationsRequest{
		CustomerID: &customerID,
		Limit:      creditScanLimit,
	})
	if err != nil {
		return nil, err
	}
	out := &CustomerCredit{CustomerID: customerID, TotalCredit: decimal.Zero}
	for _, q := range qs {
		bal, err := f.Balance(ctx, q.ID)
		if err != nil {
			// A quotation deleted between the list and the balance read is
			// skipped rather than failing the whole credit view.
			if errors.Is(err, shared.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if bal.Payments.Credit.IsPositive() {
			out.TotalCredit = out.TotalCredit.Add(bal.Payments.Credit)
			out.Quotations = append(out.Quotations, QuotationCredit{
				QuotationID: q.ID,
				Credit:      bal.Payments.Credit,
			})
		}
	}
	return out, nil
}

const creditScanLimit = 500

package proforma

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-crm/meridian/internal/crm/docstate"
	"github.com/meridian-crm/meridian/internal/crm/quotations"
	"github.com/meridian-crm/meridian/internal/money"
	"github.com/meridian-crm/meridian/internal/shared"
)

const approvalModule = "crm.proforma"

// QuotationSource loads the quotation a PI belongs to. The quotation's
// current items are the source of truth when resolving revision item sets.
type QuotationSource interface {
	Get(ctx context.Context, id int64) (*quotations.Quotation, error)
}

// ApprovalSink records submit/approve/reject history.
type ApprovalSink interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// CacheInvalidator drops derived balance entries for a quotation after a
// write that changes them.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, quotationID int64)
}

// Service handles proforma invoice business logic, including the revision
// lifecycle.
type Service struct {
	repo       Repository
	quotations QuotationSource
	approvals  ApprovalSink
	cache      CacheInvalidator
}

// NewService builds a Service instance.
func NewService(repo Repository, quotationSource QuotationSource, approvals ApprovalSink) *Service {
	return &Service{repo: repo, quotations: quotationSource, approvals: approvals}
}

// SetCacheInvalidator attaches the summary cache. Optional: without it
// writes simply skip invalidation.
func (s *Service) SetCacheInvalidator(c CacheInvalidator) {
	s.cache = c
}

func (s *Service) invalidate(ctx context.Context, quotationID int64) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, quotationID)
	}
}

// CreateFromQuotation opens the original PI for a quotation. The quotation
// must have cleared verification; its stored totals carry over unchanged.
func (s *Service) CreateFromQuotation(ctx context.Context, quotationID int64, actor shared.Actor) (*ProformaInvoice, error) {
	q, err := s.quotations.Get(ctx, quotationID)
	if err != nil {
		return nil, fmt.Errorf("get quotation: %w", err)
	}
	switch q.Status {
	case docstate.QuotationApproved, docstate.QuotationSent, docstate.QuotationAccepted:
	default:
		return nil, fmt.Errorf("%w: quotation %d is %s, a proforma invoice requires an approved quotation",
			shared.ErrStateConflict, quotationID, q.Status)
	}

	pi := ProformaInvoice{
		QuotationID: quotationID,
		Status:      docstate.PIPending,
		Subtotal:    q.Subtotal,
		TaxAmount:   q.TaxAmount,
		TotalAmount: q.TotalAmount,
		CreatedBy:   actor.ID,
	}

	var piID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		seq, err := repo.NextSequence(ctx)
		if err != nil {
			return fmt.Errorf("next pi sequence: %w", err)
		}
		pi.PINumber = PINumber(seq, time.Now())
		piID, err = repo.Create(ctx, pi)
		if err != nil {
			return fmt.Errorf("create proforma invoice: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, piID)
}

// CreateRevision computes and persists a revision of parentID. The number
// crunching is pure (ComputeRevision); the write is guarded inside one
// transaction so two racing revisions against the same parent cannot both
// land: the parent must still be approved and not already superseded or
// shadowed by an in-flight revision.
func (s *Service) CreateRevision(ctx context.Context, parentID int64, req CreateRevisionRequest, actor shared.Actor) (*ProformaInvoice, error) {
	parent, err := s.repo.Get(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("get parent pi: %w", err)
	}

	q, err := s.quotations.Get(ctx, parent.QuotationID)
	if err != nil {
		return nil, fmt.Errorf("get quotation: %w", err)
	}

	detail := req.Detail()
	rev, err := ComputeRevision(q.Items, detail, quotations.LedgerInput{
		DiscountRate: q.DiscountRate,
		TaxRate:      q.TaxRate,
	})
	if err != nil {
		return nil, err
	}

	if err := checkEchoedTotals(req, rev.Totals); err != nil {
		return nil, err
	}

	pi := ProformaInvoice{
		QuotationID: parent.QuotationID,
		Status:      docstate.PIPending,
		Subtotal:    rev.Totals.Subtotal,
		TaxAmount:   rev.Totals.TaxAmount,
		TotalAmount: rev.Totals.Total,
		ParentPIID:  &parentID,
		Amendment:   &detail,
		CreatedBy:   actor.ID,
	}

	var piID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		current, err := repo.Get(ctx, parentID)
		if err != nil {
			return fmt.Errorf("recheck parent pi: %w", err)
		}
		if current.Status != docstate.PIApproved {
			return fmt.Errorf("%w: parent pi %d is no longer approved", shared.ErrConflict, parentID)
		}
		open, err := repo.HasOpenRevision(ctx, parentID)
		if err != nil {
			return fmt.Errorf("check open revisions: %w", err)
		}
		if open {
			return fmt.Errorf("%w: parent pi %d already has a revision in flight", shared.ErrConflict, parentID)
		}

		seq, err := repo.NextSequence(ctx)
		if err != nil {
			return fmt.Errorf("next pi sequence: %w", err)
		}
		pi.PINumber = PINumber(seq, time.Now())
		piID, err = repo.Create(ctx, pi)
		if err != nil {
			return fmt.Errorf("create revision pi: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, piID)
}

// checkEchoedTotals compares caller-supplied totals with the engine's, within
// the one unit rounding tolerance.
func checkEchoedTotals(req CreateRevisionRequest, totals quotations.Totals) error {
	check := func(name string, got *decimal.Decimal, want decimal.Decimal) error {
		if got == nil {
			return nil
		}
		if !money.WithinTolerance(*got, want) {
			return fmt.Errorf("%w: caller %s %s disagrees with recomputed %s",
				shared.ErrArithmeticInconsistency, name, got.String(), want.String())
		}
		return nil
	}
	if err := check("subtotal", req.Subtotal, totals.Subtotal); err != nil {
		return err
	}
	if err := check("tax_amount", req.TaxAmount, totals.TaxAmount); err != nil {
		return err
	}
	return check("total_amount", req.TotalAmount, totals.Total)
}

func (s *Service) transition(ctx context.Context, id int64, to docstate.PIStatus, actor shared.Actor, action shared.ApprovalAction, note string) (*ProformaInvoice, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get pi: %w", err)
	}
	if err := docstate.AuthorizePI(existing.Status, to, actor.Role); err != nil {
		return nil, err
	}
	if to == docstate.PIPendingApproval && existing.IsRevision() {
		// A revision may only be submitted while its parent is approved.
		parent, err := s.repo.Get(ctx, *existing.ParentPIID)
		if err != nil {
			return nil, fmt.Errorf("get parent pi: %w", err)
		}
		if parent.Status != docstate.PIApproved {
			return nil, fmt.Errorf("%w: parent pi %d is %s, revisions require an approved parent",
				shared.ErrStateConflict, parent.ID, parent.Status)
		}
	}
	if err := s.repo.UpdateStatus(ctx, id, existing.Status, to); err != nil {
		return nil, err
	}
	if s.approvals != nil {
		if err := s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  approvalModule,
			RefID:   id,
			ActorID: actor.ID,
			Action:  action,
			Note:    note,
			At:      time.Now(),
		}); err != nil {
			return nil, fmt.Errorf("record approval: %w", err)
		}
	}
	s.invalidate(ctx, existing.QuotationID)
	return s.repo.Get(ctx, id)
}

// Submit sends a PI (original or revision) for approval.
func (s *Service) Submit(ctx context.Context, id int64, actor shared.Actor) (*ProformaInvoice, error) {
	return s.transition(ctx, id, docstate.PIPendingApproval, actor, shared.ApprovalSubmit, "")
}

// Approve finalizes a PI. Once an approved revision exists it, not its
// parent, is the active PI for payment purposes.
func (s *Service) Approve(ctx context.Context, id int64, actor shared.Actor) (*ProformaInvoice, error) {
	return s.transition(ctx, id, docstate.PIApproved, actor, shared.ApprovalApprove, "")
}

// Reject declines a submitted PI.
func (s *Service) Reject(ctx context.Context, id int64, actor shared.Actor, reason string) (*ProformaInvoice, error) {
	return s.transition(ctx, id, docstate.PIRejected, actor, shared.ApprovalReject, reason)
}

func (s *Service) Get(ctx context.Context, id int64) (*ProformaInvoice, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByQuotation(ctx context.Context, quotationID int64) ([]ProformaInvoice, error) {
	return s.repo.ListByQuotation(ctx, quotationID)
}

// Effective renders a PI for display: the quotation's current items plus the
// stored amendment detail, recomputed on every read.
func (s *Service) Effective(ctx context.Context, id int64) (*EffectiveView, error) {
	pi, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get pi: %w", err)
	}
	q, err := s.quotations.Get(ctx, pi.QuotationID)
	if err != nil {
		return nil, fmt.Errorf("get quotation: %w", err)
	}
	items, totals, err := ResolveEffectiveItems(q.Items, pi.Amendment, quotations.LedgerInput{
		DiscountRate: q.DiscountRate,
		TaxRate:      q.TaxRate,
	})
	if err != nil {
		return nil, err
	}
	return &EffectiveView{PI: *pi, EffectiveItems: items, Totals: totals}, nil
}

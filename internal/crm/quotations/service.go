package quotations

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-crm/meridian/internal/crm/docstate"
	"github.com/meridian-crm/meridian/internal/shared"
)

const approvalModule = "crm.quotation"

// Service handles quotation business logic. All totals written here come
// from ComputeTotals over the normalized item set; nothing outside this
// package derives quotation figures.
type Service struct {
	repo      Repository
	approvals ApprovalSink
	cache     CacheInvalidator
}

// ApprovalSink records submit/approve/reject history. Satisfied by
// shared.ApprovalRecorder.
type ApprovalSink interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// CacheInvalidator drops derived balance entries for a quotation after a
// write that changes them.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, quotationID int64)
}

// NewService builds a Service instance.
func NewService(repo Repository, approvals ApprovalSink) *Service {
	return &Service{repo: repo, approvals: approvals}
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

func (s *Service) Create(ctx context.Context, req CreateQuotationRequest, actor shared.Actor) (*Quotation, error) {
	items, err := NormalizeItems(req.Items, 0)
	if err != nil {
		return nil, err
	}

	taxRate := DefaultGSTRate
	if req.TaxRate != nil {
		taxRate = *req.TaxRate
	}
	totals := ComputeTotals(items, LedgerInput{DiscountRate: req.DiscountRate, TaxRate: taxRate})

	quotation := Quotation{
		CustomerID:     req.CustomerID,
		LeadID:         req.LeadID,
		Status:         docstate.QuotationDraft,
		DiscountRate:   req.DiscountRate,
		TaxRate:        taxRate,
		Subtotal:       totals.Subtotal,
		DiscountAmount: totals.DiscountAmount,
		TaxableAmount:  totals.TaxableAmount,
		TaxAmount:      totals.TaxAmount,
		TotalAmount:    totals.Total,
		Notes:          req.Notes,
		CreatedBy:      actor.ID,
	}

	var quotationID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		seq, err := repo.NextSequence(ctx)
		if err != nil {
			return fmt.Errorf("next quotation sequence: %w", err)
		}
		quotation.QuoteNumber = QuoteNumber(seq, time.Now())

		quotationID, err = repo.Create(ctx, quotation)
		if err != nil {
			return fmt.Errorf("create quotation: %w", err)
		}
		if err := repo.ReplaceItems(ctx, quotationID, items); err != nil {
			return fmt.Errorf("insert quotation items: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, quotationID)
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateQuotationRequest, actor shared.Actor) (*Quotation, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quotation: %w", err)
	}
	if !existing.Status.Editable() {
		return nil, fmt.Errorf("%w: only draft quotations can be edited", shared.ErrStateConflict)
	}

	updated := *existing
	if req.DiscountRate != nil {
		updated.DiscountRate = *req.DiscountRate
	}
	if req.TaxRate != nil {
		updated.TaxRate = *req.TaxRate
	}
	if req.Notes != nil {
		updated.Notes = req.Notes
	}

	items := existing.Items
	if req.Items != nil {
		items, err = NormalizeItems(*req.Items, id)
		if err != nil {
			return nil, err
		}
	}

	totals := ComputeTotals(items, LedgerInput{DiscountRate: updated.DiscountRate, TaxRate: updated.TaxRate})
	updated.Subtotal = totals.Subtotal
	updated.DiscountAmount = totals.DiscountAmount
	updated.TaxableAmount = totals.TaxableAmount
	updated.TaxAmount = totals.TaxAmount
	updated.TotalAmount = totals.Total

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.UpdateHeader(ctx, updated); err != nil {
			return fmt.Errorf("update quotation: %w", err)
		}
		if req.Items != nil {
			if err := repo.ReplaceItems(ctx, id, items); err != nil {
				return fmt.Errorf("replace quotation items: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return s.repo.Get(ctx, id)
}

func (s *Service) transition(ctx context.Context, id int64, to docstate.QuotationStatus, actor shared.Actor, action shared.ApprovalAction, note string) (*Quotation, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quotation: %w", err)
	}
	if err := docstate.AuthorizeQuotation(existing.Status, to, actor.Role); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, id, existing.Status, to); err != nil {
		return nil, err
	}
	if s.approvals != nil && action != "" {
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
	return s.repo.Get(ctx, id)
}

// Submit sends a draft for verification.
func (s *Service) Submit(ctx context.Context, id int64, actor shared.Actor) (*Quotation, error) {
	return s.transition(ctx, id, docstate.QuotationPendingVerification, actor, shared.ApprovalSubmit, "")
}

// Approve verifies a submitted quotation.
func (s *Service) Approve(ctx context.Context, id int64, actor shared.Actor) (*Quotation, error) {
	return s.transition(ctx, id, docstate.QuotationApproved, actor, shared.ApprovalApprove, "")
}

// Reject declines a submitted quotation.
func (s *Service) Reject(ctx context.Context, id int64, actor shared.Actor, reason string) (*Quotation, error) {
	return s.transition(ctx, id, docstate.QuotationRejected, actor, shared.ApprovalReject, reason)
}

// Send marks an approved quotation as sent to the customer.
func (s *Service) Send(ctx context.Context, id int64, actor shared.Actor) (*Quotation, error) {
	return s.transition(ctx, id, docstate.QuotationSent, actor, "", "")
}

// Accept records customer acceptance of a sent quotation.
func (s *Service) Accept(ctx context.Context, id int64, actor shared.Actor) (*Quotation, error) {
	return s.transition(ctx, id, docstate.QuotationAccepted, actor, "", "")
}

// Cancel voids a quotation from any non-terminal state.
func (s *Service) Cancel(ctx context.Context, id int64, actor shared.Actor, reason string) (*Quotation, error) {
	return s.transition(ctx, id, docstate.QuotationCancelled, actor, shared.ApprovalCancel, reason)
}

func (s *Service) Get(ctx context.Context, id int64) (*Quotation, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListQuotationsRequest) ([]Quotation, int, error) {
	return s.repo.List(ctx, req)
}

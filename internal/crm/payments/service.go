package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-crm/meridian/internal/crm/docstate"
	"github.com/meridian-crm/meridian/internal/crm/proforma"
	"github.com/meridian-crm/meridian/internal/shared"
)

const (
	approvalModule    = "crm.payment"
	idempotencyModule = "crm.payment"
)

// PISource loads the proforma invoice a payment is recorded against.
type PISource interface {
	Get(ctx context.Context, id int64) (*proforma.ProformaInvoice, error)
}

// IdempotencySink rejects duplicate caller-supplied keys. Satisfied by
// shared.IdempotencyStore.
type IdempotencySink interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// ApprovalSink records approve/reject history.
type ApprovalSink interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// CacheInvalidator drops derived balance entries for a quotation after a
// write that changes them.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, quotationID int64)
}

// CreatePaymentRequest is the body of POST /payments.
type CreatePaymentRequest struct {
	QuotationID       int64           `json:"quotation_id" validate:"required,gt=0"`
	PIID              int64           `json:"pi_id" validate:"required,gt=0"`
	LeadID            *int64          `json:"lead_id,omitempty"`
	InstallmentAmount decimal.Decimal `json:"installment_amount"`
	PaymentMethod     string          `json:"payment_method" validate:"required,max=50"`
	PaymentReference  string          `json:"payment_reference" validate:"required,max=100"`
	PaymentDate       time.Time       `json:"payment_date" validate:"required"`
	IsRefund          bool            `json:"is_refund"`
	// IdempotencyKey is the caller-supplied retry token. Optional: without
	// it duplicates are still rejected on (quotation_id, payment_reference).
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Service handles payment business logic.
type Service struct {
	repo        Repository
	pis         PISource
	idempotency IdempotencySink
	approvals   ApprovalSink
	cache       CacheInvalidator
}

// NewService builds a Service instance.
func NewService(repo Repository, pis PISource, idempotency IdempotencySink, approvals ApprovalSink) *Service {
	return &Service{repo: repo, pis: pis, idempotency: idempotency, approvals: approvals}
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

// Create records a payment in pending state. A payment must reference a PI
// in approved state belonging to the same quotation; anything else is
// rejected before any write, never accepted with a dangling PI reference.
func (s *Service) Create(ctx context.Context, req CreatePaymentRequest, actor shared.Actor) (*Payment, error) {
	if !req.InstallmentAmount.IsPositive() {
		return nil, fmt.Errorf("%w: installment amount must be positive", shared.ErrValidation)
	}

	pi, err := s.pis.Get(ctx, req.PIID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: pi %d does not exist", shared.ErrValidation, req.PIID)
		}
		return nil, fmt.Errorf("get pi: %w", err)
	}
	if pi.QuotationID != req.QuotationID {
		return nil, fmt.Errorf("%w: pi %d belongs to quotation %d, not %d",
			shared.ErrValidation, req.PIID, pi.QuotationID, req.QuotationID)
	}
	if pi.Status != docstate.PIApproved {
		return nil, fmt.Errorf("%w: pi %d is %s, payments require an approved pi",
			shared.ErrStateConflict, req.PIID, pi.Status)
	}

	if s.idempotency != nil && req.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, req.IdempotencyKey, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return nil, fmt.Errorf("%w: payment already recorded for key %s", shared.ErrConflict, req.IdempotencyKey)
			}
			return nil, fmt.Errorf("idempotency check: %w", err)
		}
	}

	id, err := s.repo.Create(ctx, Payment{
		QuotationID:       req.QuotationID,
		PIID:              req.PIID,
		LeadID:            req.LeadID,
		InstallmentAmount: req.InstallmentAmount,
		PaymentMethod:     req.PaymentMethod,
		PaymentReference:  req.PaymentReference,
		ApprovalStatus:    docstate.PaymentPending,
		PaymentDate:       req.PaymentDate,
		IsRefund:          req.IsRefund,
		CreatedBy:         actor.ID,
	})
	if err != nil {
		// The key must not burn when the insert itself failed, or a clean
		// retry would be refused.
		if s.idempotency != nil && req.IdempotencyKey != "" {
			_ = s.idempotency.Delete(ctx, req.IdempotencyKey)
		}
		return nil, fmt.Errorf("create payment: %w", err)
	}
	s.invalidate(ctx, req.QuotationID)
	return s.repo.Get(ctx, id)
}

func (s *Service) transition(ctx context.Context, id int64, to docstate.PaymentStatus, actor shared.Actor, action shared.ApprovalAction, note string) (*Payment, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if err := docstate.AuthorizePayment(existing.ApprovalStatus, to, actor.Role); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, id, existing.ApprovalStatus, to); err != nil {
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

// Approve confirms a pending payment. Approved payments are immutable from
// here on.
func (s *Service) Approve(ctx context.Context, id int64, actor shared.Actor) (*Payment, error) {
	return s.transition(ctx, id, docstate.PaymentApproved, actor, shared.ApprovalApprove, "")
}

// Reject declines a pending payment.
func (s *Service) Reject(ctx context.Context, id int64, actor shared.Actor, reason string) (*Payment, error) {
	return s.transition(ctx, id, docstate.PaymentRejected, actor, shared.ApprovalReject, reason)
}

func (s *Service) Get(ctx context.Context, id int64) (*Payment, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByQuotation(ctx context.Context, quotationID int64) ([]Payment, error) {
	return s.repo.ListByQuotation(ctx, quotationID)
}

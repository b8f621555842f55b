package payments

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-crm/meridian/internal/crm/docstate"
	"github.com/meridian-crm/meridian/internal/crm/proforma"
	"github.com/meridian-crm/meridian/internal/shared"
)

type memoryPaymentRepo struct {
	payments map[int64]*Payment
	refs     map[string]bool
	nextID   int64
}

func newMemoryPaymentRepo() *memoryPaymentRepo {
	return &memoryPaymentRepo{payments: make(map[int64]*Payment), refs: make(map[string]bool)}
}

func refKey(quotationID int64, reference string) string {
	return fmt.Sprintf("%d:%s", quotationID, reference)
}

func (r *memoryPaymentRepo) Get(ctx context.Context, id int64) (*Payment, error) {
	p, ok := r.payments[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memoryPaymentRepo) ListByQuotation(ctx context.Context, quotationID int64) ([]Payment, error) {
	var out []Payment
	for _, p := range r.payments {
		if p.QuotationID == quotationID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memoryPaymentRepo) Create(ctx context.Context, p Payment) (int64, error) {
	key := refKey(p.QuotationID, p.PaymentReference)
	if r.refs[key] {
		return 0, shared.ErrConflict
	}
	r.refs[key] = true
	r.nextID++
	p.ID = r.nextID
	r.payments[p.ID] = &p
	return p.ID, nil
}

func (r *memoryPaymentRepo) UpdateStatus(ctx context.Context, id int64, from, to docstate.PaymentStatus) error {
	p, ok := r.payments[id]
	if !ok {
		return shared.ErrNotFound
	}
	if p.ApprovalStatus != from {
		return shared.ErrConflict
	}
	p.ApprovalStatus = to
	return nil
}

type piStub struct {
	pis map[int64]*proforma.ProformaInvoice
}

func (s *piStub) Get(ctx context.Context, id int64) (*proforma.ProformaInvoice, error) {
	pi, ok := s.pis[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return pi, nil
}

type idempotencyStub struct {
	keys map[string]bool
}

func (s *idempotencyStub) CheckAndInsert(ctx context.Context, key, module string) error {
	if s.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	s.keys[key] = true
	return nil
}

func (s *idempotencyStub) Delete(ctx context.Context, key string) error {
	delete(s.keys, key)
	return nil
}

var (
	sales    = shared.Actor{ID: 3, Role: shared.RoleSales}
	accounts = shared.Actor{ID: 8, Role: shared.RoleAccounts}
)

func approvedPI() *proforma.ProformaInvoice {
	return &proforma.ProformaInvoice{ID: 10, QuotationID: 1, Status: docstate.PIApproved, TotalAmount: d("10000")}
}

func createReq(amount, reference string) CreatePaymentRequest {
	return CreatePaymentRequest{
		QuotationID:       1,
		PIID:              10,
		InstallmentAmount: d(amount),
		PaymentMethod:     "neft",
		PaymentReference:  reference,
		PaymentDate:       baseDate,
	}
}

func newService(pi *proforma.ProformaInvoice) (*Service, *memoryPaymentRepo, *idempotencyStub) {
	repo := newMemoryPaymentRepo()
	idem := &idempotencyStub{keys: make(map[string]bool)}
	svc := NewService(repo, &piStub{pis: map[int64]*proforma.ProformaInvoice{pi.ID: pi}}, idem, nil)
	return svc, repo, idem
}

func TestCreatePayment(t *testing.T) {
	svc, _, _ := newService(approvedPI())
	p, err := svc.Create(context.Background(), createReq("3000", "NEFT-001"), sales)
	require.NoError(t, err)
	require.Equal(t, docstate.PaymentPending, p.ApprovalStatus)
	require.True(t, p.InstallmentAmount.Equal(d("3000")))
}

func TestCreatePaymentAgainstPendingPIRejected(t *testing.T) {
	pi := approvedPI()
	pi.Status = docstate.PIPending
	svc, repo, _ := newService(pi)

	_, err := svc.Create(context.Background(), createReq("3000", "NEFT-001"), sales)
	require.ErrorIs(t, err, shared.ErrStateConflict)
	// No record was created.
	require.Empty(t, repo.payments)
}

func TestCreatePaymentUnknownPI(t *testing.T) {
	svc, _, _ := newService(approvedPI())
	req := createReq("3000", "NEFT-001")
	req.PIID = 99
	_, err := svc.Create(context.Background(), req, sales)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreatePaymentWrongQuotation(t *testing.T) {
	svc, _, _ := newService(approvedPI())
	req := createReq("3000", "NEFT-001")
	req.QuotationID = 2
	_, err := svc.Create(context.Background(), req, sales)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreatePaymentNonPositiveAmount(t *testing.T) {
	svc, _, _ := newService(approvedPI())
	_, err := svc.Create(context.Background(), createReq("0", "NEFT-001"), sales)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreatePaymentIdempotencyKey(t *testing.T) {
	svc, _, _ := newService(approvedPI())
	req := createReq("3000", "NEFT-001")
	req.IdempotencyKey = "retry-token-1"

	_, err := svc.Create(context.Background(), req, sales)
	require.NoError(t, err)

	// The retry of the same request does not double-count.
	req.PaymentReference = "NEFT-001-retry"
	_, err = svc.Create(context.Background(), req, sales)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreatePaymentDuplicateReference(t *testing.T) {
	svc, _, _ := newService(approvedPI())
	_, err := svc.Create(context.Background(), createReq("3000", "NEFT-001"), sales)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), createReq("3000", "NEFT-001"), sales)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreatePaymentKeyReleasedOnInsertFailure(t *testing.T) {
	svc, _, idem := newService(approvedPI())
	_, err := svc.Create(context.Background(), createReq("3000", "NEFT-001"), sales)
	require.NoError(t, err)

	// Same reference with a fresh key: the insert fails, and the key is
	// released so a corrected retry may reuse it.
	req := createReq("3000", "NEFT-001")
	req.IdempotencyKey = "retry-token-2"
	_, err = svc.Create(context.Background(), req, sales)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.False(t, idem.keys["retry-token-2"])
}

func TestApproveRejectFlow(t *testing.T) {
	svc, _, _ := newService(approvedPI())
	p, err := svc.Create(context.Background(), createReq("3000", "NEFT-001"), sales)
	require.NoError(t, err)

	// Sales may not approve payments.
	_, err = svc.Approve(context.Background(), p.ID, sales)
	require.ErrorIs(t, err, shared.ErrForbidden)

	approved, err := svc.Approve(context.Background(), p.ID, accounts)
	require.NoError(t, err)
	require.Equal(t, docstate.PaymentApproved, approved.ApprovalStatus)

	// Approved payments are immutable.
	_, err = svc.Reject(context.Background(), p.ID, accounts, "late")
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

package quotations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-crm/meridian/internal/crm/docstate"
	"github.com/meridian-crm/meridian/internal/shared"
)

type memoryRepo struct {
	quotations map[int64]*Quotation
	items      map[int64][]Item
	nextID     int64
	nextSeq    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		quotations: make(map[int64]*Quotation),
		items:      make(map[int64][]Item),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (*Quotation, error) {
	q, ok := r.quotations[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *q
	cp.Items = append([]Item(nil), r.items[id]...)
	return &cp, nil
}

func (r *memoryRepo) List(ctx context.Context, req ListQuotationsRequest) ([]Quotation, int, error) {
	var out []Quotation
	for _, q := range r.quotations {
		if req.CustomerID != nil && q.CustomerID != *req.CustomerID {
			continue
		}
		if req.Status != nil && string(q.Status) != *req.Status {
			continue
		}
		out = append(out, *q)
	}
	return out, len(out), nil
}

func (r *memoryRepo) Create(ctx context.Context, q Quotation) (int64, error) {
	r.nextID++
	q.ID = r.nextID
	r.quotations[q.ID] = &q
	return q.ID, nil
}

func (r *memoryRepo) ReplaceItems(ctx context.Context, quotationID int64, items []Item) error {
	withID := make([]Item, len(items))
	for i, it := range items {
		it.QuotationID = quotationID
		withID[i] = it
	}
	r.items[quotationID] = withID
	return nil
}

func (r *memoryRepo) UpdateHeader(ctx context.Context, q Quotation) error {
	existing, ok := r.quotations[q.ID]
	if !ok {
		return shared.ErrNotFound
	}
	q.Status = existing.Status
	r.quotations[q.ID] = &q
	return nil
}

func (r *memoryRepo) UpdateStatus(ctx context.Context, id int64, from, to docstate.QuotationStatus) error {
	q, ok := r.quotations[id]
	if !ok {
		return shared.ErrNotFound
	}
	if q.Status != from {
		return shared.ErrConflict
	}
	q.Status = to
	return nil
}

func (r *memoryRepo) NextSequence(ctx context.Context) (int64, error) {
	r.nextSeq++
	return r.nextSeq, nil
}

type approvalSpy struct {
	logs []shared.ApprovalLog
}

func (a *approvalSpy) Record(ctx context.Context, log shared.ApprovalLog) error {
	a.logs = append(a.logs, log)
	return nil
}

var (
	sales   = shared.Actor{ID: 7, Role: shared.RoleSales}
	manager = shared.Actor{ID: 9, Role: shared.RoleManager}
)

func createReq() CreateQuotationRequest {
	return CreateQuotationRequest{
		CustomerID: 42,
		Items: []CreateItemReq{
			{ProductName: "hydraulic press", Quantity: 2, Unit: "nos", UnitPrice: d("50000")},
			{ProductName: "die set", Quantity: 10, Unit: "nos", UnitPrice: d("1500")},
		},
	}
}

func TestCreateComputesTotals(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	q, err := svc.Create(context.Background(), createReq(), sales)
	require.NoError(t, err)

	require.Equal(t, docstate.QuotationDraft, q.Status)
	require.True(t, q.Subtotal.Equal(d("115000")))
	require.True(t, q.TaxRate.Equal(d("18")))
	require.True(t, q.TaxAmount.Equal(d("20700")))
	require.True(t, q.TotalAmount.Equal(d("135700")))
	require.Len(t, q.Items, 2)
	require.True(t, q.Items[0].TaxableAmount.Equal(d("100000")))
	require.NotEmpty(t, q.QuoteNumber)
}

func TestCreateWithDiscount(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	req := createReq()
	req.DiscountRate = d("10")
	q, err := svc.Create(context.Background(), req, sales)
	require.NoError(t, err)

	require.True(t, q.DiscountAmount.Equal(d("11500")))
	require.True(t, q.TaxableAmount.Equal(d("103500")))
	require.True(t, q.TaxAmount.Equal(d("18630")))
	require.True(t, q.TotalAmount.Equal(d("122130")))
}

func TestCreateRejectsBadItems(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	req := createReq()
	req.Items[0].Quantity = 0
	_, err := svc.Create(context.Background(), req, sales)
	require.ErrorIs(t, err, shared.ErrValidation)

	req = createReq()
	negative := d("-5")
	req.Items[1].GSTRate = &negative
	_, err = svc.Create(context.Background(), req, sales)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateOnlyDraft(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	q, err := svc.Create(context.Background(), createReq(), sales)
	require.NoError(t, err)

	rate := d("5")
	updated, err := svc.Update(context.Background(), q.ID, UpdateQuotationRequest{DiscountRate: &rate}, sales)
	require.NoError(t, err)
	require.True(t, updated.DiscountAmount.Equal(d("5750")))

	_, err = svc.Submit(context.Background(), q.ID, sales)
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), q.ID, UpdateQuotationRequest{DiscountRate: &rate}, sales)
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestApprovalFlowRecordsHistory(t *testing.T) {
	spy := &approvalSpy{}
	svc := NewService(newMemoryRepo(), spy)
	q, err := svc.Create(context.Background(), createReq(), sales)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), q.ID, sales)
	require.NoError(t, err)

	// Sales cannot approve its own quotation.
	_, err = svc.Approve(context.Background(), q.ID, sales)
	require.ErrorIs(t, err, shared.ErrForbidden)

	approved, err := svc.Approve(context.Background(), q.ID, manager)
	require.NoError(t, err)
	require.Equal(t, docstate.QuotationApproved, approved.Status)

	require.Len(t, spy.logs, 2)
	require.Equal(t, shared.ApprovalSubmit, spy.logs[0].Action)
	require.Equal(t, shared.ApprovalApprove, spy.logs[1].Action)
	require.Equal(t, manager.ID, spy.logs[1].ActorID)
}

func TestSentAcceptedChain(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	q, err := svc.Create(context.Background(), createReq(), sales)
	require.NoError(t, err)

	_, err = svc.Send(context.Background(), q.ID, sales)
	require.ErrorIs(t, err, shared.ErrStateConflict)

	_, err = svc.Submit(context.Background(), q.ID, sales)
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), q.ID, manager)
	require.NoError(t, err)
	_, err = svc.Send(context.Background(), q.ID, sales)
	require.NoError(t, err)
	accepted, err := svc.Accept(context.Background(), q.ID, sales)
	require.NoError(t, err)
	require.Equal(t, docstate.QuotationAccepted, accepted.Status)

	// Terminal: cancellation is no longer possible.
	_, err = svc.Cancel(context.Background(), q.ID, sales, "changed mind")
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestItemIDsStableAcrossHeaderUpdate(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	q, err := svc.Create(context.Background(), createReq(), sales)
	require.NoError(t, err)
	originalIDs := []string{q.Items[0].ID.String(), q.Items[1].ID.String()}

	note := "revised terms"
	updated, err := svc.Update(context.Background(), q.ID, UpdateQuotationRequest{Notes: &note}, sales)
	require.NoError(t, err)
	require.Equal(t, originalIDs[0], updated.Items[0].ID.String())
	require.Equal(t, originalIDs[1], updated.Items[1].ID.String())
}

package proforma

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridian-crm/meridian/internal/crm/docstate"
	"github.com/meridian-crm/meridian/internal/crm/quotations"
	"github.com/meridian-crm/meridian/internal/shared"
)

type memoryPIRepo struct {
	pis     map[int64]*ProformaInvoice
	nextID  int64
	nextSeq int64
}

func newMemoryPIRepo() *memoryPIRepo {
	return &memoryPIRepo{pis: make(map[int64]*ProformaInvoice)}
}

func (r *memoryPIRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, r)
}

func (r *memoryPIRepo) Get(ctx context.Context, id int64) (*ProformaInvoice, error) {
	pi, ok := r.pis[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *pi
	return &cp, nil
}

func (r *memoryPIRepo) ListByQuotation(ctx context.Context, quotationID int64) ([]ProformaInvoice, error) {
	var out []ProformaInvoice
	for _, pi := range r.pis {
		if pi.QuotationID == quotationID {
			out = append(out, *pi)
		}
	}
	return out, nil
}

func (r *memoryPIRepo) Create(ctx context.Context, pi ProformaInvoice) (int64, error) {
	r.nextID++
	pi.ID = r.nextID
	pi.CreatedAt = time.Now()
	pi.UpdatedAt = pi.CreatedAt
	r.pis[pi.ID] = &pi
	return pi.ID, nil
}

func (r *memoryPIRepo) UpdateStatus(ctx context.Context, id int64, from, to docstate.PIStatus) error {
	pi, ok := r.pis[id]
	if !ok {
		return shared.ErrNotFound
	}
	if pi.Status != from {
		return shared.ErrConflict
	}
	pi.Status = to
	pi.UpdatedAt = time.Now()
	return nil
}

func (r *memoryPIRepo) HasOpenRevision(ctx context.Context, parentID int64) (bool, error) {
	for _, pi := range r.pis {
		if pi.ParentPIID != nil && *pi.ParentPIID == parentID && pi.Status != docstate.PIRejected {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryPIRepo) NextSequence(ctx context.Context) (int64, error) {
	r.nextSeq++
	return r.nextSeq, nil
}

type quotationStub struct {
	quotations map[int64]*quotations.Quotation
}

func (s *quotationStub) Get(ctx context.Context, id int64) (*quotations.Quotation, error) {
	q, ok := s.quotations[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return q, nil
}

var (
	sales   = shared.Actor{ID: 3, Role: shared.RoleSales}
	manager = shared.Actor{ID: 5, Role: shared.RoleManager}
)

func fixtureQuotation() *quotations.Quotation {
	return &quotations.Quotation{
		ID:          1,
		Status:      docstate.QuotationAccepted,
		TaxRate:     d("18"),
		Subtotal:    d("2000"),
		TaxAmount:   d("360"),
		TotalAmount: d("2360"),
		Items: []quotations.Item{
			{ID: uuid.New(), ProductName: "press frame", Quantity: 10, TaxableAmount: d("1000")},
			{ID: uuid.New(), ProductName: "conveyor belt", Quantity: 3, TaxableAmount: d("600")},
			{ID: uuid.New(), ProductName: "control panel", Quantity: 1, TaxableAmount: d("400")},
		},
	}
}

func newFixture(t *testing.T) (*Service, *memoryPIRepo, *quotations.Quotation) {
	t.Helper()
	repo := newMemoryPIRepo()
	q := fixtureQuotation()
	svc := NewService(repo, &quotationStub{quotations: map[int64]*quotations.Quotation{1: q}}, nil)
	return svc, repo, q
}

func approvedOriginal(t *testing.T, svc *Service) *ProformaInvoice {
	t.Helper()
	ctx := context.Background()
	pi, err := svc.CreateFromQuotation(ctx, 1, sales)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, pi.ID, sales)
	require.NoError(t, err)
	approved, err := svc.Approve(ctx, pi.ID, manager)
	require.NoError(t, err)
	return approved
}

func TestCreateFromQuotationCopiesTotals(t *testing.T) {
	svc, _, q := newFixture(t)
	pi, err := svc.CreateFromQuotation(context.Background(), 1, sales)
	require.NoError(t, err)
	require.Equal(t, docstate.PIPending, pi.Status)
	require.True(t, pi.TotalAmount.Equal(q.TotalAmount))
	require.False(t, pi.IsRevision())
	require.NotEmpty(t, pi.PINumber)
}

func TestCreateFromDraftQuotationRejected(t *testing.T) {
	svc, _, q := newFixture(t)
	q.Status = docstate.QuotationDraft
	_, err := svc.CreateFromQuotation(context.Background(), 1, sales)
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestCreateRevisionAgainstApprovedParent(t *testing.T) {
	svc, _, q := newFixture(t)
	parent := approvedOriginal(t, svc)

	rev, err := svc.CreateRevision(context.Background(), parent.ID, CreateRevisionRequest{
		RemovedItemIDs: []uuid.UUID{q.Items[2].ID},
		ReducedItems:   []ReducedItem{{QuotationItemID: q.Items[0].ID, Quantity: 4}},
	}, sales)
	require.NoError(t, err)

	require.True(t, rev.IsRevision())
	require.Equal(t, parent.ID, *rev.ParentPIID)
	require.Equal(t, docstate.PIPending, rev.Status)
	// 400 (reduced from 1000) + 600 untouched.
	require.True(t, rev.Subtotal.Equal(d("1000")))
	require.True(t, rev.TaxAmount.Equal(d("180")))
	require.True(t, rev.TotalAmount.Equal(d("1180")))
	require.NotNil(t, rev.Amendment)
	require.Len(t, rev.Amendment.RemovedItemIDs, 1)
}

func TestCreateRevisionParentNotApproved(t *testing.T) {
	svc, _, q := newFixture(t)
	pi, err := svc.CreateFromQuotation(context.Background(), 1, sales)
	require.NoError(t, err)

	_, err = svc.CreateRevision(context.Background(), pi.ID, CreateRevisionRequest{
		RemovedItemIDs: []uuid.UUID{q.Items[0].ID},
	}, sales)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateRevisionConflictWhenOneInFlight(t *testing.T) {
	svc, _, q := newFixture(t)
	parent := approvedOriginal(t, svc)
	ctx := context.Background()

	_, err := svc.CreateRevision(ctx, parent.ID, CreateRevisionRequest{
		RemovedItemIDs: []uuid.UUID{q.Items[0].ID},
	}, sales)
	require.NoError(t, err)

	// The second revision against the same parent loses.
	_, err = svc.CreateRevision(ctx, parent.ID, CreateRevisionRequest{
		RemovedItemIDs: []uuid.UUID{q.Items[1].ID},
	}, sales)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateRevisionAfterRejectionAllowed(t *testing.T) {
	svc, _, q := newFixture(t)
	parent := approvedOriginal(t, svc)
	ctx := context.Background()

	first, err := svc.CreateRevision(ctx, parent.ID, CreateRevisionRequest{
		RemovedItemIDs: []uuid.UUID{q.Items[0].ID},
	}, sales)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, first.ID, sales)
	require.NoError(t, err)
	_, err = svc.Reject(ctx, first.ID, manager, "keep the frame")
	require.NoError(t, err)

	_, err = svc.CreateRevision(ctx, parent.ID, CreateRevisionRequest{
		RemovedItemIDs: []uuid.UUID{q.Items[1].ID},
	}, sales)
	require.NoError(t, err)
}

func TestCreateRevisionNoChange(t *testing.T) {
	svc, _, _ := newFixture(t)
	parent := approvedOriginal(t, svc)
	_, err := svc.CreateRevision(context.Background(), parent.ID, CreateRevisionRequest{}, sales)
	require.ErrorIs(t, err, shared.ErrNoChangeRequested)
}

func TestCreateRevisionEchoedTotalsChecked(t *testing.T) {
	svc, _, q := newFixture(t)
	parent := approvedOriginal(t, svc)

	wrong := d("9999")
	_, err := svc.CreateRevision(context.Background(), parent.ID, CreateRevisionRequest{
		RemovedItemIDs: []uuid.UUID{q.Items[2].ID},
		TotalAmount:    &wrong,
	}, sales)
	require.ErrorIs(t, err, shared.ErrArithmeticInconsistency)

	// Within one unit passes.
	nearTotal := d("1889")
	_, err = svc.CreateRevision(context.Background(), parent.ID, CreateRevisionRequest{
		RemovedItemIDs: []uuid.UUID{q.Items[2].ID},
		TotalAmount:    &nearTotal,
	}, sales)
	require.NoError(t, err)
}

func TestSubmitRevisionRequiresApprovedParent(t *testing.T) {
	svc, repo, q := newFixture(t)
	parent := approvedOriginal(t, svc)
	ctx := context.Background()

	rev, err := svc.CreateRevision(ctx, parent.ID, CreateRevisionRequest{
		RemovedItemIDs: []uuid.UUID{q.Items[0].ID},
	}, sales)
	require.NoError(t, err)

	// The parent loses approval before the revision is submitted.
	repo.pis[parent.ID].Status = docstate.PIRejected
	_, err = svc.Submit(ctx, rev.ID, sales)
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestEffectiveViewRecomputesFromQuotation(t *testing.T) {
	svc, _, q := newFixture(t)
	parent := approvedOriginal(t, svc)
	ctx := context.Background()

	rev, err := svc.CreateRevision(ctx, parent.ID, CreateRevisionRequest{
		ReducedItems: []ReducedItem{{QuotationItemID: q.Items[0].ID, Quantity: 5}},
	}, sales)
	require.NoError(t, err)

	view, err := svc.Effective(ctx, rev.ID)
	require.NoError(t, err)
	require.Len(t, view.EffectiveItems, 3)
	require.EqualValues(t, 5, view.EffectiveItems[0].Quantity)
	require.True(t, view.EffectiveItems[0].TaxableAmount.Equal(d("500")))
	// Product metadata flows from the quotation, not a cached PI copy.
	require.Equal(t, "press frame", view.EffectiveItems[0].ProductName)
	require.True(t, view.Totals.Total.Equal(rev.TotalAmount))
}

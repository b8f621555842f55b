package proforma

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-crm/meridian/internal/crm/quotations"
	"github.com/meridian-crm/meridian/internal/shared"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func parentItems() []quotations.Item {
	return []quotations.Item{
		{ID: uuid.New(), ProductName: "press frame", Quantity: 10, Unit: "nos", TaxableAmount: d("1000")},
		{ID: uuid.New(), ProductName: "conveyor belt", Quantity: 3, Unit: "m", TaxableAmount: d("600")},
		{ID: uuid.New(), ProductName: "control panel", Quantity: 1, Unit: "nos", TaxableAmount: d("400")},
	}
}

func gst18() quotations.LedgerInput {
	return quotations.LedgerInput{TaxRate: d("18")}
}

func TestComputeRevisionNoChangeRejected(t *testing.T) {
	_, err := ComputeRevision(parentItems(), AmendmentDetail{}, gst18())
	require.ErrorIs(t, err, shared.ErrNoChangeRequested)
}

func TestComputeRevisionRemoveOne(t *testing.T) {
	items := parentItems()
	rev, err := ComputeRevision(items, AmendmentDetail{RemovedItemIDs: []uuid.UUID{items[1].ID}}, gst18())
	require.NoError(t, err)
	require.Len(t, rev.EffectiveItems, 2)
	require.True(t, rev.Totals.Subtotal.Equal(d("1400")))
	require.True(t, rev.Totals.TaxAmount.Equal(d("252")))
	require.True(t, rev.Totals.Total.Equal(d("1652")))
}

func TestComputeRevisionReduceProrates(t *testing.T) {
	items := parentItems()
	rev, err := ComputeRevision(items, AmendmentDetail{
		ReducedItems: []ReducedItem{{QuotationItemID: items[0].ID, Quantity: 4}},
	}, gst18())
	require.NoError(t, err)

	// Quantity 10 at amount 1000 reduced to 4 prorates to 400; the untouched
	// items keep their full amounts.
	require.True(t, rev.EffectiveItems[0].TaxableAmount.Equal(d("400")))
	require.EqualValues(t, 4, rev.EffectiveItems[0].Quantity)
	require.True(t, rev.Totals.Subtotal.Equal(d("1400")))
}

func TestComputeRevisionProratePreservesUnitRate(t *testing.T) {
	// An amount that is not unit_price*qty exact still scales linearly.
	it := quotations.Item{ID: uuid.New(), Quantity: 3, TaxableAmount: d("1050")}
	rev, err := ComputeRevision([]quotations.Item{it}, AmendmentDetail{
		ReducedItems: []ReducedItem{{QuotationItemID: it.ID, Quantity: 1}},
	}, quotations.LedgerInput{})
	require.NoError(t, err)
	require.True(t, rev.EffectiveItems[0].TaxableAmount.Equal(d("350")))
}

func TestComputeRevisionFullCancellation(t *testing.T) {
	// A 3-item set totalling 118 inclusive of 18% tax, removed entirely.
	items := []quotations.Item{
		{ID: uuid.New(), Quantity: 1, TaxableAmount: d("40")},
		{ID: uuid.New(), Quantity: 1, TaxableAmount: d("35")},
		{ID: uuid.New(), Quantity: 1, TaxableAmount: d("25")},
	}
	all := []uuid.UUID{items[0].ID, items[1].ID, items[2].ID}
	rev, err := ComputeRevision(items, AmendmentDetail{RemovedItemIDs: all}, gst18())
	require.NoError(t, err)
	require.Empty(t, rev.EffectiveItems)
	require.True(t, rev.Totals.Subtotal.IsZero())
	require.True(t, rev.Totals.TaxAmount.IsZero())
	require.True(t, rev.Totals.Total.IsZero())
}

func TestComputeRevisionValidation(t *testing.T) {
	items := parentItems()

	_, err := ComputeRevision(items, AmendmentDetail{RemovedItemIDs: []uuid.UUID{uuid.New()}}, gst18())
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = ComputeRevision(items, AmendmentDetail{
		ReducedItems: []ReducedItem{{QuotationItemID: uuid.New(), Quantity: 1}},
	}, gst18())
	require.ErrorIs(t, err, shared.ErrValidation)

	// Removed and reduced at once.
	_, err = ComputeRevision(items, AmendmentDetail{
		RemovedItemIDs: []uuid.UUID{items[0].ID},
		ReducedItems:   []ReducedItem{{QuotationItemID: items[0].ID, Quantity: 2}},
	}, gst18())
	require.ErrorIs(t, err, shared.ErrValidation)

	// Zero-quantity reduction is removal's job.
	_, err = ComputeRevision(items, AmendmentDetail{
		ReducedItems: []ReducedItem{{QuotationItemID: items[0].ID, Quantity: 0}},
	}, gst18())
	require.ErrorIs(t, err, shared.ErrValidation)

	// Increase beyond original.
	_, err = ComputeRevision(items, AmendmentDetail{
		ReducedItems: []ReducedItem{{QuotationItemID: items[0].ID, Quantity: 11}},
	}, gst18())
	require.ErrorIs(t, err, shared.ErrValidation)

	// Same item reduced twice.
	_, err = ComputeRevision(items, AmendmentDetail{
		ReducedItems: []ReducedItem{
			{QuotationItemID: items[0].ID, Quantity: 5},
			{QuotationItemID: items[0].ID, Quantity: 4},
		},
	}, gst18())
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestComputeRevisionIdempotent(t *testing.T) {
	items := parentItems()
	first, err := ComputeRevision(items, AmendmentDetail{
		RemovedItemIDs: []uuid.UUID{items[2].ID},
		ReducedItems:   []ReducedItem{{QuotationItemID: items[0].ID, Quantity: 5}},
	}, gst18())
	require.NoError(t, err)

	// Re-deriving from the already-effective item set with no further
	// amendment yields the same totals.
	_, totals, err := ResolveEffectiveItems(first.EffectiveItems, nil, gst18())
	require.NoError(t, err)
	require.True(t, totals.Subtotal.Equal(first.Totals.Subtotal))
	require.True(t, totals.TaxAmount.Equal(first.Totals.TaxAmount))
	require.True(t, totals.Total.Equal(first.Totals.Total))

	// Reducing an item to its current quantity is likewise total-neutral.
	second, err := ComputeRevision(first.EffectiveItems, AmendmentDetail{
		ReducedItems: []ReducedItem{{QuotationItemID: items[0].ID, Quantity: 5}},
	}, gst18())
	require.NoError(t, err)
	require.True(t, second.Totals.Total.Equal(first.Totals.Total))
}

func TestComputeRevisionDoesNotMutateParent(t *testing.T) {
	items := parentItems()
	originalAmount := items[0].TaxableAmount
	originalQty := items[0].Quantity

	_, err := ComputeRevision(items, AmendmentDetail{
		ReducedItems: []ReducedItem{{QuotationItemID: items[0].ID, Quantity: 2}},
	}, gst18())
	require.NoError(t, err)
	require.True(t, items[0].TaxableAmount.Equal(originalAmount))
	require.Equal(t, originalQty, items[0].Quantity)
}

func TestResolveEffectiveItemsOriginalPassThrough(t *testing.T) {
	items := parentItems()
	effective, totals, err := ResolveEffectiveItems(items, nil, gst18())
	require.NoError(t, err)
	require.Len(t, effective, 3)
	require.True(t, totals.Subtotal.Equal(d("2000")))
}

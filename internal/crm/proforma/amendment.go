package proforma

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/meridian-crm/meridian/internal/crm/quotations"
	"github.com/meridian-crm/meridian/internal/money"
	"github.com/meridian-crm/meridian/internal/shared"
)

// Revision is the computed outcome of applying an amendment to a parent
// item set.
type Revision struct {
	EffectiveItems []quotations.Item
	Totals         quotations.Totals
}

// ComputeRevision applies an amendment to the parent item set and derives
// the revised totals. It is pure: it reads nothing but its arguments and
// never looks at the parent PI's approval status, which is the state
// machine's concern at submission time.
//
// Rules, enforced before any arithmetic:
//   - the amendment must change something (ErrNoChangeRequested otherwise)
//   - every referenced item id must exist in the parent set
//   - an item may not be both removed and reduced
//   - a reduced quantity must be positive and at most the original quantity;
//     reducing to zero is rejected, removal expresses that intent
//
// Removing every item is a legal full-cancellation revision with zero
// totals; whether such a revision may be submitted is the caller's call.
func ComputeRevision(parentItems []quotations.Item, detail AmendmentDetail, ledger quotations.LedgerInput) (Revision, error) {
	if detail.Empty() {
		return Revision{}, fmt.Errorf("%w: amendment removes and reduces nothing", shared.ErrNoChangeRequested)
	}

	byID := make(map[uuid.UUID]quotations.Item, len(parentItems))
	for _, it := range parentItems {
		byID[it.ID] = it
	}

	removed := make(map[uuid.UUID]bool, len(detail.RemovedItemIDs))
	for _, id := range detail.RemovedItemIDs {
		if _, ok := byID[id]; !ok {
			return Revision{}, fmt.Errorf("%w: removed item %s not in parent item set", shared.ErrValidation, id)
		}
		removed[id] = true
	}

	reduced := make(map[uuid.UUID]int64, len(detail.ReducedItems))
	for _, ri := range detail.ReducedItems {
		original, ok := byID[ri.QuotationItemID]
		if !ok {
			return Revision{}, fmt.Errorf("%w: reduced item %s not in parent item set", shared.ErrValidation, ri.QuotationItemID)
		}
		if removed[ri.QuotationItemID] {
			return Revision{}, fmt.Errorf("%w: item %s is both removed and reduced", shared.ErrValidation, ri.QuotationItemID)
		}
		if _, dup := reduced[ri.QuotationItemID]; dup {
			return Revision{}, fmt.Errorf("%w: item %s reduced twice", shared.ErrValidation, ri.QuotationItemID)
		}
		if ri.Quantity <= 0 {
			return Revision{}, fmt.Errorf("%w: reduced quantity for item %s must be positive, use removal instead", shared.ErrValidation, ri.QuotationItemID)
		}
		if ri.Quantity > original.Quantity {
			return Revision{}, fmt.Errorf("%w: reduced quantity %d exceeds original %d for item %s",
				shared.ErrValidation, ri.Quantity, original.Quantity, ri.QuotationItemID)
		}
		reduced[ri.QuotationItemID] = ri.Quantity
	}

	effective := make([]quotations.Item, 0, len(parentItems))
	for _, it := range parentItems {
		if removed[it.ID] {
			continue
		}
		if newQty, ok := reduced[it.ID]; ok {
			// Linear proration preserves the effective unit rate even when
			// the original amount carried item-level adjustments.
			it.TaxableAmount = money.Prorate(it.TaxableAmount, it.Quantity, newQty)
			it.Quantity = newQty
		}
		effective = append(effective, it)
	}

	return Revision{
		EffectiveItems: effective,
		Totals:         quotations.ComputeTotals(effective, ledger),
	}, nil
}

// ResolveEffectiveItems re-derives a revision's item set for display from
// the quotation's current items plus the stored amendment detail. A nil
// detail means an original PI: the quotation's items pass through. No
// cached item list on the PI is ever trusted.
func ResolveEffectiveItems(quotationItems []quotations.Item, detail *AmendmentDetail, ledger quotations.LedgerInput) ([]quotations.Item, quotations.Totals, error) {
	if detail == nil {
		return quotationItems, quotations.ComputeTotals(quotationItems, ledger), nil
	}
	rev, err := ComputeRevision(quotationItems, *detail, ledger)
	if err != nil {
		return nil, quotations.Totals{}, err
	}
	return rev.EffectiveItems, rev.Totals, nil
}

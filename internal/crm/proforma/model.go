// Package proforma implements proforma invoices and their amendment
// (revision) semantics. A revision PI supersedes its parent by removing or
// quantity-reducing quotation items; it never mutates the parent quotation
// or the parent PI.
package proforma

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-crm/meridian/internal/crm/docstate"
)

// ProformaInvoice is the canonical PI record. ParentPIID non-nil marks a
// revision; AmendmentDetail is present only on revisions and carries deltas
// against the quotation's item set, never a cached copy of the items.
type ProformaInvoice struct {
	ID          int64             `json:"id"`
	QuotationID int64             `json:"quotation_id"`
	PINumber    string            `json:"pi_number"`
	Status      docstate.PIStatus `json:"status"`
	Subtotal    decimal.Decimal   `json:"subtotal"`
	TaxAmount   decimal.Decimal   `json:"tax_amount"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	ParentPIID  *int64            `json:"parent_pi_id,omitempty"`
	Amendment   *AmendmentDetail  `json:"amendment_detail,omitempty"`
	CreatedBy   int64             `json:"created_by"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// IsRevision reports whether the PI supersedes a parent.
func (pi ProformaInvoice) IsRevision() bool {
	return pi.ParentPIID != nil
}

// AmendmentDetail is persisted as JSON and re-interpreted at display time,
// so its wire shape is load-bearing: removed_item_ids is a string array of
// quotation item ids, reduced_items pairs an item id with the new quantity.
type AmendmentDetail struct {
	RemovedItemIDs []uuid.UUID   `json:"removed_item_ids"`
	ReducedItems   []ReducedItem `json:"reduced_items"`
}

// ReducedItem requests a quantity reduction for one quotation item.
type ReducedItem struct {
	QuotationItemID uuid.UUID `json:"quotation_item_id"`
	Quantity        int64     `json:"quantity"`
}

// Empty reports whether the amendment changes nothing.
func (d AmendmentDetail) Empty() bool {
	return len(d.RemovedItemIDs) == 0 && len(d.ReducedItems) == 0
}

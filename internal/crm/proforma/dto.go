package proforma

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-crm/meridian/internal/crm/quotations"
)

// CreateRevisionRequest is the body of POST /pis/{parentID}/revised. The
// caller may echo the totals it computed; when present they are checked
// against the engine's recomputation and a drift beyond one currency unit is
// rejected as an arithmetic inconsistency.
type CreateRevisionRequest struct {
	RemovedItemIDs []uuid.UUID      `json:"removed_item_ids"`
	ReducedItems   []ReducedItem    `json:"reduced_items"`
	Subtotal       *decimal.Decimal `json:"subtotal,omitempty"`
	TaxAmount      *decimal.Decimal `json:"tax_amount,omitempty"`
	TotalAmount    *decimal.Decimal `json:"total_amount,omitempty"`
}

// Detail extracts the persistable amendment shape.
func (r CreateRevisionRequest) Detail() AmendmentDetail {
	return AmendmentDetail{
		RemovedItemIDs: r.RemovedItemIDs,
		ReducedItems:   r.ReducedItems,
	}
}

// EffectiveView is a revision rendered for display: quotation metadata comes
// from the quotation's current items, quantities and amounts from the
// amendment.
type EffectiveView struct {
	PI             ProformaInvoice   `json:"proforma_invoice"`
	EffectiveItems []quotations.Item `json:"effective_items"`
	Totals         quotations.Totals `json:"totals"`
}

// PINumber formats a proforma invoice document number.
func PINumber(seq int64, at time.Time) string {
	return fmt.Sprintf("PI-%s-%05d", at.Format("200601"), seq)
}

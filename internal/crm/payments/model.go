// Package payments records installments against quotations and aggregates
// them into paid/remaining/credit figures. Approved payments are immutable:
// corrections happen through additive refund records, never edits of
// history.
package payments

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-crm/meridian/internal/crm/docstate"
)

// Payment is the canonical payment record.
type Payment struct {
	ID                int64                  `json:"id"`
	QuotationID       int64                  `json:"quotation_id"`
	PIID              int64                  `json:"pi_id"`
	LeadID            *int64                 `json:"lead_id,omitempty"`
	InstallmentAmount decimal.Decimal        `json:"installment_amount"`
	PaymentMethod     string                 `json:"payment_method"`
	PaymentReference  string                 `json:"payment_reference"`
	ApprovalStatus    docstate.PaymentStatus `json:"approval_status"`
	PaymentDate       time.Time              `json:"payment_date"`
	IsRefund          bool                   `json:"is_refund"`
	CreatedBy         int64                  `json:"created_by"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

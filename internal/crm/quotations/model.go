package quotations

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-crm/meridian/internal/crm/docstate"
)

// DefaultGSTRate applies when a line arrives without a gst_rate.
var DefaultGSTRate = decimal.NewFromInt(18)

// Quotation is the canonical internal record. Raw backend payloads are
// normalized into this shape at the boundary; nothing downstream reads raw
// fields.
type Quotation struct {
	ID             int64                    `json:"id"`
	QuoteNumber    string                   `json:"quote_number"`
	CustomerID     int64                    `json:"customer_id"`
	LeadID         *int64                   `json:"lead_id,omitempty"`
	Status         docstate.QuotationStatus `json:"status"`
	DiscountRate   decimal.Decimal          `json:"discount_rate"`
	TaxRate        decimal.Decimal          `json:"tax_rate"`
	Subtotal       decimal.Decimal          `json:"subtotal"`
	DiscountAmount decimal.Decimal          `json:"discount_amount"`
	TaxableAmount  decimal.Decimal          `json:"taxable_amount"`
	TaxAmount      decimal.Decimal          `json:"tax_amount"`
	TotalAmount    decimal.Decimal          `json:"total_amount"`
	Notes          *string                  `json:"notes,omitempty"`
	CreatedBy      int64                    `json:"created_by"`
	CreatedAt      time.Time                `json:"created_at"`
	UpdatedAt      time.Time                `json:"updated_at"`
	Items          []Item                   `json:"items,omitempty"`
}

// Item is a quotation line. Its ID is stable for the life of the quotation:
// amendments reference items by id, so an item referenced by any revision is
// marked removed or reduced there, never deleted here.
type Item struct {
	ID            uuid.UUID       `json:"id"`
	QuotationID   int64           `json:"quotation_id"`
	ProductName   string          `json:"product_name"`
	Description   *string         `json:"description,omitempty"`
	HSNCode       *string         `json:"hsn_code,omitempty"`
	Quantity      int64           `json:"quantity"`
	Unit          string          `json:"unit"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	GSTRate       decimal.Decimal `json:"gst_rate"`
	TaxableAmount decimal.Decimal `json:"taxable_amount"`
	LineOrder     int             `json:"line_order"`
}

// UnitRate is the effective pre-tax rate per unit, including any item-level
// adjustment baked into TaxableAmount.
func (it Item) UnitRate() decimal.Decimal {
	if it.Quantity == 0 {
		return decimal.Zero
	}
	return it.TaxableAmount.Div(decimal.NewFromInt(it.Quantity))
}

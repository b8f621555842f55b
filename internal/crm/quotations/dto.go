package quotations

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-crm/meridian/internal/shared"
)

type CreateQuotationRequest struct {
	CustomerID   int64            `json:"customer_id" validate:"required,gt=0"`
	LeadID       *int64           `json:"lead_id,omitempty"`
	DiscountRate decimal.Decimal  `json:"discount_rate"`
	TaxRate      *decimal.Decimal `json:"tax_rate,omitempty"`
	Notes        *string          `json:"notes,omitempty"`
	Items        []CreateItemReq  `json:"items" validate:"required,min=1,dive"`
}

type CreateItemReq struct {
	ProductName string           `json:"product_name" validate:"required,max=255"`
	Description *string          `json:"description,omitempty"`
	HSNCode     *string          `json:"hsn_code,omitempty"`
	Quantity    int64            `json:"quantity" validate:"required,gt=0"`
	Unit        string           `json:"unit" validate:"required,max=20"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	GSTRate     *decimal.Decimal `json:"gst_rate,omitempty"`
	LineOrder   int              `json:"line_order" validate:"gte=0"`
}

type UpdateQuotationRequest struct {
	DiscountRate *decimal.Decimal `json:"discount_rate,omitempty"`
	TaxRate      *decimal.Decimal `json:"tax_rate,omitempty"`
	Notes        *string          `json:"notes,omitempty"`
	Items        *[]CreateItemReq `json:"items,omitempty" validate:"omitempty,min=1,dive"`
}

type ListQuotationsRequest struct {
	CustomerID *int64  `json:"customer_id,omitempty"`
	Status     *string `json:"status,omitempty"`
	Limit      int     `json:"limit" validate:"gte=0,lte=1000"`
	Offset     int     `json:"offset" validate:"gte=0"`
}

// SummaryResponse is the customer-facing balance view served by
// GET /quotations/{id}/summary.
type SummaryResponse struct {
	QuotationID int64           `json:"quotation_id"`
	Total       decimal.Decimal `json:"total"`
	Paid        decimal.Decimal `json:"paid"`
	Remaining   decimal.Decimal `json:"remaining"`
	Credit      decimal.Decimal `json:"credit"`
}

// NormalizeItem maps one raw line request to the canonical Item shape,
// filling defaults in exactly one place so nothing downstream guesses at
// fields: gst_rate defaults to 18, taxable_amount is unit_price times
// quantity.
func NormalizeItem(req CreateItemReq, quotationID int64, position int) (Item, error) {
	if req.Quantity <= 0 {
		return Item{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	if req.UnitPrice.IsNegative() {
		return Item{}, fmt.Errorf("%w: unit price must not be negative", shared.ErrValidation)
	}
	gstRate := DefaultGSTRate
	if req.GSTRate != nil {
		if req.GSTRate.IsNegative() {
			return Item{}, fmt.Errorf("%w: gst rate must not be negative", shared.ErrValidation)
		}
		gstRate = *req.GSTRate
	}
	lineOrder := req.LineOrder
	if lineOrder == 0 {
		lineOrder = position + 1
	}
	return Item{
		ID:            uuid.New(),
		QuotationID:   quotationID,
		ProductName:   req.ProductName,
		Description:   req.Description,
		HSNCode:       req.HSNCode,
		Quantity:      req.Quantity,
		Unit:          req.Unit,
		UnitPrice:     req.UnitPrice,
		GSTRate:       gstRate,
		TaxableAmount: req.UnitPrice.Mul(decimal.NewFromInt(req.Quantity)),
		LineOrder:     lineOrder,
	}, nil
}

// NormalizeItems maps a full line set, preserving request order.
func NormalizeItems(reqs []CreateItemReq, quotationID int64) ([]Item, error) {
	items := make([]Item, 0, len(reqs))
	for i, req := range reqs {
		it, err := NormalizeItem(req, quotationID, i)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		items = append(items, it)
	}
	return items, nil
}

// QuoteNumber formats a quotation document number for a given sequence.
func QuoteNumber(seq int64, at time.Time) string {
	return fmt.Sprintf("QT-%s-%05d", at.Format("200601"), seq)
}

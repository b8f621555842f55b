// Package docstate defines the legal status transitions for quotations,
// proforma invoices, and payments, and which actor role may trigger each.
// Every persisted status change must pass through Authorize first.
package docstate

import (
	"fmt"

	"github.com/meridian-crm/meridian/internal/shared"
)

// QuotationStatus enumerates quotation statuses.
type QuotationStatus string

const (
	QuotationDraft               QuotationStatus = "draft"
	QuotationPendingVerification QuotationStatus = "pending_verification"
	QuotationApproved            QuotationStatus = "approved"
	QuotationRejected            QuotationStatus = "rejected"
	QuotationSent                QuotationStatus = "sent"
	QuotationAccepted            QuotationStatus = "accepted"
	QuotationCancelled           QuotationStatus = "cancelled"
)

// ParseQuotationStatus validates a raw status string at the boundary so an
// illegal status never reaches the transition tables.
func ParseQuotationStatus(s string) (QuotationStatus, error) {
	switch QuotationStatus(s) {
	case QuotationDraft, QuotationPendingVerification, QuotationApproved,
		QuotationRejected, QuotationSent, QuotationAccepted, QuotationCancelled:
		return QuotationStatus(s), nil
	}
	return "", fmt.Errorf("%w: unknown quotation status %q", shared.ErrValidation, s)
}

// Terminal reports whether no further transition may leave the status.
func (s QuotationStatus) Terminal() bool {
	return s == QuotationAccepted || s == QuotationCancelled
}

// Editable reports whether quotation items may still be edited.
func (s QuotationStatus) Editable() bool {
	return s == QuotationDraft
}

// PIStatus enumerates proforma invoice statuses.
type PIStatus string

const (
	PIPending         PIStatus = "pending"
	PIPendingApproval PIStatus = "pending_approval"
	PIApproved        PIStatus = "approved"
	PIRejected        PIStatus = "rejected"
)

// ParsePIStatus validates a raw status string.
func ParsePIStatus(s string) (PIStatus, error) {
	switch PIStatus(s) {
	case PIPending, PIPendingApproval, PIApproved, PIRejected:
		return PIStatus(s), nil
	}
	return "", fmt.Errorf("%w: unknown proforma invoice status %q", shared.ErrValidation, s)
}

// PaymentStatus enumerates payment approval statuses.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentRejected PaymentStatus = "rejected"
)

// ParsePaymentStatus validates a raw status string.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch PaymentStatus(s) {
	case PaymentPending, PaymentApproved, PaymentRejected:
		return PaymentStatus(s), nil
	}
	return "", fmt.Errorf("%w: unknown payment status %q", shared.ErrValidation, s)
}

type quotationEdge struct {
	from, to QuotationStatus
}

type piEdge struct {
	from, to PIStatus
}

type paymentEdge struct {
	from, to PaymentStatus
}

// Role sets per edge. Admin is always allowed and is handled in roleAllowed.
var (
	quotationTransitions = map[quotationEdge][]shared.Role{
		{QuotationDraft, QuotationPendingVerification}:    {shared.RoleSales},
		{QuotationPendingVerification, QuotationApproved}: {shared.RoleManager},
		{QuotationPendingVerification, QuotationRejected}: {shared.RoleManager},
		{QuotationApproved, QuotationSent}:                {shared.RoleSales},
		{QuotationSent, QuotationAccepted}:                {shared.RoleSales},
	}

	piTransitions = map[piEdge][]shared.Role{
		{PIPending, PIPendingApproval}:  {shared.RoleSales},
		{PIPendingApproval, PIApproved}: {shared.RoleManager},
		{PIPendingApproval, PIRejected}: {shared.RoleManager},
	}

	paymentTransitions = map[paymentEdge][]shared.Role{
		{PaymentPending, PaymentApproved}: {shared.RoleAccounts},
		{PaymentPending, PaymentRejected}: {shared.RoleAccounts},
	}
)

func roleAllowed(role shared.Role, allowed []shared.Role) bool {
	if role == shared.RoleAdmin {
		return true
	}
	for _, a := range allowed {
		if a == role {
			return true
		}
	}
	return false
}

// AuthorizeQuotation checks one quotation status transition for the given
// role. Cancellation is legal from any non-terminal state for sales or admin.
func AuthorizeQuotation(from, to QuotationStatus, role shared.Role) error {
	if to == QuotationCancelled {
		if from.Terminal() {
			return fmt.Errorf("%w: quotation %s cannot be cancelled", shared.ErrStateConflict, from)
		}
		if !roleAllowed(role, []shared.Role{shared.RoleSales}) {
			return fmt.Errorf("%w: role %s may not cancel quotations", shared.ErrForbidden, role)
		}
		return nil
	}
	allowed, ok := quotationTransitions[quotationEdge{from, to}]
	if !ok {
		return fmt.Errorf("%w: quotation %s -> %s", shared.ErrStateConflict, from, to)
	}
	if !roleAllowed(role, allowed) {
		return fmt.Errorf("%w: role %s may not move quotation %s -> %s", shared.ErrForbidden, role, from, to)
	}
	return nil
}

// AuthorizePI checks one proforma invoice status transition for the given
// role. Revision-specific preconditions (the parent must be approved at
// submission) are enforced by the proforma service, which also knows the
// revision chain.
func AuthorizePI(from, to PIStatus, role shared.Role) error {
	allowed, ok := piTransitions[piEdge{from, to}]
	if !ok {
		return fmt.Errorf("%w: proforma invoice %s -> %s", shared.ErrStateConflict, from, to)
	}
	if !roleAllowed(role, allowed) {
		return fmt.Errorf("%w: role %s may not move proforma invoice %s -> %s", shared.ErrForbidden, role, from, to)
	}
	return nil
}

// AuthorizePayment checks one payment status transition for the given role.
func AuthorizePayment(from, to PaymentStatus, role shared.Role) error {
	allowed, ok := paymentTransitions[paymentEdge{from, to}]
	if !ok {
		return fmt.Errorf("%w: payment %s -> %s", shared.ErrStateConflict, from, to)
	}
	if !roleAllowed(role, allowed) {
		return fmt.Errorf("%w: role %s may not move payment %s -> %s", shared.ErrForbidden, role, from, to)
	}
	return nil
}

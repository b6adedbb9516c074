package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mandi/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// InvoiceKind is the document type raised against a party
type InvoiceKind string

const (
	InvoiceKindPurchase InvoiceKind = "PURCHASE" // raised by a vendor
	InvoiceKindSales    InvoiceKind = "SALES"    // raised to a retailer
)

// IsValid checks if the kind is known
func (k InvoiceKind) IsValid() bool {
	return k == InvoiceKindPurchase || k == InvoiceKindSales
}

// PartyKind returns the party kind that owns this invoice kind
func (k InvoiceKind) PartyKind() PartyKind {
	if k == InvoiceKindPurchase {
		return PartyKindVendor
	}
	return PartyKindRetailer
}

// RefKind returns the tenant guard entity kind for the invoice table
func (k InvoiceKind) RefKind() string {
	if k == InvoiceKindPurchase {
		return RefPurchaseInvoice
	}
	return RefSalesInvoice
}

// InvoiceStatus is derived from the paid and net amounts
type InvoiceStatus string

const (
	InvoiceStatusUnpaid        InvoiceStatus = "UNPAID"
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoiceStatusPaid          InvoiceStatus = "PAID"
)

// IsValid checks if the status is known
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusUnpaid, InvoiceStatusPartiallyPaid, InvoiceStatusPaid:
		return true
	}
	return false
}

// DeriveStatus maps amounts to a status
func DeriveStatus(net, paid decimal.Decimal) InvoiceStatus {
	switch {
	case paid.IsZero():
		return InvoiceStatusUnpaid
	case net.Sub(paid).Sign() <= 0:
		return InvoiceStatusPaid
	default:
		return InvoiceStatusPartiallyPaid
	}
}

// Invoice is a purchase or sales invoice.
// BalanceAmount always equals NetAmount - PaidAmount and never goes negative.
type Invoice struct {
	shared.TenantAggregateRoot
	Kind          InvoiceKind
	PartyID       uuid.UUID
	InvoiceNumber string
	InvoiceDate   time.Time
	Sequence      int64
	NetAmount     decimal.Decimal
	PaidAmount    decimal.Decimal
	BalanceAmount decimal.Decimal
	Status        InvoiceStatus
}

// NewInvoice creates an unpaid invoice
func NewInvoice(tenantID uuid.UUID, kind InvoiceKind, partyID uuid.UUID, number string, date time.Time, net decimal.Decimal) (*Invoice, error) {
	if tenantID == uuid.Nil {
		return nil, shared.ErrTenantRequired
	}
	if !kind.IsValid() {
		return nil, shared.NewValidationError("kind", "invoice kind is not valid")
	}
	if partyID == uuid.Nil {
		return nil, shared.NewValidationError("party_id", "party is required")
	}
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, shared.NewValidationError("invoice_number", "invoice number cannot be empty")
	}
	if date.IsZero() {
		return nil, shared.NewValidationError("invoice_date", "invoice date is required")
	}
	if !net.IsPositive() {
		return nil, shared.NewValidationError("net_amount", "net amount must be positive")
	}
	return &Invoice{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		Kind:                kind,
		PartyID:             partyID,
		InvoiceNumber:       number,
		InvoiceDate:         date.UTC(),
		NetAmount:           net,
		PaidAmount:          decimal.Zero,
		BalanceAmount:       net,
		Status:              InvoiceStatusUnpaid,
	}, nil
}

// IsOutstanding reports whether anything remains to be paid
func (i *Invoice) IsOutstanding() bool {
	return i.BalanceAmount.IsPositive()
}

// ApplyPayment records an allocation against the invoice
func (i *Invoice) ApplyPayment(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(i.BalanceAmount) {
		return ErrExceedsBalance.WithMessage(fmt.Sprintf(
			"amount %s exceeds balance %s of invoice %s", amount.String(), i.BalanceAmount.String(), i.InvoiceNumber))
	}

	i.PaidAmount = i.PaidAmount.Add(amount)
	i.BalanceAmount = i.NetAmount.Sub(i.PaidAmount)
	i.Status = DeriveStatus(i.NetAmount, i.PaidAmount)
	i.IncrementVersion()
	return nil
}

// CheckInvariants verifies the amount and status relationship
func (i *Invoice) CheckInvariants() error {
	if !i.BalanceAmount.Equal(i.NetAmount.Sub(i.PaidAmount)) {
		return shared.ErrInvalidState.WithMessage(fmt.Sprintf("invoice %s: balance %s != net %s - paid %s",
			i.InvoiceNumber, i.BalanceAmount, i.NetAmount, i.PaidAmount))
	}
	if i.BalanceAmount.IsNegative() {
		return shared.ErrInvalidState.WithMessage(fmt.Sprintf("invoice %s: negative balance %s", i.InvoiceNumber, i.BalanceAmount))
	}
	if want := DeriveStatus(i.NetAmount, i.PaidAmount); i.Status != want {
		return shared.ErrInvalidState.WithMessage(fmt.Sprintf("invoice %s: status %s, expected %s", i.InvoiceNumber, i.Status, want))
	}
	return nil
}

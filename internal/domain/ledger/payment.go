package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mandi/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PaymentMode is how the money moved
type PaymentMode string

const (
	PaymentModeCash        PaymentMode = "CASH"
	PaymentModeBank        PaymentMode = "BANK"
	PaymentModeCheque      PaymentMode = "CHEQUE"
	PaymentModeUPI         PaymentMode = "UPI"
	PaymentModePaymentLink PaymentMode = "PAYMENT_LINK"
)

// AllPaymentModes lists every supported mode
func AllPaymentModes() []PaymentMode {
	return []PaymentMode{PaymentModeCash, PaymentModeBank, PaymentModeCheque, PaymentModeUPI, PaymentModePaymentLink}
}

// IsValid checks if the mode is known
func (m PaymentMode) IsValid() bool {
	switch m {
	case PaymentModeCash, PaymentModeBank, PaymentModeCheque, PaymentModeUPI, PaymentModePaymentLink:
		return true
	}
	return false
}

// SettlesThroughBank is true for modes that land in a bank account
func (m PaymentMode) SettlesThroughBank() bool {
	return m == PaymentModeBank || m == PaymentModeCheque || m == PaymentModeUPI
}

// ParsePaymentMode parses a mode name in any case
func ParsePaymentMode(s string) (PaymentMode, error) {
	m := PaymentMode(strings.ToUpper(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", shared.NewValidationError("payment_mode", fmt.Sprintf("unsupported payment mode %q", s))
	}
	return m, nil
}

// Payment is one allocation of a payment instruction to one invoice.
// Payments are never updated once written.
type Payment struct {
	shared.BaseEntity
	TenantID       uuid.UUID
	BatchID        uuid.UUID
	PartyKind      PartyKind
	PartyID        uuid.UUID
	InvoiceID      uuid.UUID
	Amount         decimal.Decimal
	Mode           PaymentMode
	PaymentDate    time.Time
	BankAccountID  *uuid.UUID
	ChequeNumber   string
	UPIReference   string
	PaymentLinkID  string
	Notes          string
	IdempotencyKey string
}

// NewPayment builds the row for one allocation of req
func NewPayment(tenantID, batchID uuid.UUID, party PartyRef, alloc Allocation, req PaymentRequest) *Payment {
	return &Payment{
		BaseEntity:     shared.NewBaseEntity(),
		TenantID:       tenantID,
		BatchID:        batchID,
		PartyKind:      party.Kind,
		PartyID:        party.ID,
		InvoiceID:      alloc.Invoice.ID,
		Amount:         alloc.Amount,
		Mode:           req.Mode,
		PaymentDate:    req.PaymentDate.UTC(),
		BankAccountID:  req.BankAccountID,
		ChequeNumber:   req.ChequeNumber,
		UPIReference:   req.UPIReference,
		PaymentLinkID:  req.PaymentLinkID,
		Notes:          req.Notes,
		IdempotencyKey: req.IdempotencyKey,
	}
}

// Reference returns the mode specific reference, if any
func (p *Payment) Reference() string {
	switch p.Mode {
	case PaymentModeCheque:
		return p.ChequeNumber
	case PaymentModeUPI:
		return p.UPIReference
	case PaymentModePaymentLink:
		return p.PaymentLinkID
	}
	return ""
}

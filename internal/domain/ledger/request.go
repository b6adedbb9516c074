package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mandi/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// MaxAmountScale is the number of decimal places accepted for money (paise)
const MaxAmountScale = 2

// MaxIdempotencyKeyLength bounds client supplied request tokens
const MaxIdempotencyKeyLength = 128

// PaymentRequest is a payment instruction against one party
type PaymentRequest struct {
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

// Normalize trims free-text fields
func (r *PaymentRequest) Normalize() {
	r.ChequeNumber = strings.TrimSpace(r.ChequeNumber)
	r.UPIReference = strings.TrimSpace(r.UPIReference)
	r.PaymentLinkID = strings.TrimSpace(r.PaymentLinkID)
	r.Notes = strings.TrimSpace(r.Notes)
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
	if r.BankAccountID != nil && *r.BankAccountID == uuid.Nil {
		r.BankAccountID = nil
	}
}

// Validate checks the amount and the fields each mode requires
func (r PaymentRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return shared.NewValidationError("amount", "amount must be greater than zero")
	}
	if !r.Amount.Equal(r.Amount.Truncate(MaxAmountScale)) {
		return shared.NewValidationError("amount", "amount cannot have more than 2 decimal places")
	}
	if !r.Mode.IsValid() {
		return shared.NewValidationError("payment_mode", "payment mode is not supported")
	}
	if r.PaymentDate.IsZero() {
		return shared.NewValidationError("payment_date", "payment date is required")
	}
	if r.Mode.SettlesThroughBank() && r.BankAccountID == nil {
		return shared.NewValidationError("bank_account_id", "bank account is required for "+string(r.Mode)+" payments")
	}
	switch r.Mode {
	case PaymentModeCheque:
		if strings.TrimSpace(r.ChequeNumber) == "" {
			return shared.NewValidationError("cheque_number", "cheque number is required for cheque payments")
		}
	case PaymentModeUPI:
		if strings.TrimSpace(r.UPIReference) == "" {
			return shared.NewValidationError("upi_reference", "UPI reference is required for UPI payments")
		}
	case PaymentModePaymentLink:
		if strings.TrimSpace(r.PaymentLinkID) == "" {
			return shared.NewValidationError("payment_link_id", "payment link id is required for payment link payments")
		}
	}
	if len(r.IdempotencyKey) > MaxIdempotencyKeyLength {
		return shared.NewValidationError("idempotency_key", "idempotency key is too long")
	}
	return nil
}

// Refs returns the entities the request points at besides the party
func (r PaymentRequest) Refs() []shared.EntityRef {
	if r.BankAccountID == nil {
		return nil
	}
	return []shared.EntityRef{{Kind: RefBankAccount, ID: *r.BankAccountID}}
}

package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mandi/backend/internal/domain/ledger"
)

// PaymentLine is one persisted payment row of a distribution
type PaymentLine struct {
	PaymentID     uuid.UUID       `json:"payment_id"`
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Amount        decimal.Decimal `json:"amount"`
}

// InvoiceState is an invoice as it stands after the distribution
type InvoiceState struct {
	InvoiceID     uuid.UUID            `json:"invoice_id"`
	InvoiceNumber string               `json:"invoice_number"`
	InvoiceDate   time.Time            `json:"invoice_date"`
	NetAmount     decimal.Decimal      `json:"net_amount"`
	PaidAmount    decimal.Decimal      `json:"paid_amount"`
	BalanceAmount decimal.Decimal      `json:"balance_amount"`
	Status        ledger.InvoiceStatus `json:"status"`
}

// DistributionResult describes what one RecordPayment call did
type DistributionResult struct {
	BatchID         uuid.UUID          `json:"batch_id"`
	Party           ledger.PartyRef    `json:"party"`
	Mode            ledger.PaymentMode `json:"payment_mode"`
	PaymentDate     time.Time          `json:"payment_date"`
	Payments        []PaymentLine      `json:"payments"`
	InvoicesUpdated []InvoiceState     `json:"invoices_updated"`
	TotalAllocated  decimal.Decimal    `json:"total_allocated"`
	Remainder       decimal.Decimal    `json:"remainder"`
	Replayed        bool               `json:"replayed"`
}

// PaymentsCreated is the number of payment rows behind the result
func (r *DistributionResult) PaymentsCreated() int {
	return len(r.Payments)
}

// BatchView lists the rows of one payment instruction
type BatchView struct {
	BatchID       uuid.UUID          `json:"batch_id"`
	Party         ledger.PartyRef    `json:"party"`
	Mode          ledger.PaymentMode `json:"payment_mode"`
	PaymentDate   time.Time          `json:"payment_date"`
	BankAccountID *uuid.UUID         `json:"bank_account_id,omitempty"`
	Reference     string             `json:"reference,omitempty"`
	Notes         string             `json:"notes,omitempty"`
	Total         decimal.Decimal    `json:"total"`
	Payments      []PaymentLine      `json:"payments"`
}

func toInvoiceState(inv *ledger.Invoice) InvoiceState {
	return InvoiceState{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		InvoiceDate:   inv.InvoiceDate,
		NetAmount:     inv.NetAmount,
		PaidAmount:    inv.PaidAmount,
		BalanceAmount: inv.BalanceAmount,
		Status:        inv.Status,
	}
}

package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/mandi/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

const (
	EventTypePaymentRecorded = "PaymentRecorded"
	AggregateTypePayment     = "Payment"
)

// PaymentRecordedEvent is written to the outbox for every payment row
type PaymentRecordedEvent struct {
	shared.BaseDomainEvent
	PaymentID      uuid.UUID       `json:"payment_id"`
	BatchID        uuid.UUID       `json:"batch_id"`
	PartyKind      PartyKind       `json:"party_kind"`
	PartyID        uuid.UUID       `json:"party_id"`
	PartyName      string          `json:"party_name"`
	PartyPhone     string          `json:"party_phone,omitempty"`
	InvoiceID      uuid.UUID       `json:"invoice_id"`
	InvoiceNumber  string          `json:"invoice_number"`
	Amount         decimal.Decimal `json:"amount"`
	Mode           PaymentMode     `json:"payment_mode"`
	PaymentDate    time.Time       `json:"payment_date"`
	InvoiceBalance decimal.Decimal `json:"invoice_balance"`
	InvoiceStatus  InvoiceStatus   `json:"invoice_status"`
}

// NewPaymentRecordedEvent describes p after it was applied to inv
func NewPaymentRecordedEvent(p *Payment, party *Party, inv *Invoice) *PaymentRecordedEvent {
	return &PaymentRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentRecorded, AggregateTypePayment, p.ID, p.TenantID),
		PaymentID:       p.ID,
		BatchID:         p.BatchID,
		PartyKind:       p.PartyKind,
		PartyID:         p.PartyID,
		PartyName:       party.Name,
		PartyPhone:      party.Phone,
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		Amount:          p.Amount,
		Mode:            p.Mode,
		PaymentDate:     p.PaymentDate,
		InvoiceBalance:  inv.BalanceAmount,
		InvoiceStatus:   inv.Status,
	}
}

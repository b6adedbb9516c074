package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PartyLedger is the per party kind capability the payment recorder is written against.
// Implementations resolve the transaction from ctx.
type PartyLedger interface {
	Kind() PartyKind
	// FindParty loads the party and locks its row for the rest of the transaction
	FindParty(ctx context.Context, tenantID, partyID uuid.UUID) (*Party, error)
	// OutstandingInvoices lists invoices with a positive balance, oldest first, locked for update
	OutstandingInvoices(ctx context.Context, tenantID, partyID uuid.UUID) ([]*Invoice, error)
	// ApplyAllocation applies amount to the invoice and persists it
	ApplyAllocation(ctx context.Context, invoice *Invoice, amount decimal.Decimal) error
	// AdjustPartyBalance adds delta to the party balance atomically
	AdjustPartyBalance(ctx context.Context, tenantID, partyID uuid.UUID, delta decimal.Decimal) error
}

// PaymentRepository stores payment rows
type PaymentRepository interface {
	Create(ctx context.Context, payments ...*Payment) error
	FindByBatch(ctx context.Context, tenantID, batchID uuid.UUID) ([]*Payment, error)
}

// PaymentRequestRecord remembers the outcome of an idempotent payment instruction
type PaymentRequestRecord struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	IdempotencyKey string
	BatchID        uuid.UUID
	PartyKind      PartyKind
	PartyID        uuid.UUID
	Amount         decimal.Decimal
	Allocated      decimal.Decimal
	Remainder      decimal.Decimal
	CreatedAt      time.Time
}

// PaymentRequestRepository stores idempotency records.
// Create returns shared.ErrAlreadyExists when the key was taken concurrently.
type PaymentRequestRepository interface {
	FindByKey(ctx context.Context, tenantID uuid.UUID, key string) (*PaymentRequestRecord, error)
	Create(ctx context.Context, record *PaymentRequestRecord) error
}

// InvoiceReader loads invoices by id for result assembly
type InvoiceReader interface {
	FindInvoices(ctx context.Context, tenantID uuid.UUID, kind InvoiceKind, ids []uuid.UUID) ([]*Invoice, error)
}

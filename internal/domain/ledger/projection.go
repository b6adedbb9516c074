package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StatementLineKind tells invoices from payments on a party statement
type StatementLineKind string

const (
	StatementLineInvoice StatementLineKind = "INVOICE"
	StatementLinePayment StatementLineKind = "PAYMENT"
)

// StatementLine is one row of a party statement
type StatementLine struct {
	Date           time.Time
	Kind           StatementLineKind
	Reference      string
	InvoiceID      uuid.UUID
	PaymentID      *uuid.UUID
	Mode           PaymentMode
	Debit          decimal.Decimal
	Credit         decimal.Decimal
	RunningBalance decimal.Decimal
}

// PartyStatement is the running ledger of one party
type PartyStatement struct {
	Party           PartyRef
	Name            string
	Lines           []StatementLine
	ClosingBalance  decimal.Decimal
	RecordedBalance decimal.Decimal
}

// Direction of money on the cashbook or bankbook
type Direction string

const (
	DirectionIn  Direction = "IN"  // received from a retailer
	DirectionOut Direction = "OUT" // paid to a vendor
)

// DirectionFor returns the cash direction of a payment to or from a party kind
func DirectionFor(kind PartyKind) Direction {
	if kind == PartyKindVendor {
		return DirectionOut
	}
	return DirectionIn
}

// BookEntry is one row of the cashbook or bankbook
type BookEntry struct {
	PaymentID      uuid.UUID
	BatchID        uuid.UUID
	Date           time.Time
	PartyKind      PartyKind
	PartyID        uuid.UUID
	InvoiceID      uuid.UUID
	Mode           PaymentMode
	Reference      string
	Direction      Direction
	Amount         decimal.Decimal
	RunningBalance decimal.Decimal
}

// Book is a date bounded cashbook or bankbook
type Book struct {
	From           time.Time
	To             time.Time
	OpeningBalance decimal.Decimal
	Entries        []BookEntry
	ClosingBalance decimal.Decimal
}

// LedgerProjection reconstructs the read side ledgers from invoices and payments.
// Projections are read-only and never mutate the rows PaymentRecorder owns.
type LedgerProjection interface {
	PartyStatement(ctx context.Context, tenantID uuid.UUID, party PartyRef) (*PartyStatement, error)
	Cashbook(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*Book, error)
	Bankbook(ctx context.Context, tenantID, bankAccountID uuid.UUID, from, to time.Time) (*Book, error)
}

// BalanceDrift is a party whose recorded balance disagrees with its invoices
type BalanceDrift struct {
	Party       PartyRef
	Name        string
	Recorded    decimal.Decimal
	Outstanding decimal.Decimal
}

// Drift is recorded minus outstanding
func (d BalanceDrift) Drift() decimal.Decimal {
	return d.Recorded.Sub(d.Outstanding)
}

// BalanceAuditor compares stored party balances with the sum of invoice balances
type BalanceAuditor interface {
	AuditBalances(ctx context.Context, tenantID uuid.UUID) ([]BalanceDrift, error)
}

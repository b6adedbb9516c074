package dto

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mandi/backend/internal/domain/ledger"
)

// StatementLineResponse is one row of a party statement
type StatementLineResponse struct {
	Date           string                   `json:"date"`
	Kind           ledger.StatementLineKind `json:"kind"`
	Reference      string                   `json:"reference"`
	InvoiceID      uuid.UUID                `json:"invoice_id"`
	PaymentID      *uuid.UUID               `json:"payment_id,omitempty"`
	PaymentMode    ledger.PaymentMode       `json:"payment_mode,omitempty"`
	Debit          decimal.Decimal          `json:"debit"`
	Credit         decimal.Decimal          `json:"credit"`
	RunningBalance decimal.Decimal          `json:"running_balance"`
}

// StatementResponse is the body of GET /{vendors,retailers}/:id/statement
type StatementResponse struct {
	Party           ledger.PartyRef         `json:"party"`
	Name            string                  `json:"name"`
	Lines           []StatementLineResponse `json:"lines"`
	ClosingBalance  decimal.Decimal         `json:"closing_balance"`
	RecordedBalance decimal.Decimal         `json:"recorded_balance"`
	Consistent      bool                    `json:"consistent"`
}

// NewStatementResponse converts a projected statement
func NewStatementResponse(s *ledger.PartyStatement) StatementResponse {
	lines := make([]StatementLineResponse, 0, len(s.Lines))
	for _, l := range s.Lines {
		lines = append(lines, StatementLineResponse{
			Date:           l.Date.Format(DateLayout),
			Kind:           l.Kind,
			Reference:      l.Reference,
			InvoiceID:      l.InvoiceID,
			PaymentID:      l.PaymentID,
			PaymentMode:    l.Mode,
			Debit:          l.Debit,
			Credit:         l.Credit,
			RunningBalance: l.RunningBalance,
		})
	}
	return StatementResponse{
		Party:           s.Party,
		Name:            s.Name,
		Lines:           lines,
		ClosingBalance:  s.ClosingBalance,
		RecordedBalance: s.RecordedBalance,
		Consistent:      s.ClosingBalance.Equal(s.RecordedBalance),
	}
}

// BookEntryResponse is one row of the cashbook or bankbook
type BookEntryResponse struct {
	PaymentID      uuid.UUID          `json:"payment_id"`
	BatchID        uuid.UUID          `json:"batch_id"`
	Date           string             `json:"date"`
	Party          ledger.PartyRef    `json:"party"`
	InvoiceID      uuid.UUID          `json:"invoice_id"`
	PaymentMode    ledger.PaymentMode `json:"payment_mode"`
	Reference      string             `json:"reference,omitempty"`
	Direction      ledger.Direction   `json:"direction"`
	Amount         decimal.Decimal    `json:"amount"`
	RunningBalance decimal.Decimal    `json:"running_balance"`
}

// BookResponse is the body of the cashbook and bankbook endpoints
type BookResponse struct {
	From           string              `json:"from"`
	To             string              `json:"to"`
	OpeningBalance decimal.Decimal     `json:"opening_balance"`
	Entries        []BookEntryResponse `json:"entries"`
	ClosingBalance decimal.Decimal     `json:"closing_balance"`
}

// NewBookResponse converts a projected book
func NewBookResponse(b *ledger.Book) BookResponse {
	entries := make([]BookEntryResponse, 0, len(b.Entries))
	for _, e := range b.Entries {
		entries = append(entries, BookEntryResponse{
			PaymentID:      e.PaymentID,
			BatchID:        e.BatchID,
			Date:           e.Date.Format(DateLayout),
			Party:          ledger.PartyRef{Kind: e.PartyKind, ID: e.PartyID},
			InvoiceID:      e.InvoiceID,
			PaymentMode:    e.Mode,
			Reference:      e.Reference,
			Direction:      e.Direction,
			Amount:         e.Amount,
			RunningBalance: e.RunningBalance,
		})
	}
	return BookResponse{
		From:           b.From.Format(DateLayout),
		To:             b.To.Format(DateLayout),
		OpeningBalance: b.OpeningBalance,
		Entries:        entries,
		ClosingBalance: b.ClosingBalance,
	}
}

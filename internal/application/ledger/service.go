// Package ledger serves the read side of the payment ledger: party
// statements, the cashbook and bankbook, and the balance audit.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mandi/backend/internal/domain/ledger"
	"github.com/mandi/backend/internal/domain/shared"
	"github.com/mandi/backend/internal/infrastructure/telemetry"
)

// MaxBookRange bounds the span of one cashbook or bankbook query
const MaxBookRange = 366 * 24 * time.Hour

// QueryService answers statement and book queries for one tenant at a time.
type QueryService struct {
	projection ledger.LedgerProjection
}

func NewQueryService(projection ledger.LedgerProjection) *QueryService {
	return &QueryService{projection: projection}
}

// Statement returns the running ledger of a vendor or retailer.
func (s *QueryService) Statement(ctx context.Context, tenantID uuid.UUID, party ledger.PartyRef) (*ledger.PartyStatement, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "statement",
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrPartyKind, string(party.Kind),
		telemetry.SpanAttrPartyID, party.ID.String(),
	)
	defer span.End()

	if tenantID == uuid.Nil {
		return nil, shared.ErrTenantRequired
	}
	if !party.Kind.IsValid() {
		return nil, shared.NewValidationError("party_kind", "unknown party kind")
	}
	if party.ID == uuid.Nil {
		return nil, shared.NewValidationError("party_id", "party id is required")
	}
	st, err := s.projection.PartyStatement(ctx, tenantID, party)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return st, nil
}

// Cashbook lists cash payments in [from, to].
func (s *QueryService) Cashbook(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*ledger.Book, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "cashbook", telemetry.SpanAttrTenantID, tenantID.String())
	defer span.End()

	if err := checkRange(tenantID, from, to); err != nil {
		return nil, err
	}
	book, err := s.projection.Cashbook(ctx, tenantID, from, to)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return book, nil
}

// Bankbook lists payments settled through one bank account in [from, to].
func (s *QueryService) Bankbook(ctx context.Context, tenantID, bankAccountID uuid.UUID, from, to time.Time) (*ledger.Book, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "bankbook",
		telemetry.SpanAttrTenantID, tenantID.String(),
		"ledger.bank_account_id", bankAccountID.String(),
	)
	defer span.End()

	if err := checkRange(tenantID, from, to); err != nil {
		return nil, err
	}
	if bankAccountID == uuid.Nil {
		return nil, shared.NewValidationError("bank_account_id", "bank account id is required")
	}
	book, err := s.projection.Bankbook(ctx, tenantID, bankAccountID, from, to)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return book, nil
}

func checkRange(tenantID uuid.UUID, from, to time.Time) error {
	if tenantID == uuid.Nil {
		return shared.ErrTenantRequired
	}
	if from.IsZero() {
		return shared.NewValidationError("from", "start date is required")
	}
	if to.IsZero() {
		return shared.NewValidationError("to", "end date is required")
	}
	if to.Before(from) {
		return shared.NewValidationError("to", "end date is before start date")
	}
	if to.Sub(from) > MaxBookRange {
		return shared.NewValidationError("to", "range may not exceed one year")
	}
	return nil
}

package ledger

import "github.com/mandi/backend/internal/domain/shared"

// Ledger specific error codes
const (
	CodeNoOutstandingInvoices = "NO_OUTSTANDING_INVOICES"
	CodePartyInactive         = "PARTY_INACTIVE"
	CodeExceedsBalance        = "EXCEEDS_BALANCE"
	CodeInvalidAmount         = "INVALID_AMOUNT"
	CodeIdempotencyKeyReused  = "IDEMPOTENCY_KEY_REUSED"
)

var (
	ErrNoOutstandingInvoices = shared.NewDomainError(CodeNoOutstandingInvoices, "Party has no outstanding invoices to settle")
	ErrPartyInactive         = shared.NewDomainError(CodePartyInactive, "Party is inactive")
	ErrExceedsBalance        = shared.NewDomainError(CodeExceedsBalance, "Amount exceeds invoice balance")
	ErrInvalidAmount         = shared.NewDomainError(CodeInvalidAmount, "Amount must be positive")
	ErrIdempotencyKeyReused  = shared.NewDomainError(CodeIdempotencyKeyReused, "Idempotency key was already used for a different payment")
)

package dto

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mandi/backend/internal/domain/ledger"
	"github.com/mandi/backend/internal/domain/shared"
)

// DateLayout is the calendar date format used in requests and query strings
const DateLayout = "2006-01-02"

// IdempotencyKeyHeader carries the client's idempotency key
const IdempotencyKeyHeader = "Idempotency-Key"

// RecordPaymentRequest is the body of POST /vendors/:id/payments and
// POST /retailers/:id/payments. The amount accepts a JSON number or string.
type RecordPaymentRequest struct {
	Amount         decimal.Decimal `json:"amount" binding:"required,decimal_positive"`
	PaymentMode    string          `json:"payment_mode" binding:"required,payment_mode"`
	PaymentDate    string          `json:"payment_date" binding:"omitempty,datetime=2006-01-02"`
	BankAccountID  string          `json:"bank_account_id" binding:"omitempty,uuid"`
	ChequeNumber   string          `json:"cheque_number" binding:"max=50"`
	UPIReference   string          `json:"upi_reference" binding:"max=100"`
	PaymentLinkID  string          `json:"payment_link_id" binding:"max=100"`
	Notes          string          `json:"notes" binding:"max=500"`
	IdempotencyKey string          `json:"idempotency_key" binding:"max=128"`
}

// ToDomain builds the payment instruction. A missing payment date means
// today; the Idempotency-Key header wins over the body field.
func (r RecordPaymentRequest) ToDomain(headerKey string, today time.Time) (ledger.PaymentRequest, error) {
	req := ledger.PaymentRequest{
		Amount:         r.Amount,
		Mode:           ledger.PaymentMode(strings.ToUpper(strings.TrimSpace(r.PaymentMode))),
		ChequeNumber:   r.ChequeNumber,
		UPIReference:   r.UPIReference,
		PaymentLinkID:  r.PaymentLinkID,
		Notes:          r.Notes,
		IdempotencyKey: r.IdempotencyKey,
	}
	if k := strings.TrimSpace(headerKey); k != "" {
		req.IdempotencyKey = k
	}

	if r.PaymentDate == "" {
		t := today.UTC()
		req.PaymentDate = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		d, err := time.Parse(DateLayout, r.PaymentDate)
		if err != nil {
			return req, shared.NewValidationError("payment_date", "payment date must be YYYY-MM-DD")
		}
		req.PaymentDate = d
	}

	if r.BankAccountID != "" {
		id, err := uuid.Parse(r.BankAccountID)
		if err != nil {
			return req, shared.NewValidationError("bank_account_id", "bank account id must be a UUID")
		}
		req.BankAccountID = &id
	}
	return req, nil
}

// DateRangeQuery is the from/to query of the cashbook and bankbook
type DateRangeQuery struct {
	From string `form:"from" binding:"required,datetime=2006-01-02"`
	To   string `form:"to" binding:"required,datetime=2006-01-02"`
}

// Parse returns the range as UTC dates
func (q DateRangeQuery) Parse() (time.Time, time.Time, error) {
	from, err := time.Parse(DateLayout, q.From)
	if err != nil {
		return time.Time{}, time.Time{}, shared.NewValidationError("from", "from must be YYYY-MM-DD")
	}
	to, err := time.Parse(DateLayout, q.To)
	if err != nil {
		return time.Time{}, time.Time{}, shared.NewValidationError("to", "to must be YYYY-MM-DD")
	}
	return from, to, nil
}

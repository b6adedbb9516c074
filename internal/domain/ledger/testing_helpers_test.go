package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testTenantID = uuid.MustParse("11111111-1111-1111-1111-111111111111")

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func outstandingInvoice(t *testing.T, number string, day int, balance string) *Invoice {
	t.Helper()
	date := time.Date(2024, time.March, day, 0, 0, 0, 0, time.UTC)
	inv, err := NewInvoice(testTenantID, InvoiceKindPurchase, uuid.New(), number, date, dec(balance))
	require.NoError(t, err)
	return inv
}

package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mandi/backend/internal/domain/ledger"
	"github.com/mandi/backend/internal/domain/shared"
	"github.com/mandi/backend/tests/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPayment(t *testing.T, party *ledger.Party, inv *ledger.Invoice, batchID uuid.UUID, amount int64, req ledger.PaymentRequest) *ledger.Payment {
	t.Helper()
	req.Amount = decimal.NewFromInt(amount)
	if req.Mode == "" {
		req.Mode = ledger.PaymentModeCash
	}
	if req.PaymentDate.IsZero() {
		req.PaymentDate = time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC)
	}
	alloc := ledger.Allocation{Invoice: inv, Amount: req.Amount}
	return ledger.NewPayment(party.TenantID, batchID, party.Ref(), alloc, req)
}

func TestPaymentRepository_CreateAndFindByBatch(t *testing.T) {
	db := testutil.NewLedgerDB(t)
	repo := NewGormPaymentRepository(db)
	ctx := context.Background()
	tenantID := testutil.TestTenantID()

	vendor := testutil.SeedParty(t, db, tenantID, ledger.PartyKindVendor, "Ramesh Traders")
	a := testutil.SeedInvoice(t, db, vendor, "PI-1", 1, 300, 1)
	b := testutil.SeedInvoice(t, db, vendor, "PI-2", 2, 700, 2)
	bank := testutil.SeedBankAccount(t, db, tenantID)
	batchID := uuid.New()

	req := ledger.PaymentRequest{Mode: ledger.PaymentModeCheque, BankAccountID: &bank, ChequeNumber: "000123", Notes: "march dues"}
	first := newTestPayment(t, vendor, a, batchID, 300, req)
	second := newTestPayment(t, vendor, b, batchID, 200, req)
	second.CreatedAt = first.CreatedAt.Add(time.Millisecond)

	require.NoError(t, repo.Create(ctx, first, second))
	require.NoError(t, repo.Create(ctx))

	got, err := repo.FindByBatch(ctx, tenantID, batchID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a.ID, got[0].InvoiceID)
	assert.Equal(t, "300", got[0].Amount.String())
	assert.Equal(t, b.ID, got[1].InvoiceID)
	assert.Equal(t, ledger.PaymentModeCheque, got[1].Mode)
	require.NotNil(t, got[1].BankAccountID)
	assert.Equal(t, bank, *got[1].BankAccountID)
	assert.Equal(t, "000123", got[1].Reference())
	assert.Equal(t, ledger.PartyKindVendor, got[1].PartyKind)

	none, err := repo.FindByBatch(ctx, testutil.OtherTenantID(), batchID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPaymentRequestRepository(t *testing.T) {
	db := testutil.NewLedgerDB(t)
	repo := NewGormPaymentRequestRepository(db)
	ctx := context.Background()
	tenantID := testutil.TestTenantID()

	record := &ledger.PaymentRequestRecord{
		ID:             uuid.New(),
		TenantID:       tenantID,
		IdempotencyKey: "req-42",
		BatchID:        uuid.New(),
		PartyKind:      ledger.PartyKindRetailer,
		PartyID:        uuid.New(),
		Amount:         decimal.NewFromInt(500),
		Allocated:      decimal.NewFromInt(200),
		Remainder:      decimal.NewFromInt(300),
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, repo.Create(ctx, record))

	found, err := repo.FindByKey(ctx, tenantID, " req-42 ")
	require.NoError(t, err)
	assert.Equal(t, record.BatchID, found.BatchID)
	assert.Equal(t, "300", found.Remainder.String())

	dup := *record
	dup.ID = uuid.New()
	assert.ErrorIs(t, repo.Create(ctx, &dup), shared.ErrAlreadyExists)

	// keys are per tenant
	dup.TenantID = testutil.OtherTenantID()
	require.NoError(t, repo.Create(ctx, &dup))

	_, err = repo.FindByKey(ctx, tenantID, "missing")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

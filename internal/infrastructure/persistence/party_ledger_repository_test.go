package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mandi/backend/internal/domain/ledger"
	"github.com/mandi/backend/internal/domain/shared"
	"github.com/mandi/backend/internal/infrastructure/persistence/models"
	"github.com/mandi/backend/tests/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartyLedger_OutstandingInvoices_FIFO(t *testing.T) {
	db := testutil.NewLedgerDB(t)
	repo := NewVendorLedger(db)
	ctx := context.Background()
	tenantID := testutil.TestTenantID()

	vendor := testutil.SeedParty(t, db, tenantID, ledger.PartyKindVendor, "Ramesh Traders")
	// inserted out of date order, two on the same day
	late := testutil.SeedInvoice(t, db, vendor, "PI-9", 10, 900, 1)
	sameDayFirst := testutil.SeedInvoice(t, db, vendor, "PI-2", 5, 200, 2)
	sameDaySecond := testutil.SeedInvoice(t, db, vendor, "PI-1", 5, 100, 3)
	settled := testutil.SeedInvoice(t, db, vendor, "PI-0", 1, 50, 4)
	require.NoError(t, repo.ApplyAllocation(ctx, settled, decimal.NewFromInt(50)))

	invoices, err := repo.OutstandingInvoices(ctx, tenantID, vendor.ID)
	require.NoError(t, err)
	require.Len(t, invoices, 3)
	assert.Equal(t, sameDayFirst.ID, invoices[0].ID)
	assert.Equal(t, sameDaySecond.ID, invoices[1].ID)
	assert.Equal(t, late.ID, invoices[2].ID)
	for _, inv := range invoices {
		assert.Equal(t, ledger.InvoiceKindPurchase, inv.Kind)
		assert.True(t, inv.BalanceAmount.IsPositive())
	}
}

func TestPartyLedger_OutstandingInvoices_Empty(t *testing.T) {
	db := testutil.NewLedgerDB(t)
	repo := NewRetailerLedger(db)
	tenantID := testutil.TestTenantID()
	retailer := testutil.SeedParty(t, db, tenantID, ledger.PartyKindRetailer, "Sharma Fruits")

	invoices, err := repo.OutstandingInvoices(context.Background(), tenantID, retailer.ID)
	require.NoError(t, err)
	assert.Empty(t, invoices)
}

func TestPartyLedger_TenantIsolation(t *testing.T) {
	db := testutil.NewLedgerDB(t)
	repo := NewVendorLedger(db)
	ctx := context.Background()

	vendor := testutil.SeedParty(t, db, testutil.TestTenantID(), ledger.PartyKindVendor, "Ramesh Traders")
	testutil.SeedInvoice(t, db, vendor, "PI-1", 1, 100, 1)
	other := testutil.OtherTenantID()

	_, err := repo.FindParty(ctx, other, vendor.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	invoices, err := repo.OutstandingInvoices(ctx, other, vendor.ID)
	require.NoError(t, err)
	assert.Empty(t, invoices)

	err = repo.AdjustPartyBalance(ctx, other, vendor.ID, decimal.NewFromInt(-10))
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Equal(t, "100", testutil.LoadParty(t, db, ledger.PartyKindVendor, vendor.ID).Balance.String())

	_, err = repo.OutstandingInvoices(ctx, uuid.Nil, vendor.ID)
	assert.ErrorIs(t, err, shared.ErrTenantRequired)
}

func TestPartyLedger_ApplyAllocation(t *testing.T) {
	db := testutil.NewLedgerDB(t)
	repo := NewVendorLedger(db)
	ctx := context.Background()
	vendor := testutil.SeedParty(t, db, testutil.TestTenantID(), ledger.PartyKindVendor, "Ramesh Traders")
	inv := testutil.SeedInvoice(t, db, vendor, "PI-1", 1, 300, 1)

	t.Run("partial then full", func(t *testing.T) {
		require.NoError(t, repo.ApplyAllocation(ctx, inv, decimal.NewFromInt(100)))
		stored := testutil.LoadInvoice(t, db, ledger.PartyKindVendor, inv.ID)
		assert.Equal(t, "100", stored.PaidAmount.String())
		assert.Equal(t, "200", stored.BalanceAmount.String())
		assert.Equal(t, ledger.InvoiceStatusPartiallyPaid, stored.Status)
		assert.Equal(t, inv.Version+1, stored.Version)

		require.NoError(t, repo.ApplyAllocation(ctx, stored, decimal.NewFromInt(200)))
		stored = testutil.LoadInvoice(t, db, ledger.PartyKindVendor, inv.ID)
		assert.True(t, stored.BalanceAmount.IsZero())
		assert.Equal(t, ledger.InvoiceStatusPaid, stored.Status)
		require.NoError(t, stored.CheckInvariants())
	})

	t.Run("stale copy is rejected", func(t *testing.T) {
		other := testutil.SeedInvoice(t, db, vendor, "PI-2", 2, 500, 2)
		stale := *other
		require.NoError(t, repo.ApplyAllocation(ctx, other, decimal.NewFromInt(100)))

		err := repo.ApplyAllocation(ctx, &stale, decimal.NewFromInt(100))
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.Equal(t, "400", testutil.LoadInvoice(t, db, ledger.PartyKindVendor, other.ID).BalanceAmount.String())
	})

	t.Run("over allocation is rejected", func(t *testing.T) {
		inv := testutil.SeedInvoice(t, db, vendor, "PI-3", 3, 50, 3)
		err := repo.ApplyAllocation(ctx, inv, decimal.NewFromInt(51))
		assert.ErrorIs(t, err, ledger.ErrExceedsBalance)
	})

	t.Run("wrong invoice kind", func(t *testing.T) {
		inv := testutil.SeedInvoice(t, db, vendor, "PI-4", 4, 50, 4)
		inv.Kind = ledger.InvoiceKindSales
		err := repo.ApplyAllocation(ctx, inv, decimal.NewFromInt(10))
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})
}

func TestPartyLedger_AdjustPartyBalance(t *testing.T) {
	db := testutil.NewLedgerDB(t)
	repo := NewRetailerLedger(db)
	ctx := context.Background()
	tenantID := testutil.TestTenantID()
	retailer := testutil.SeedParty(t, db, tenantID, ledger.PartyKindRetailer, "Sharma Fruits")
	testutil.SeedInvoice(t, db, retailer, "SI-1", 1, 1000, 1)

	require.NoError(t, repo.AdjustPartyBalance(ctx, tenantID, retailer.ID, decimal.NewFromInt(-250)))
	require.NoError(t, repo.AdjustPartyBalance(ctx, tenantID, retailer.ID, decimal.NewFromInt(-250)))

	party, err := repo.FindParty(ctx, tenantID, retailer.ID)
	require.NoError(t, err)
	assert.Equal(t, "500", party.Balance.String())
	assert.Equal(t, retailer.Version+2, party.Version)
}

func TestPartyLedger_FindInvoices(t *testing.T) {
	db := testutil.NewLedgerDB(t)
	repo := NewVendorLedger(db)
	ctx := context.Background()
	tenantID := testutil.TestTenantID()
	vendor := testutil.SeedParty(t, db, tenantID, ledger.PartyKindVendor, "Ramesh Traders")
	a := testutil.SeedInvoice(t, db, vendor, "PI-1", 1, 100, 1)
	b := testutil.SeedInvoice(t, db, vendor, "PI-2", 2, 100, 2)

	got, err := repo.FindInvoices(ctx, tenantID, ledger.InvoiceKindPurchase, []uuid.UUID{b.ID, a.ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a.ID, got[0].ID)

	got, err = repo.FindInvoices(ctx, tenantID, ledger.InvoiceKindPurchase, nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = repo.FindInvoices(ctx, tenantID, ledger.InvoiceKindSales, []uuid.UUID{a.ID})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestPartyLedger_FindInvoicesMatchesAllocationOrder(t *testing.T) {
	db := testutil.NewLedgerDB(t)
	repo := NewVendorLedger(db)
	ctx := context.Background()
	tenantID := testutil.TestTenantID()
	vendor := testutil.SeedParty(t, db, tenantID, ledger.PartyKindVendor, "Ramesh Traders")

	// same invoice date; creation order disagrees with sequence order
	first := testutil.SeedInvoice(t, db, vendor, "PI-A", 5, 300, 2)
	second := testutil.SeedInvoice(t, db, vendor, "PI-B", 5, 300, 1)
	base := time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)
	table := models.InvoiceTable(ledger.PartyKindVendor)
	require.NoError(t, db.Table(table).Where("id = ?", first.ID).Update("created_at", base).Error)
	require.NoError(t, db.Table(table).Where("id = ?", second.ID).Update("created_at", base.Add(time.Minute)).Error)

	outstanding, err := repo.OutstandingInvoices(ctx, tenantID, vendor.ID)
	require.NoError(t, err)
	require.Len(t, outstanding, 2)
	assert.Equal(t, "PI-A", outstanding[0].InvoiceNumber)

	found, err := repo.FindInvoices(ctx, tenantID, ledger.InvoiceKindPurchase, []uuid.UUID{second.ID, first.ID})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, outstanding[0].ID, found[0].ID)
	assert.Equal(t, outstanding[1].ID, found[1].ID)
}

func TestPartyLedger_CreateInvoiceRaisesBalance(t *testing.T) {
	db := testutil.NewLedgerDB(t)
	repo := NewVendorLedger(db)
	ctx := context.Background()
	tenantID := testutil.TestTenantID()

	vendor, err := ledger.NewParty(tenantID, ledger.PartyKindVendor, "Gupta & Sons", "")
	require.NoError(t, err)
	require.NoError(t, repo.CreateParty(ctx, vendor))

	inv, err := ledger.NewInvoice(tenantID, ledger.InvoiceKindPurchase, vendor.ID, "PI-1", vendor.CreatedAt, decimal.NewFromInt(750))
	require.NoError(t, err)
	require.NoError(t, repo.CreateInvoice(ctx, inv))
	assert.NotZero(t, inv.Sequence)

	assert.Equal(t, "750", testutil.LoadParty(t, db, ledger.PartyKindVendor, vendor.ID).Balance.String())

	retailer, err := ledger.NewParty(tenantID, ledger.PartyKindRetailer, "Sharma Fruits", "")
	require.NoError(t, err)
	assert.ErrorIs(t, repo.CreateParty(ctx, retailer), shared.ErrValidation)
}

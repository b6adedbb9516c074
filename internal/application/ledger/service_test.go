package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mandi/backend/internal/domain/ledger"
	"github.com/mandi/backend/internal/domain/shared"
	"github.com/mandi/backend/internal/infrastructure/persistence"
	"github.com/mandi/backend/internal/infrastructure/persistence/models"
	"github.com/mandi/backend/internal/infrastructure/storage"
	"github.com/mandi/backend/tests/testutil"
)

type mockProjection struct {
	mock.Mock
}

func (m *mockProjection) PartyStatement(ctx context.Context, tenantID uuid.UUID, party ledger.PartyRef) (*ledger.PartyStatement, error) {
	args := m.Called(ctx, tenantID, party)
	st, _ := args.Get(0).(*ledger.PartyStatement)
	return st, args.Error(1)
}

func (m *mockProjection) Cashbook(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*ledger.Book, error) {
	args := m.Called(ctx, tenantID, from, to)
	b, _ := args.Get(0).(*ledger.Book)
	return b, args.Error(1)
}

func (m *mockProjection) Bankbook(ctx context.Context, tenantID, bankAccountID uuid.UUID, from, to time.Time) (*ledger.Book, error) {
	args := m.Called(ctx, tenantID, bankAccountID, from, to)
	b, _ := args.Get(0).(*ledger.Book)
	return b, args.Error(1)
}

func day(d int) time.Time {
	return time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC)
}

func TestQueryService_Validation(t *testing.T) {
	proj := new(mockProjection)
	svc := NewQueryService(proj)
	ctx := context.Background()
	tenantID := testutil.TestTenantID()

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"statement without tenant", func() error {
			_, err := svc.Statement(ctx, uuid.Nil, ledger.PartyRef{Kind: ledger.PartyKindVendor, ID: uuid.New()})
			return err
		}, shared.ErrTenantRequired},
		{"statement with bad kind", func() error {
			_, err := svc.Statement(ctx, tenantID, ledger.PartyRef{Kind: "BROKER", ID: uuid.New()})
			return err
		}, shared.ErrValidation},
		{"cashbook reversed range", func() error {
			_, err := svc.Cashbook(ctx, tenantID, day(10), day(1))
			return err
		}, shared.ErrValidation},
		{"cashbook too long", func() error {
			_, err := svc.Cashbook(ctx, tenantID, day(1), day(1).AddDate(2, 0, 0))
			return err
		}, shared.ErrValidation},
		{"bankbook without account", func() error {
			_, err := svc.Bankbook(ctx, tenantID, uuid.Nil, day(1), day(2))
			return err
		}, shared.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), tt.want)
		})
	}
	proj.AssertNotCalled(t, "PartyStatement", mock.Anything, mock.Anything, mock.Anything)
	proj.AssertNotCalled(t, "Cashbook", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestQueryService_DelegatesToProjection(t *testing.T) {
	proj := new(mockProjection)
	svc := NewQueryService(proj)
	tenantID := testutil.TestTenantID()
	account := uuid.New()

	want := &ledger.Book{OpeningBalance: decimal.NewFromInt(100)}
	proj.On("Bankbook", mock.Anything, tenantID, account, day(1), day(31)).Return(want, nil)
	proj.On("Cashbook", mock.Anything, tenantID, day(1), day(31)).Return(nil, shared.ErrStorageFailure)

	got, err := svc.Bankbook(context.Background(), tenantID, account, day(1), day(31))
	require.NoError(t, err)
	assert.Same(t, want, got)

	_, err = svc.Cashbook(context.Background(), tenantID, day(1), day(31))
	assert.ErrorIs(t, err, shared.ErrStorageFailure)
	proj.AssertExpectations(t)
}

func TestQueryService_StatementFromStoredInvoices(t *testing.T) {
	db := testutil.NewLedgerDB(t)
	tenantID := testutil.TestTenantID()
	vendor := testutil.SeedParty(t, db, tenantID, ledger.PartyKindVendor, "Ramesh Traders")
	testutil.SeedInvoice(t, db, vendor, "PI-1", 1, 300, 1)
	testutil.SeedInvoice(t, db, vendor, "PI-2", 2, 700, 2)

	svc := NewQueryService(persistence.NewGormLedgerProjection(db))
	st, err := svc.Statement(context.Background(), tenantID, vendor.Ref())
	require.NoError(t, err)

	require.Len(t, st.Lines, 2)
	assert.Equal(t, "PI-1", st.Lines[0].Reference)
	assert.True(t, st.Lines[1].RunningBalance.Equal(decimal.NewFromInt(1000)))
	assert.True(t, st.ClosingBalance.Equal(st.RecordedBalance))

	_, err = svc.Statement(context.Background(), testutil.OtherTenantID(), vendor.Ref())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

type failingArchive struct{}

func (failingArchive) Store(context.Context, string, []byte, string) (string, error) {
	return "", errors.New("bucket unavailable")
}

func TestAuditService_ReportsAndArchivesDrift(t *testing.T) {
	db := testutil.NewLedgerDB(t)
	tenantID := testutil.TestTenantID()
	clean := testutil.SeedParty(t, db, tenantID, ledger.PartyKindRetailer, "Sharma Fruits")
	testutil.SeedInvoice(t, db, clean, "SI-1", 1, 200, 1)
	drifted := testutil.SeedParty(t, db, tenantID, ledger.PartyKindVendor, "Ramesh Traders")
	testutil.SeedInvoice(t, db, drifted, "PI-1", 1, 300, 1)
	require.NoError(t, db.Table(models.TableVendors).Where("id = ?", drifted.ID).
		Update("balance", decimal.NewFromInt(450)).Error)

	archive := storage.NewMemoryReportArchive()
	at := time.Date(2024, time.March, 31, 18, 30, 0, 0, time.UTC)
	svc := NewAuditService(persistence.NewGormLedgerProjection(db), WithArchive(archive), WithClock(func() time.Time { return at }))

	report, err := svc.Run(context.Background(), tenantID)
	require.NoError(t, err)
	assert.False(t, report.Clean())
	require.Len(t, report.Drifts, 1)
	assert.Equal(t, drifted.ID, report.Drifts[0].PartyID)
	assert.True(t, report.Drifts[0].Drift.Equal(decimal.NewFromInt(150)))

	key := ReportKey(tenantID, at)
	assert.True(t, strings.HasSuffix(key, "balance-audit-20240331T183000Z.json"))
	assert.Equal(t, "mem://"+key, report.Location)

	body, ok := archive.Get(key)
	require.True(t, ok)
	var stored AuditReport
	require.NoError(t, json.Unmarshal(body, &stored))
	assert.Equal(t, tenantID, stored.TenantID)
	assert.Len(t, stored.Drifts, 1)
}

func TestAuditService_Errors(t *testing.T) {
	db := testutil.NewLedgerDB(t)
	svc := NewAuditService(persistence.NewGormLedgerProjection(db), WithArchive(failingArchive{}))

	_, err := svc.Run(context.Background(), uuid.Nil)
	assert.ErrorIs(t, err, shared.ErrTenantRequired)

	_, err = svc.Run(context.Background(), testutil.TestTenantID())
	assert.ErrorIs(t, err, shared.ErrStorageFailure)

	report, err := NewAuditService(persistence.NewGormLedgerProjection(db)).Run(context.Background(), testutil.TestTenantID())
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Empty(t, report.Location)
}

// Package testutil provides shared fixtures for ledger tests: an in-memory
// SQLite database carrying the ledger tables, row seeders and polling helpers.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mandi/backend/internal/domain/ledger"
	"github.com/mandi/backend/internal/domain/shared"
	"github.com/mandi/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockDB wraps a GORM postgres dialect over sqlmock
type MockDB struct {
	DB    *gorm.DB
	Mock  sqlmock.Sqlmock
	SqlDB *sql.DB
}

// NewMockDB creates a mock database closed when the test ends
func NewMockDB(t *testing.T) *MockDB {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err, "Failed to create sqlmock")
	t.Cleanup(func() { _ = mockDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err, "Failed to open GORM connection")

	return &MockDB{DB: gormDB, Mock: mock, SqlDB: mockDB}
}

// ExpectationsWereMet verifies that all expectations were met
func (m *MockDB) ExpectationsWereMet(t *testing.T) {
	t.Helper()
	require.NoError(t, m.Mock.ExpectationsWereMet(), "Unmet database expectations")
}

// NewLedgerDB opens an in-memory SQLite database with every ledger table.
// A single connection is used, so concurrent transactions serialize.
func NewLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, table := range []string{models.TableVendors, models.TableRetailers} {
		require.NoError(t, db.Table(table).AutoMigrate(&models.PartyModel{}))
	}
	for _, table := range []string{models.TablePurchaseInvoices, models.TableSalesInvoices} {
		require.NoError(t, db.Table(table).AutoMigrate(&models.InvoiceModel{}))
	}
	require.NoError(t, db.AutoMigrate(
		&models.PaymentModel{},
		&models.BankAccountModel{},
		&models.PaymentRequestModel{},
		&models.OutboxEntryModel{},
	))
	return db
}

// SeedParty inserts an active party with a zero balance
func SeedParty(t *testing.T, db *gorm.DB, tenantID uuid.UUID, kind ledger.PartyKind, name string) *ledger.Party {
	t.Helper()

	party, err := ledger.NewParty(tenantID, kind, name, "+91 98000 00000")
	require.NoError(t, err)
	require.NoError(t, db.Table(models.PartyTable(kind)).Create(models.PartyModelFromDomain(party)).Error)
	return party
}

// SeedInvoice inserts an unpaid invoice for party dated day days into March 2024
// and adds its amount to the party balance. seq fixes the insertion order.
func SeedInvoice(t *testing.T, db *gorm.DB, party *ledger.Party, number string, day int, net int64, seq int64) *ledger.Invoice {
	t.Helper()

	date := time.Date(2024, time.March, day, 0, 0, 0, 0, time.UTC)
	inv, err := ledger.NewInvoice(party.TenantID, party.Kind.InvoiceKind(), party.ID, number, date, decimal.NewFromInt(net))
	require.NoError(t, err)
	inv.Sequence = seq

	require.NoError(t, db.Table(models.InvoiceTable(party.Kind)).Create(models.InvoiceModelFromDomain(inv)).Error)
	require.NoError(t, db.Table(models.PartyTable(party.Kind)).
		Where("id = ?", party.ID).
		Update("balance", gorm.Expr("balance + ?", inv.NetAmount)).Error)
	party.Balance = party.Balance.Add(inv.NetAmount)
	return inv
}

// SeedBankAccount inserts an active bank account owned by tenantID
func SeedBankAccount(t *testing.T, db *gorm.DB, tenantID uuid.UUID) uuid.UUID {
	t.Helper()

	root := shared.NewTenantAggregateRoot(tenantID)
	account := &models.BankAccountModel{
		Name:          "Current Account",
		AccountNumber: fmt.Sprintf("%012d", time.Now().UnixNano()%1_000_000_000_000),
		IFSC:          "SBIN0001234",
		IsActive:      true,
	}
	account.FromDomainTenantAggregateRoot(root)
	require.NoError(t, db.Create(account).Error)
	return account.ID
}

// LoadInvoice reads an invoice row back
func LoadInvoice(t *testing.T, db *gorm.DB, kind ledger.PartyKind, id uuid.UUID) *ledger.Invoice {
	t.Helper()

	var m models.InvoiceModel
	require.NoError(t, db.Table(models.InvoiceTable(kind)).Where("id = ?", id).Take(&m).Error)
	return m.ToDomain(kind.InvoiceKind())
}

// LoadParty reads a party row back
func LoadParty(t *testing.T, db *gorm.DB, kind ledger.PartyKind, id uuid.UUID) *ledger.Party {
	t.Helper()

	var m models.PartyModel
	require.NoError(t, db.Table(models.PartyTable(kind)).Where("id = ?", id).Take(&m).Error)
	return m.ToDomain(kind)
}

// CountRows counts the rows of table owned by tenantID
func CountRows(t *testing.T, db *gorm.DB, table string, tenantID uuid.UUID) int64 {
	t.Helper()

	var n int64
	require.NoError(t, db.Table(table).Where("tenant_id = ?", tenantID).Count(&n).Error)
	return n
}

// NewTestUUID derives a stable UUID from seed
func NewTestUUID(seed string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed))
}

// TestTenantID returns the tenant most tests run under
func TestTenantID() uuid.UUID {
	return NewTestUUID("test-tenant")
}

// OtherTenantID returns a second tenant for isolation tests
func OtherTenantID() uuid.UUID {
	return NewTestUUID("other-tenant")
}

// ContextWithTimeout creates a context with a timeout for tests
func ContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// RequireEventually polls condition until it holds or timeout passes
func RequireEventually(t *testing.T, condition func() bool, timeout, interval time.Duration, msgAndArgs ...any) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(interval)
	}
	require.Fail(t, "Condition not met within timeout", msgAndArgs...)
}

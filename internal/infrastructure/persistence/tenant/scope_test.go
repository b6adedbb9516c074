package tenant

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/mandi/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type testInvoice struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID uuid.UUID `gorm:"type:uuid"`
	Number   string
}

func (testInvoice) TableName() string {
	return "test_invoices"
}

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return gormDB, mock, mockDB
}

func TestScope(t *testing.T) {
	t.Run("adds tenant predicate", func(t *testing.T) {
		db, mock, mockDB := setupMockDB(t)
		defer mockDB.Close()
		tenantID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "test_invoices" WHERE tenant_id = \$1`).
			WithArgs(tenantID.String()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "number"}))

		var rows []testInvoice
		require.NoError(t, db.Scopes(Scope(tenantID)).Find(&rows).Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fails closed without tenant", func(t *testing.T) {
		db, mock, mockDB := setupMockDB(t)
		defer mockDB.Close()

		var rows []testInvoice
		err := db.Scopes(Scope(uuid.Nil)).Find(&rows).Error
		assert.ErrorIs(t, err, shared.ErrTenantRequired)
		// nothing reached the database
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("update is filtered too", func(t *testing.T) {
		db, mock, mockDB := setupMockDB(t)
		defer mockDB.Close()
		tenantID := uuid.New()
		id := uuid.New()

		// scopes run at build time, so only the presence of both predicates is asserted
		mock.ExpectExec(`UPDATE "test_invoices" SET "number"=\$1 WHERE .*(tenant_id = .*id = |id = .*tenant_id = )`).
			WithArgs("INV-2", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		res := db.Model(&testInvoice{}).Scopes(Scope(tenantID)).Where("id = ?", id).Update("number", "INV-2")
		require.NoError(t, res.Error)
		assert.Zero(t, res.RowsAffected)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTableScope(t *testing.T) {
	db, mock, mockDB := setupMockDB(t)
	defer mockDB.Close()
	tenantID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "test_invoices" WHERE test_invoices.tenant_id = \$1`).
		WithArgs(tenantID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "number"}))

	var rows []testInvoice
	require.NoError(t, db.Scopes(TableScope("test_invoices", tenantID)).Find(&rows).Error)
	assert.NoError(t, mock.ExpectationsWereMet())

	err := db.Scopes(TableScope("test_invoices", uuid.Nil)).Find(&rows).Error
	assert.ErrorIs(t, err, shared.ErrTenantRequired)
}

func TestFromContext(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		_, err := FromContext(context.Background())
		assert.ErrorIs(t, err, shared.ErrTenantRequired)
	})

	t.Run("round trip", func(t *testing.T) {
		id := uuid.New()
		got, err := FromContext(WithTenant(context.Background(), id))
		require.NoError(t, err)
		assert.Equal(t, id, got)
	})

	t.Run("nil uuid rejected", func(t *testing.T) {
		_, err := FromContext(WithTenant(context.Background(), uuid.Nil))
		assert.ErrorIs(t, err, shared.ErrTenantRequired)
	})
}

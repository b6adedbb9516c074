package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mandi/backend/internal/domain/ledger"
	"github.com/mandi/backend/internal/domain/shared"
	"github.com/mandi/backend/internal/infrastructure/persistence/models"
	"github.com/mandi/backend/tests/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTxOptions() TxOptions {
	return TxOptions{Isolation: sql.LevelSerializable, MaxRetries: 2, RetryBackoff: time.Millisecond}
}

func TestTransactionManager_CommitAndRollback(t *testing.T) {
	db := testutil.NewLedgerDB(t)
	tm := NewTransactionManager(db, testTxOptions())
	repo := NewVendorLedger(db)
	tenantID := testutil.TestTenantID()
	vendor := testutil.SeedParty(t, db, tenantID, ledger.PartyKindVendor, "Ramesh Traders")

	t.Run("commit", func(t *testing.T) {
		err := tm.RunInTx(context.Background(), func(ctx context.Context) error {
			assert.True(t, InTx(ctx))
			return repo.AdjustPartyBalance(ctx, tenantID, vendor.ID, decimal.NewFromInt(10))
		})
		require.NoError(t, err)
		assert.Equal(t, "10", testutil.LoadParty(t, db, ledger.PartyKindVendor, vendor.ID).Balance.String())
	})

	t.Run("rollback on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := tm.RunInTx(context.Background(), func(ctx context.Context) error {
			require.NoError(t, repo.AdjustPartyBalance(ctx, tenantID, vendor.ID, decimal.NewFromInt(90)))
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, "10", testutil.LoadParty(t, db, ledger.PartyKindVendor, vendor.ID).Balance.String())
	})

	t.Run("nested call joins outer transaction", func(t *testing.T) {
		err := tm.RunInTx(context.Background(), func(ctx context.Context) error {
			outer := txFromContext(ctx)
			require.NoError(t, tm.RunInTx(ctx, func(inner context.Context) error {
				assert.Same(t, outer, txFromContext(inner))
				return repo.AdjustPartyBalance(inner, tenantID, vendor.ID, decimal.NewFromInt(5))
			}))
			return errors.New("abort outer")
		})
		require.Error(t, err)
		assert.Equal(t, "10", testutil.LoadParty(t, db, ledger.PartyKindVendor, vendor.ID).Balance.String())
	})
}

func TestTransactionManager_RetriesSerializationFailures(t *testing.T) {
	db := testutil.NewLedgerDB(t)
	tm := NewTransactionManager(db, testTxOptions())

	t.Run("succeeds after transient conflict", func(t *testing.T) {
		calls := 0
		err := tm.RunInTx(context.Background(), func(ctx context.Context) error {
			calls++
			if calls == 1 {
				return &pgconn.PgError{Code: pgSerializationFailure}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := tm.RunInTx(context.Background(), func(ctx context.Context) error {
			calls++
			return fmt.Errorf("update: %w", &pgconn.PgError{Code: pgDeadlockDetected})
		})
		require.Error(t, err)
		assert.True(t, IsRetryableTxError(err))
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry domain errors", func(t *testing.T) {
		calls := 0
		err := tm.RunInTx(context.Background(), func(ctx context.Context) error {
			calls++
			return ledger.ErrNoOutstandingInvoices
		})
		assert.ErrorIs(t, err, ledger.ErrNoOutstandingInvoices)
		assert.Equal(t, 1, calls)
	})

	t.Run("optimistic conflicts are retried", func(t *testing.T) {
		calls := 0
		err := tm.RunInTx(context.Background(), func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return shared.ErrConcurrencyConflict
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})
}

func TestGetDB_WithoutTransaction(t *testing.T) {
	db := testutil.NewLedgerDB(t)
	ctx := context.Background()
	assert.False(t, InTx(ctx))

	var n int64
	require.NoError(t, GetDB(ctx, db).Model(&models.PaymentModel{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestTranslateError(t *testing.T) {
	assert.Nil(t, translateError(nil, "op"))
	assert.ErrorIs(t, translateError(errors.New("connection reset"), "op"), shared.ErrStorageFailure)
	assert.ErrorIs(t, translateError(shared.ErrTenantMismatch, "op"), shared.ErrTenantMismatch)

	pgErr := &pgconn.PgError{Code: pgSerializationFailure}
	assert.Same(t, error(pgErr), translateError(pgErr, "op"))
}

package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mandi/backend/internal/domain/shared"
	"github.com/mandi/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type txContextKey struct{}

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// TxOptions configures GormTransactionManager
type TxOptions struct {
	// Isolation applies to transactions started without explicit options
	Isolation sql.IsolationLevel
	// MaxRetries is how often a transaction aborted by a serialization
	// failure or deadlock is re-run. Zero disables retries.
	MaxRetries int
	// RetryBackoff is the wait before the first retry, doubled on each attempt
	RetryBackoff time.Duration
}

// DefaultTxOptions runs serializable transactions with three retries
func DefaultTxOptions() TxOptions {
	return TxOptions{
		Isolation:    sql.LevelSerializable,
		MaxRetries:   3,
		RetryBackoff: 20 * time.Millisecond,
	}
}

// GormTransactionManager implements shared.TransactionManager.
// The open transaction travels in the context; repositories pick it up with GetDB.
type GormTransactionManager struct {
	db   *gorm.DB
	opts TxOptions
}

// NewTransactionManager creates a transaction manager over db
func NewTransactionManager(db *gorm.DB, opts TxOptions) *GormTransactionManager {
	return &GormTransactionManager{db: db, opts: opts}
}

// RunInTx runs fn inside a transaction.
// A call made while a transaction is already open joins it, so retries only
// happen at the outermost level where the whole unit of work can be replayed.
func (m *GormTransactionManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error, opts ...*sql.TxOptions) error {
	if tx := txFromContext(ctx); tx != nil {
		return fn(ctx)
	}

	txOpts := &sql.TxOptions{Isolation: m.opts.Isolation}
	if len(opts) > 0 && opts[0] != nil {
		txOpts = opts[0]
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(context.WithValue(ctx, txContextKey{}, tx))
		}, txOpts)
		if err == nil || !IsRetryableTxError(err) || attempt >= m.opts.MaxRetries {
			return err
		}

		wait := m.opts.RetryBackoff << uint(attempt)
		logger.L(ctx).Warn("retrying transaction after conflict",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(wait):
		}
	}
}

// GetDB returns the transaction carried by ctx, or root bound to ctx
func GetDB(ctx context.Context, root *gorm.DB) *gorm.DB {
	if tx := txFromContext(ctx); tx != nil {
		return tx.WithContext(ctx)
	}
	return root.WithContext(ctx)
}

// InTx reports whether ctx carries an open transaction
func InTx(ctx context.Context) bool {
	return txFromContext(ctx) != nil
}

func txFromContext(ctx context.Context) *gorm.DB {
	tx, _ := ctx.Value(txContextKey{}).(*gorm.DB)
	return tx
}

// IsRetryableTxError reports postgres serialization failures and deadlocks
func IsRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	return errors.Is(err, shared.ErrConcurrencyConflict)
}

var _ shared.TransactionManager = (*GormTransactionManager)(nil)

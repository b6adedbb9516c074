package persistence

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/mandi/backend/internal/domain/ledger"
	"github.com/mandi/backend/internal/infrastructure/persistence/models"
	"github.com/mandi/backend/internal/infrastructure/persistence/tenant"
	"gorm.io/gorm"
)

// GormPaymentRepository implements ledger.PaymentRepository
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// Create inserts payment rows in one statement
func (r *GormPaymentRepository) Create(ctx context.Context, payments ...*ledger.Payment) error {
	if len(payments) == 0 {
		return nil
	}
	rows := make([]*models.PaymentModel, len(payments))
	for i, p := range payments {
		rows[i] = models.PaymentModelFromDomain(p)
	}
	return translateError(GetDB(ctx, r.db).Create(&rows).Error, "insert payments")
}

// FindByBatch returns the rows created by one payment instruction in allocation order
func (r *GormPaymentRepository) FindByBatch(ctx context.Context, tenantID, batchID uuid.UUID) ([]*ledger.Payment, error) {
	var rows []models.PaymentModel
	err := GetDB(ctx, r.db).
		Scopes(tenant.Scope(tenantID)).
		Where("batch_id = ?", batchID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err, "find payments by batch")
	}
	payments := make([]*ledger.Payment, len(rows))
	for i := range rows {
		payments[i] = rows[i].ToDomain()
	}
	return payments, nil
}

// GormPaymentRequestRepository implements ledger.PaymentRequestRepository
type GormPaymentRequestRepository struct {
	db *gorm.DB
}

// NewGormPaymentRequestRepository creates a new GormPaymentRequestRepository
func NewGormPaymentRequestRepository(db *gorm.DB) *GormPaymentRequestRepository {
	return &GormPaymentRequestRepository{db: db}
}

// FindByKey returns the record stored under key, or shared.ErrNotFound
func (r *GormPaymentRequestRepository) FindByKey(ctx context.Context, tenantID uuid.UUID, key string) (*ledger.PaymentRequestRecord, error) {
	var model models.PaymentRequestModel
	err := GetDB(ctx, r.db).
		Scopes(tenant.Scope(tenantID)).
		Where("idempotency_key = ?", strings.TrimSpace(key)).
		Take(&model).Error
	if err != nil {
		return nil, translateError(err, "find payment request")
	}
	return model.ToDomain(), nil
}

// Create inserts the record; a taken key yields shared.ErrAlreadyExists
func (r *GormPaymentRequestRepository) Create(ctx context.Context, record *ledger.PaymentRequestRecord) error {
	return translateError(GetDB(ctx, r.db).Create(models.PaymentRequestModelFromDomain(record)).Error, "insert payment request")
}

var (
	_ ledger.PaymentRepository        = (*GormPaymentRepository)(nil)
	_ ledger.PaymentRequestRepository = (*GormPaymentRequestRepository)(nil)
)

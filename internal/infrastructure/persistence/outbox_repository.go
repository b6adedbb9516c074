package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mandi/backend/internal/domain/shared"
	"github.com/mandi/backend/internal/infrastructure/persistence/models"
	"github.com/mandi/backend/internal/infrastructure/persistence/tenant"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOutboxRepository implements shared.OutboxRepository.
// Save joins the transaction carried by ctx so events commit with the ledger rows.
type GormOutboxRepository struct {
	db *gorm.DB
}

// NewGormOutboxRepository creates a new GormOutboxRepository
func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

// Save persists one or more outbox entries
func (r *GormOutboxRepository) Save(ctx context.Context, entries ...*shared.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]*models.OutboxEntryModel, len(entries))
	for i, e := range entries {
		rows[i] = models.OutboxEntryModelFromDomain(e)
	}
	return translateError(GetDB(ctx, r.db).Create(&rows).Error, "insert outbox entries")
}

// FindPending retrieves pending entries, oldest first
func (r *GormOutboxRepository) FindPending(ctx context.Context, limit int) ([]*shared.OutboxEntry, error) {
	var rows []models.OutboxEntryModel
	err := GetDB(ctx, r.db).
		Where("status = ?", shared.OutboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return toOutboxEntries(rows), translateError(err, "find pending outbox entries")
}

// FindRetryable retrieves failed entries whose backoff expired before the given time
func (r *GormOutboxRepository) FindRetryable(ctx context.Context, before time.Time, limit int) ([]*shared.OutboxEntry, error) {
	var rows []models.OutboxEntryModel
	err := GetDB(ctx, r.db).
		Where("status = ? AND next_retry_at <= ?", shared.OutboxStatusFailed, before).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&rows).Error
	return toOutboxEntries(rows), translateError(err, "find retryable outbox entries")
}

// MarkProcessing claims entries with FOR UPDATE SKIP LOCKED and returns the ones it won
func (r *GormOutboxRepository) MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*shared.OutboxEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []models.OutboxEntryModel
	err := GetDB(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("id IN ? AND status IN ?", ids, []shared.OutboxStatus{
				shared.OutboxStatusPending,
				shared.OutboxStatusFailed,
			}).
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		claimed := make([]uuid.UUID, len(rows))
		for i := range rows {
			claimed[i] = rows[i].ID
		}
		now := time.Now().UTC()
		if err := tx.Model(&models.OutboxEntryModel{}).
			Where("id IN ?", claimed).
			Updates(map[string]any{
				"status":     shared.OutboxStatusProcessing,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}
		for i := range rows {
			rows[i].Status = shared.OutboxStatusProcessing
			rows[i].UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return nil, translateError(err, "claim outbox entries")
	}
	return toOutboxEntries(rows), nil
}

// ReleaseStale turns entries stuck in PROCESSING since before claimedBefore
// into FAILED entries due now, so a worker that died mid-delivery does not
// strand them. The retry count is left alone.
func (r *GormOutboxRepository) ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	now := time.Now().UTC()
	result := GetDB(ctx, r.db).Model(&models.OutboxEntryModel{}).
		Where("status = ? AND updated_at < ?", shared.OutboxStatusProcessing, claimedBefore).
		Updates(map[string]any{
			"status":        shared.OutboxStatusFailed,
			"next_retry_at": now,
			"last_error":    "delivery interrupted, claim expired",
			"updated_at":    now,
		})
	return result.RowsAffected, translateError(result.Error, "release stale outbox entries")
}

// Update writes back the delivery state of an entry
func (r *GormOutboxRepository) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	entry.UpdatedAt = time.Now().UTC()
	return translateError(GetDB(ctx, r.db).Save(models.OutboxEntryModelFromDomain(entry)).Error, "update outbox entry")
}

// DeleteOlderThan deletes sent entries processed before the cutoff
func (r *GormOutboxRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := GetDB(ctx, r.db).
		Where("status = ? AND processed_at < ?", shared.OutboxStatusSent, before).
		Delete(&models.OutboxEntryModel{})
	return result.RowsAffected, translateError(result.Error, "delete outbox entries")
}

// FindDead pages through dead letters, newest first.
// A nil tenant lists every tenant's dead letters.
func (r *GormOutboxRepository) FindDead(ctx context.Context, tenantID uuid.UUID, page, pageSize int) ([]*shared.OutboxEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	base := func() *gorm.DB {
		q := GetDB(ctx, r.db).Model(&models.OutboxEntryModel{}).Where("status = ?", shared.OutboxStatusDead)
		if tenantID != uuid.Nil {
			q = q.Scopes(tenant.Scope(tenantID))
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, translateError(err, "count dead outbox entries")
	}
	var rows []models.OutboxEntryModel
	if err := base().
		Order("updated_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, translateError(err, "find dead outbox entries")
	}
	return toOutboxEntries(rows), total, nil
}

// FindByID retrieves a single outbox entry
func (r *GormOutboxRepository) FindByID(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	var row models.OutboxEntryModel
	if err := GetDB(ctx, r.db).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, translateError(err, "find outbox entry")
	}
	return row.ToDomain(), nil
}

// ResetDead moves dead letters back to PENDING and returns how many moved.
// A nil tenant resets every tenant's dead letters.
func (r *GormOutboxRepository) ResetDead(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	q := GetDB(ctx, r.db).Model(&models.OutboxEntryModel{}).Where("status = ?", shared.OutboxStatusDead)
	if tenantID != uuid.Nil {
		q = q.Scopes(tenant.Scope(tenantID))
	}
	result := q.Updates(map[string]any{
		"status":        shared.OutboxStatusPending,
		"retry_count":   0,
		"last_error":    "",
		"next_retry_at": nil,
		"updated_at":    time.Now().UTC(),
	})
	return result.RowsAffected, translateError(result.Error, "reset dead outbox entries")
}

// CountByStatus returns the number of entries in each status
func (r *GormOutboxRepository) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	var results []struct {
		Status shared.OutboxStatus
		Count  int64
	}
	err := GetDB(ctx, r.db).
		Model(&models.OutboxEntryModel{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&results).Error
	if err != nil {
		return nil, translateError(err, "count outbox entries")
	}
	counts := make(map[shared.OutboxStatus]int64, len(results))
	for _, res := range results {
		counts[res.Status] = res.Count
	}
	return counts, nil
}

func toOutboxEntries(rows []models.OutboxEntryModel) []*shared.OutboxEntry {
	entries := make([]*shared.OutboxEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries
}

var _ shared.OutboxRepository = (*GormOutboxRepository)(nil)

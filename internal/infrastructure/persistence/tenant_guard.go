package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mandi/backend/internal/domain/ledger"
	"github.com/mandi/backend/internal/domain/shared"
	"github.com/mandi/backend/internal/infrastructure/logger"
	"github.com/mandi/backend/internal/infrastructure/persistence/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// refTables maps guard entity kinds to the tables holding them
var refTables = map[string]string{
	ledger.RefVendor:          models.TableVendors,
	ledger.RefRetailer:        models.TableRetailers,
	ledger.RefBankAccount:     models.TableBankAccounts,
	ledger.RefPurchaseInvoice: models.TablePurchaseInvoices,
	ledger.RefSalesInvoice:    models.TableSalesInvoices,
}

// GormTenantGuard implements shared.TenantGuard by reading the tenant column of each reference
type GormTenantGuard struct {
	db *gorm.DB
}

// NewTenantGuard creates a tenant guard
func NewTenantGuard(db *gorm.DB) *GormTenantGuard {
	return &GormTenantGuard{db: db}
}

// AssertSameTenant checks that every ref exists and belongs to tenantID.
// The lookup is deliberately unscoped: a row owned by another tenant must be
// seen so it can be reported as a mismatch rather than a missing row.
func (g *GormTenantGuard) AssertSameTenant(ctx context.Context, tenantID uuid.UUID, refs ...shared.EntityRef) error {
	if tenantID == uuid.Nil {
		return shared.ErrTenantRequired
	}
	for _, ref := range refs {
		table, ok := refTables[ref.Kind]
		if !ok {
			return shared.ErrInvalidState.WithMessage(fmt.Sprintf("tenant guard: unknown entity kind %q", ref.Kind))
		}
		if ref.ID == uuid.Nil {
			return shared.NewValidationError(ref.Kind+"_id", "reference id is required")
		}

		var owners []uuid.UUID
		err := GetDB(ctx, g.db).Table(table).Where("id = ?", ref.ID).Limit(1).Pluck("tenant_id", &owners).Error
		if err != nil {
			return translateError(err, "tenant guard lookup")
		}
		if len(owners) == 0 {
			return shared.ErrNotFound.WithMessage(fmt.Sprintf("%s not found", ref.Kind))
		}
		if owners[0] != tenantID {
			logger.L(ctx).Security("cross tenant reference rejected",
				zap.String("entity_kind", ref.Kind),
				zap.String("entity_id", ref.ID.String()),
				zap.String("tenant_id", tenantID.String()),
				zap.String("owner_tenant_id", owners[0].String()),
			)
			return shared.ErrTenantMismatch
		}
	}
	return nil
}

var _ shared.TenantGuard = (*GormTenantGuard)(nil)

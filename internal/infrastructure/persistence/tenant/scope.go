// Package tenant provides the mandatory tenant filter for GORM queries.
//
// Every query against tenant owned tables goes through Scope, which fails
// closed: a missing tenant id turns the statement into an error instead of
// an unfiltered query.
//
//	db.Scopes(tenant.Scope(tenantID)).Find(&invoices)
package tenant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mandi/backend/internal/domain/shared"
	"github.com/mandi/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

// Column is the tenant column every tenant owned table carries
const Column = "tenant_id"

// Scope filters by tenant_id, or aborts the statement when tenantID is nil
func Scope(tenantID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if tenantID == uuid.Nil {
			_ = db.AddError(shared.ErrTenantRequired)
			return db
		}
		return db.Where(Column+" = ?", tenantID)
	}
}

// TableScope is Scope with the column qualified by table, for joined queries
func TableScope(table string, tenantID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if tenantID == uuid.Nil {
			_ = db.AddError(shared.ErrTenantRequired)
			return db
		}
		return db.Where(fmt.Sprintf("%s.%s = ?", table, Column), tenantID)
	}
}

// FromContext returns the tenant set on ctx by the tenant middleware
func FromContext(ctx context.Context) (uuid.UUID, error) {
	raw := logger.GetTenantID(ctx)
	if raw == "" {
		return uuid.Nil, shared.ErrTenantRequired
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, shared.ErrTenantRequired.WithMessage("tenant id is not a valid uuid")
	}
	return id, nil
}

// WithTenant returns ctx carrying tenantID and a logger tagged with it
func WithTenant(ctx context.Context, tenantID uuid.UUID) context.Context {
	ctx, _ = logger.WithTenantID(ctx, logger.FromContext(ctx), tenantID.String())
	return ctx
}

package shared

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// TransactionManager runs fn inside one database transaction.
// The transaction travels in the context passed to fn.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error, opts ...*sql.TxOptions) error
}

// EntityRef names a row that another row points at
type EntityRef struct {
	Kind string
	ID   uuid.UUID
}

// TenantGuard verifies that referenced rows belong to the calling tenant
type TenantGuard interface {
	AssertSameTenant(ctx context.Context, tenantID uuid.UUID, refs ...EntityRef) error
}

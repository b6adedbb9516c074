package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mandi/backend/internal/domain/shared"
	"github.com/mandi/backend/internal/infrastructure/logger"
	"github.com/mandi/backend/internal/infrastructure/telemetry"
)

// Tenant context keys
const (
	TenantIDKey     = "tenant_id"
	ActorIDKey      = "actor_id"
	TenantHeaderKey = "X-Tenant-ID"
)

// TenantScope resolves the tenant from the verified token. It must run
// after JWTAuth. A X-Tenant-ID header that names a different tenant is
// refused and logged as a security event.
func TenantScope(metrics *telemetry.LedgerMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetJWTClaims(c)
		if claims == nil {
			abortWithCode(c, shared.CodeTenantRequired, "Tenant identification required")
			return
		}
		tenantID, err := claims.GetTenantUUID()
		if err != nil || tenantID == uuid.Nil {
			abortWithCode(c, shared.CodeTenantRequired, "Tenant identification required")
			return
		}

		ctx := c.Request.Context()
		if h := strings.TrimSpace(c.GetHeader(TenantHeaderKey)); h != "" && !strings.EqualFold(h, tenantID.String()) {
			logger.L(ctx).Security("tenant header does not match token",
				zap.String("token_tenant_id", tenantID.String()),
				zap.String("header_tenant_id", h),
				zap.String("path", c.Request.URL.Path),
			)
			metrics.RecordTenantMismatch(ctx, tenantID.String())
			abortWithCode(c, shared.CodeTenantMismatch, "Access denied")
			return
		}

		log := logger.FromContext(ctx)
		ctx, log = logger.WithTenantID(ctx, log, tenantID.String())
		ctx, _ = logger.WithActorID(ctx, log, claims.Subject)
		c.Request = c.Request.WithContext(ctx)

		c.Set(TenantIDKey, tenantID)
		c.Set(ActorIDKey, claims.Subject)
		c.Next()
	}
}

// GetTenantID returns the tenant set by TenantScope, uuid.Nil when absent
func GetTenantID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(TenantIDKey); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

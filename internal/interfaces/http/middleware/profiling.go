package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mandi/backend/internal/infrastructure/telemetry"
)

// Profiling labels the request goroutine with route, method and tenant so
// pyroscope profiles can be filtered by endpoint. It runs after TenantScope.
func Profiling(enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			c.Next()
			return
		}
		tenant := ""
		if id := GetTenantID(c); id != uuid.Nil {
			tenant = id.String()
		}
		labels := telemetry.HTTPRequestLabels(route, c.Request.Method, tenant)
		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

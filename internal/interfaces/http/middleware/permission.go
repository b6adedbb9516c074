package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mandi/backend/internal/domain/shared"
	"github.com/mandi/backend/internal/infrastructure/logger"
)

// RequireRole lets the request through only when the token grants role.
// Admin tokens pass every check.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetJWTClaims(c)
		if claims == nil {
			abortWithCode(c, shared.CodeUnauthorized, "Authentication required")
			return
		}
		if !claims.HasRole(role) {
			logger.L(c.Request.Context()).Warn("role check failed",
				zap.String("required_role", role),
				zap.Strings("roles", claims.Roles),
				zap.String("path", c.Request.URL.Path),
			)
			abortWithCode(c, shared.CodeForbidden, "Insufficient permissions")
			return
		}
		c.Next()
	}
}

package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/mandi/backend/internal/interfaces/http/dto"
)

// abortWithCode stops the chain with the standard error envelope
func abortWithCode(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(dto.GetHTTPStatus(code), dto.NewErrorResponse(code, message, GetRequestID(c)))
}

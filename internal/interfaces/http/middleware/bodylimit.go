package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mandi/backend/internal/interfaces/http/dto"
)

// BodyLimit rejects bodies larger than maxBytes. Bodies without a declared
// length are cut off by http.MaxBytesReader while being read.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			abortWithCode(c, dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size")
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

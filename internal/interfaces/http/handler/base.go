// Package handler holds the gin handlers of the ledger API.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mandi/backend/internal/domain/shared"
	"github.com/mandi/backend/internal/infrastructure/logger"
	"github.com/mandi/backend/internal/interfaces/http/dto"
	"github.com/mandi/backend/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a 200 response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a 200 response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// HandleError maps err to its status and envelope. Server side failures are
// logged with the cause; the client only sees the generic message.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	status, info := dto.ErrorInfoFor(err)
	info.RequestID = middleware.GetRequestID(c)
	if status >= http.StatusInternalServerError {
		logger.L(c.Request.Context()).Error("request failed",
			zap.Error(err),
			zap.String("path", c.FullPath()),
		)
	}
	c.JSON(status, dto.Response{Success: false, Error: info})
}

// BadRequest sends a 400 validation error naming field
func (h *BaseHandler) BadRequest(c *gin.Context, field, message string) {
	h.HandleError(c, shared.NewValidationError(field, message))
}

// uuidParam parses a path parameter, answering 400 when it is not a UUID
func (h *BaseHandler) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.BadRequest(c, name, "must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

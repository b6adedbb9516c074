package dto

import (
	"errors"
	"net/http"

	"github.com/mandi/backend/internal/domain/ledger"
	"github.com/mandi/backend/internal/domain/shared"
)

// Error codes produced by the HTTP layer itself. Domain errors keep their
// own codes in the response envelope.
const (
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeInvalidJSON     = "INVALID_JSON"
	ErrCodeTokenExpired    = "TOKEN_EXPIRED"
	ErrCodeInvalidToken    = "INVALID_TOKEN"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	ErrCodeRateLimited     = "RATE_LIMIT_EXCEEDED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeTokenExpired:    http.StatusUnauthorized,
	ErrCodeInvalidToken:    http.StatusUnauthorized,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeRateLimited:     http.StatusTooManyRequests,

	shared.CodeValidation:          http.StatusBadRequest,
	shared.CodeTenantRequired:      http.StatusUnauthorized,
	shared.CodeUnauthorized:        http.StatusUnauthorized,
	shared.CodeForbidden:           http.StatusForbidden,
	shared.CodeTenantMismatch:      http.StatusForbidden,
	shared.CodeNotFound:            http.StatusNotFound,
	shared.CodeAlreadyExists:       http.StatusConflict,
	shared.CodeConcurrencyConflict: http.StatusConflict,
	shared.CodeInvalidState:        http.StatusUnprocessableEntity,
	shared.CodeStorageFailure:      http.StatusInternalServerError,

	ledger.CodeInvalidAmount:         http.StatusBadRequest,
	ledger.CodePartyInactive:         http.StatusBadRequest,
	ledger.CodeNoOutstandingInvoices: http.StatusUnprocessableEntity,
	ledger.CodeExceedsBalance:        http.StatusUnprocessableEntity,
	ledger.CodeIdempotencyKeyReused:  http.StatusConflict,
}

// GetHTTPStatus returns the HTTP status for an error code, 500 when unknown
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Messages that replace the domain message so the response does not reveal
// other tenants' data or storage internals.
var genericMessages = map[string]string{
	shared.CodeTenantMismatch: "Access denied",
	shared.CodeStorageFailure: "An unexpected error occurred",
}

// ErrorInfoFor converts any error into the envelope error and its status.
// Non-domain errors become a generic 500.
func ErrorInfoFor(err error) (int, *ErrorInfo) {
	var de *shared.DomainError
	if !errors.As(err, &de) {
		return http.StatusInternalServerError, &ErrorInfo{
			Code:    ErrCodeInternal,
			Message: "An unexpected error occurred",
		}
	}
	info := &ErrorInfo{Code: de.Code, Message: de.Message, Field: de.Field}
	if msg, ok := genericMessages[de.Code]; ok {
		info.Message = msg
		info.Field = ""
	}
	return GetHTTPStatus(de.Code), info
}

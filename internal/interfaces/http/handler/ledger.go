package handler

import (
	"github.com/gin-gonic/gin"

	ledgerapp "github.com/mandi/backend/internal/application/ledger"
	"github.com/mandi/backend/internal/domain/ledger"
	"github.com/mandi/backend/internal/interfaces/http/dto"
	"github.com/mandi/backend/internal/interfaces/http/middleware"
)

// LedgerHandler serves party statements and the cash and bank books
type LedgerHandler struct {
	BaseHandler
	queries *ledgerapp.QueryService
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(queries *ledgerapp.QueryService) *LedgerHandler {
	return &LedgerHandler{queries: queries}
}

// VendorStatement handles GET /vendors/:id/statement
func (h *LedgerHandler) VendorStatement(c *gin.Context) {
	h.statement(c, ledger.PartyKindVendor)
}

// RetailerStatement handles GET /retailers/:id/statement
func (h *LedgerHandler) RetailerStatement(c *gin.Context) {
	h.statement(c, ledger.PartyKindRetailer)
}

func (h *LedgerHandler) statement(c *gin.Context, kind ledger.PartyKind) {
	partyID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	st, err := h.queries.Statement(c.Request.Context(), middleware.GetTenantID(c), ledger.PartyRef{Kind: kind, ID: partyID})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewStatementResponse(st))
}

// Cashbook handles GET /ledger/cashbook?from=&to=
func (h *LedgerHandler) Cashbook(c *gin.Context) {
	var q dto.DateRangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleBindError(c, err)
		return
	}
	from, to, err := q.Parse()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	book, err := h.queries.Cashbook(c.Request.Context(), middleware.GetTenantID(c), from, to)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewBookResponse(book))
}

// Bankbook handles GET /ledger/bankbook/:bankAccountId?from=&to=
func (h *LedgerHandler) Bankbook(c *gin.Context) {
	accountID, ok := h.uuidParam(c, "bankAccountId")
	if !ok {
		return
	}
	var q dto.DateRangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleBindError(c, err)
		return
	}
	from, to, err := q.Parse()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	book, err := h.queries.Bankbook(c.Request.Context(), middleware.GetTenantID(c), accountID, from, to)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewBookResponse(book))
}

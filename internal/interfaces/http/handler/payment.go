package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mandi/backend/internal/application/payment"
	"github.com/mandi/backend/internal/domain/ledger"
	"github.com/mandi/backend/internal/interfaces/http/dto"
	"github.com/mandi/backend/internal/interfaces/http/middleware"
)

// PaymentHandler records vendor and retailer payments
type PaymentHandler struct {
	BaseHandler
	recorder *payment.Recorder
	now      func() time.Time
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(recorder *payment.Recorder) *PaymentHandler {
	return &PaymentHandler{recorder: recorder, now: time.Now}
}

// RecordVendorPayment handles POST /vendors/:id/payments
func (h *PaymentHandler) RecordVendorPayment(c *gin.Context) {
	h.record(c, ledger.PartyKindVendor)
}

// RecordRetailerPayment handles POST /retailers/:id/payments
func (h *PaymentHandler) RecordRetailerPayment(c *gin.Context) {
	h.record(c, ledger.PartyKindRetailer)
}

// record answers 201 for a new distribution and 200 when an idempotency
// key replays an earlier one.
func (h *PaymentHandler) record(c *gin.Context, kind ledger.PartyKind) {
	partyID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	var body dto.RecordPaymentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		middleware.HandleBindError(c, err)
		return
	}
	req, err := body.ToDomain(c.GetHeader(dto.IdempotencyKeyHeader), h.now())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	party := ledger.PartyRef{Kind: kind, ID: partyID}
	result, err := h.recorder.RecordPayment(c.Request.Context(), middleware.GetTenantID(c), party, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if result.Replayed {
		h.Success(c, result)
		return
	}
	h.Created(c, result)
}

// GetBatch handles GET /payments/batches/:batchId
func (h *PaymentHandler) GetBatch(c *gin.Context) {
	batchID, ok := h.uuidParam(c, "batchId")
	if !ok {
		return
	}
	view, err := h.recorder.GetBatch(c.Request.Context(), middleware.GetTenantID(c), batchID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mandi/backend/internal/domain/ledger"
	"github.com/mandi/backend/internal/domain/shared"
	"github.com/mandi/backend/internal/infrastructure/logger"
	"github.com/mandi/backend/internal/infrastructure/telemetry"
)

// PaymentRecordedHandler sends one notification per PaymentRecorded event.
// It runs after commit, from the outbox processor; a failure here is retried
// by the outbox and never touches ledger rows.
type PaymentRecordedHandler struct {
	notifier  Notifier
	formatter *Formatter
	channel   Channel
	metrics   *telemetry.LedgerMetrics
}

// NewPaymentRecordedHandler defaults to WhatsApp when channel is empty.
func NewPaymentRecordedHandler(notifier Notifier, formatter *Formatter, channel Channel, metrics *telemetry.LedgerMetrics) *PaymentRecordedHandler {
	if channel == "" {
		channel = ChannelWhatsApp
	}
	return &PaymentRecordedHandler{
		notifier:  notifier,
		formatter: formatter,
		channel:   channel,
		metrics:   metrics,
	}
}

// EventTypes implements shared.EventHandler.
func (h *PaymentRecordedHandler) EventTypes() []string {
	return []string{ledger.EventTypePaymentRecorded}
}

// Handle formats and sends the notification for one payment row. Parties
// without a phone number are skipped; notifier errors are returned so the
// outbox retries them.
func (h *PaymentRecordedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	e, ok := event.(*ledger.PaymentRecordedEvent)
	if !ok {
		return fmt.Errorf("notification: unexpected event %T for %s", event, event.EventType())
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "notification", "payment_recorded",
		telemetry.SpanAttrTenantID, e.TenantID().String(),
		telemetry.SpanAttrBatchID, e.BatchID.String(),
		telemetry.SpanAttrPartyKind, string(e.PartyKind),
	)
	defer span.End()

	if e.PartyPhone == "" {
		logger.L(ctx).Info("party has no phone number, notification skipped",
			zap.String("party_id", e.PartyID.String()),
			zap.String("payment_id", e.PaymentID.String()))
		return nil
	}

	n := Notification{
		TenantID:      e.TenantID(),
		EventID:       e.EventID(),
		PaymentID:     e.PaymentID,
		BatchID:       e.BatchID,
		Channel:       h.channel,
		PartyKind:     e.PartyKind,
		PartyID:       e.PartyID,
		PartyName:     e.PartyName,
		Recipient:     e.PartyPhone,
		InvoiceNumber: e.InvoiceNumber,
		Amount:        e.Amount,
		Mode:          e.Mode,
		PaymentDate:   e.PaymentDate,
		Message:       h.formatter.Format(e),
	}
	err := h.notifier.Notify(ctx, n)
	h.metrics.RecordNotification(ctx, string(h.channel), err == nil)
	if err != nil {
		telemetry.RecordError(span, err)
		logger.L(ctx).Warn("payment notification failed",
			zap.String("payment_id", e.PaymentID.String()),
			zap.String("channel", string(h.channel)),
			zap.Error(err))
		return err
	}
	return nil
}

var _ shared.EventHandler = (*PaymentRecordedHandler)(nil)

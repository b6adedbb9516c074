// Package notify delivers payment notifications. LogNotifier writes them to
// the service log; WebhookNotifier posts them to a messaging gateway that
// speaks WhatsApp or SMS on our behalf.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/mandi/backend/internal/application/notification"
	"github.com/mandi/backend/internal/infrastructure/logger"
)

// LogNotifier logs notifications instead of sending them.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(l *zap.Logger) *LogNotifier {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogNotifier{logger: l.Named("notify")}
}

func (n *LogNotifier) Notify(ctx context.Context, msg notification.Notification) error {
	logger.WithLogger(ctx, n.logger).Info("payment notification",
		zap.String("channel", string(msg.Channel)),
		zap.String("recipient", msg.Recipient),
		zap.String("payment_id", msg.PaymentID.String()),
		zap.String("message", msg.Message),
	)
	return nil
}

var _ notification.Notifier = (*LogNotifier)(nil)

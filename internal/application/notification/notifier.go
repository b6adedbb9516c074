// Package notification turns committed PaymentRecorded events into messages
// for the party that was paid or that paid.
package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mandi/backend/internal/domain/ledger"
	"github.com/mandi/backend/internal/domain/shared"
)

// Channel is the delivery channel of a notification
type Channel string

const (
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelSMS      Channel = "SMS"
)

// ParseChannel accepts WHATSAPP or SMS in any case
func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case ChannelWhatsApp, ChannelSMS:
		return c, nil
	}
	return "", shared.NewValidationError("channel", fmt.Sprintf("unsupported notification channel %q", s))
}

// Notification is one message about one payment row
type Notification struct {
	TenantID      uuid.UUID          `json:"tenant_id"`
	EventID       uuid.UUID          `json:"event_id"`
	PaymentID     uuid.UUID          `json:"payment_id"`
	BatchID       uuid.UUID          `json:"batch_id"`
	Channel       Channel            `json:"channel"`
	PartyKind     ledger.PartyKind   `json:"party_kind"`
	PartyID       uuid.UUID          `json:"party_id"`
	PartyName     string             `json:"party_name"`
	Recipient     string             `json:"recipient"`
	InvoiceNumber string             `json:"invoice_number"`
	Amount        decimal.Decimal    `json:"amount"`
	Mode          ledger.PaymentMode `json:"payment_mode"`
	PaymentDate   time.Time          `json:"payment_date"`
	Message       string             `json:"message"`
}

// Notifier delivers a notification. Implementations must be safe for
// concurrent use; an error makes the outbox retry the event.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

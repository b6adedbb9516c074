package event

import "github.com/mandi/backend/internal/domain/ledger"

// RegisterLedgerEvents registers the ledger events written to the outbox
func RegisterLedgerEvents(serializer *EventSerializer) {
	serializer.Register(ledger.EventTypePaymentRecorded, &ledger.PaymentRecordedEvent{})
}

package event

import (
	"context"

	"github.com/mandi/backend/internal/domain/shared"
)

// OutboxPublisher writes events to the outbox.
// The repository joins the transaction carried by ctx, so the events commit
// or roll back together with the rows that produced them.
type OutboxPublisher struct {
	repo       shared.OutboxRepository
	serializer *EventSerializer
}

// NewOutboxPublisher creates a new outbox publisher
func NewOutboxPublisher(repo shared.OutboxRepository, serializer *EventSerializer) *OutboxPublisher {
	return &OutboxPublisher{repo: repo, serializer: serializer}
}

// SaveEvents serializes events and stores them as pending outbox entries
func (p *OutboxPublisher) SaveEvents(ctx context.Context, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	entries := make([]*shared.OutboxEntry, 0, len(events))
	for _, e := range events {
		payload, err := p.serializer.Serialize(e)
		if err != nil {
			return err
		}
		entries = append(entries, shared.NewOutboxEntry(e, payload))
	}
	return p.repo.Save(ctx, entries...)
}

var _ shared.OutboxEventSaver = (*OutboxPublisher)(nil)

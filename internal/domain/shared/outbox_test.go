package shared

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEvent struct {
	BaseDomainEvent
}

func newStubEntry() *OutboxEntry {
	ev := &stubEvent{BaseDomainEvent: NewBaseDomainEvent("Stub", "Thing", uuid.New(), uuid.New())}
	return NewOutboxEntry(ev, []byte(`{}`))
}

func TestNewOutboxEntry(t *testing.T) {
	ev := &stubEvent{BaseDomainEvent: NewBaseDomainEvent("Stub", "Thing", uuid.New(), uuid.New())}
	entry := NewOutboxEntry(ev, []byte(`{"a":1}`))

	assert.Equal(t, ev.TenantID(), entry.TenantID)
	assert.Equal(t, ev.EventID(), entry.EventID)
	assert.Equal(t, "Stub", entry.EventType)
	assert.Equal(t, OutboxStatusPending, entry.Status)
	assert.Equal(t, DefaultMaxRetries, entry.MaxRetries)
}

func TestRetryBackoff(t *testing.T) {
	assert.Equal(t, time.Second, RetryBackoff(0))
	assert.Equal(t, time.Second, RetryBackoff(1))
	assert.Equal(t, 2*time.Second, RetryBackoff(2))
	assert.Equal(t, 16*time.Second, RetryBackoff(5))
}

func TestOutboxEntry_MarkFailed(t *testing.T) {
	t.Run("schedules a retry while attempts remain", func(t *testing.T) {
		entry := newStubEntry()
		require.NoError(t, entry.MarkProcessing())

		before := time.Now()
		entry.MarkFailed("boom")

		assert.Equal(t, OutboxStatusFailed, entry.Status)
		assert.Equal(t, 1, entry.RetryCount)
		assert.Equal(t, "boom", entry.LastError)
		require.NotNil(t, entry.NextRetryAt)
		assert.True(t, entry.NextRetryAt.After(before))
		assert.True(t, entry.CanRetry())
	})

	t.Run("moves to dead letter after max retries", func(t *testing.T) {
		entry := newStubEntry()
		for i := 0; i < DefaultMaxRetries; i++ {
			entry.MarkFailed("boom")
		}

		assert.True(t, entry.IsDead())
		assert.Nil(t, entry.NextRetryAt)
		assert.False(t, entry.CanRetry())
	})
}

func TestOutboxEntry_MarkProcessing(t *testing.T) {
	for _, status := range []OutboxStatus{OutboxStatusProcessing, OutboxStatusSent, OutboxStatusDead} {
		entry := &OutboxEntry{Status: status}
		assert.ErrorIs(t, entry.MarkProcessing(), ErrOutboxNotClaimable, string(status))
	}

	entry := newStubEntry()
	entry.Status = OutboxStatusFailed
	assert.NoError(t, entry.MarkProcessing())
	assert.Equal(t, OutboxStatusProcessing, entry.Status)
}

func TestOutboxEntry_MarkSent(t *testing.T) {
	entry := newStubEntry()
	entry.MarkSent()

	assert.Equal(t, OutboxStatusSent, entry.Status)
	assert.NotNil(t, entry.ProcessedAt)
}

func TestOutboxEntry_ResetForRetry(t *testing.T) {
	t.Run("resets dead letter entry", func(t *testing.T) {
		entry := newStubEntry()
		for i := 0; i < DefaultMaxRetries; i++ {
			entry.MarkFailed("boom")
		}

		require.NoError(t, entry.ResetForRetry())
		assert.Equal(t, OutboxStatusPending, entry.Status)
		assert.Zero(t, entry.RetryCount)
		assert.Empty(t, entry.LastError)
		assert.Nil(t, entry.NextRetryAt)
	})

	t.Run("rejects live entries", func(t *testing.T) {
		for _, status := range []OutboxStatus{OutboxStatusPending, OutboxStatusProcessing, OutboxStatusSent, OutboxStatusFailed} {
			entry := &OutboxEntry{Status: status}
			assert.ErrorIs(t, entry.ResetForRetry(), ErrOutboxNotDead)
		}
	})
}

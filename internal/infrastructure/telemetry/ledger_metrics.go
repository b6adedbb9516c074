package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Payment outcomes recorded on mandi.payments.requests
const (
	OutcomeRecorded   = "recorded"
	OutcomeReplayed   = "replayed"
	OutcomeRejected   = "rejected"
	OutcomeNoInvoices = "no_outstanding_invoices"
	OutcomeMismatch   = "tenant_mismatch"
	OutcomeFailed     = "failed"
)

// LedgerMetrics groups the payment path instruments.
// A nil *LedgerMetrics is valid and records nothing.
type LedgerMetrics struct {
	requests         *Counter
	paymentRows      *Counter
	allocatedAmount  *Histogram
	remainderAmount  *Histogram
	duration         *Histogram
	tenantMismatches *Counter
	notifications    *Counter
}

// NewLedgerMetrics creates the instruments on meter
func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	var (
		m   LedgerMetrics
		err error
	)
	if m.requests, err = NewCounter(meter, "mandi.payments.requests", "Payment instructions by outcome", "{request}"); err != nil {
		return nil, err
	}
	if m.paymentRows, err = NewCounter(meter, "mandi.payments.rows", "Payment rows written", "{row}"); err != nil {
		return nil, err
	}
	if m.allocatedAmount, err = NewHistogram(meter, HistogramOpts{
		Name:        "mandi.payments.allocated",
		Description: "Amount allocated to invoices per instruction",
		Unit:        "{INR}",
		Boundaries:  []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
	}); err != nil {
		return nil, err
	}
	if m.remainderAmount, err = NewHistogram(meter, HistogramOpts{
		Name:        "mandi.payments.remainder",
		Description: "Unallocated remainder per instruction",
		Unit:        "{INR}",
		Boundaries:  []float64{0, 100, 1000, 10000, 100000},
	}); err != nil {
		return nil, err
	}
	if m.duration, err = NewHistogram(meter, HistogramOpts{
		Name:        "mandi.payments.duration",
		Description: "Time spent recording a payment instruction",
		Unit:        "s",
		Boundaries:  []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}); err != nil {
		return nil, err
	}
	if m.tenantMismatches, err = NewCounter(meter, "mandi.security.tenant_mismatches", "Cross tenant references rejected", "{reference}"); err != nil {
		return nil, err
	}
	if m.notifications, err = NewCounter(meter, "mandi.notifications.dispatched", "Payment notifications by outcome", "{notification}"); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordDistribution records a committed payment instruction
func (m *LedgerMetrics) RecordDistribution(ctx context.Context, partyKind, mode string, rows int, allocated, remainder float64, replayed bool) {
	if m == nil {
		return
	}
	outcome := OutcomeRecorded
	if replayed {
		outcome = OutcomeReplayed
	}
	attrs := []attribute.KeyValue{AttrPartyKind.String(partyKind), AttrPaymentMode.String(mode)}
	m.requests.Inc(ctx, append(attrs, AttrOutcome.String(outcome))...)
	if replayed {
		return
	}
	m.paymentRows.Add(ctx, int64(rows), attrs...)
	m.allocatedAmount.Record(ctx, allocated, attrs...)
	m.remainderAmount.Record(ctx, remainder, attrs...)
}

// RecordFailure records a rejected or failed payment instruction
func (m *LedgerMetrics) RecordFailure(ctx context.Context, partyKind, outcome string) {
	if m == nil {
		return
	}
	m.requests.Inc(ctx, AttrPartyKind.String(partyKind), AttrOutcome.String(outcome))
}

// RecordDuration records how long one instruction took
func (m *LedgerMetrics) RecordDuration(ctx context.Context, partyKind string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.RecordDuration(ctx, d, AttrPartyKind.String(partyKind))
}

// RecordTenantMismatch counts a rejected cross tenant reference
func (m *LedgerMetrics) RecordTenantMismatch(ctx context.Context, tenantID string) {
	if m == nil {
		return
	}
	m.tenantMismatches.Inc(ctx, AttrTenantID.String(tenantID))
}

// RecordNotification counts a notification attempt
func (m *LedgerMetrics) RecordNotification(ctx context.Context, channel string, ok bool) {
	if m == nil {
		return
	}
	outcome := "sent"
	if !ok {
		outcome = "failed"
	}
	m.notifications.Inc(ctx, AttrChannel.String(channel), AttrOutcome.String(outcome))
}

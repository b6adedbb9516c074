// Package payment records incoming and outgoing payments against a party's
// outstanding invoices, oldest first, in one database transaction.
package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mandi/backend/internal/domain/ledger"
	"github.com/mandi/backend/internal/domain/shared"
	"github.com/mandi/backend/internal/infrastructure/logger"
	"github.com/mandi/backend/internal/infrastructure/telemetry"
)

// PartyLedger is the per party kind storage the recorder runs against.
type PartyLedger interface {
	ledger.PartyLedger
	ledger.InvoiceReader
}

// Recorder implements RecordPayment. The same orchestration serves vendors
// and retailers; only the PartyLedger differs.
type Recorder struct {
	txManager shared.TransactionManager
	guard     shared.TenantGuard
	ledgers   map[ledger.PartyKind]PartyLedger
	payments  ledger.PaymentRepository
	requests  ledger.PaymentRequestRepository
	outbox    shared.OutboxEventSaver
	metrics   *telemetry.LedgerMetrics
	txOptions *sql.TxOptions
}

// Option configures a Recorder
type Option func(*Recorder)

// WithMetrics records distribution metrics
func WithMetrics(m *telemetry.LedgerMetrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithIsolation overrides the transaction isolation level
func WithIsolation(level sql.IsolationLevel) Option {
	return func(r *Recorder) { r.txOptions = &sql.TxOptions{Isolation: level} }
}

// NewRecorder wires a Recorder. Every party kind needs a ledger.
func NewRecorder(
	txManager shared.TransactionManager,
	guard shared.TenantGuard,
	payments ledger.PaymentRepository,
	requests ledger.PaymentRequestRepository,
	outbox shared.OutboxEventSaver,
	ledgers []PartyLedger,
	opts ...Option,
) *Recorder {
	r := &Recorder{
		txManager: txManager,
		guard:     guard,
		ledgers:   make(map[ledger.PartyKind]PartyLedger, len(ledgers)),
		payments:  payments,
		requests:  requests,
		outbox:    outbox,
	}
	for _, l := range ledgers {
		r.ledgers[l.Kind()] = l
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordPayment distributes req.Amount over the party's outstanding invoices.
// Payment rows, invoice updates, the party balance, the idempotency record and
// the PaymentRecorded outbox events commit together or not at all.
func (r *Recorder) RecordPayment(ctx context.Context, tenantID uuid.UUID, party ledger.PartyRef, req ledger.PaymentRequest) (*DistributionResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "record_payment",
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrPartyKind, string(party.Kind),
		telemetry.SpanAttrPartyID, party.ID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
		telemetry.SpanAttrPaymentMode, string(req.Mode),
	)
	defer span.End()
	start := time.Now()
	defer func() { r.metrics.RecordDuration(ctx, string(party.Kind), time.Since(start)) }()

	var result *DistributionResult
	var err error
	labels := telemetry.PaymentOperationLabels("record_payment", string(party.Kind), string(req.Mode), tenantID.String())
	telemetry.WithProfilingLabels(ctx, labels, func(c context.Context) {
		result, err = r.record(c, tenantID, party, req)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		r.recordFailure(ctx, tenantID, party, err)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrBatchID, result.BatchID.String(),
		telemetry.SpanAttrAllocations, len(result.Payments),
		telemetry.SpanAttrRemainder, result.Remainder.String(),
	)
	r.metrics.RecordDistribution(ctx, string(party.Kind), string(result.Mode), len(result.Payments),
		result.TotalAllocated.InexactFloat64(), result.Remainder.InexactFloat64(), result.Replayed)
	return result, nil
}

func (r *Recorder) record(ctx context.Context, tenantID uuid.UUID, party ledger.PartyRef, req ledger.PaymentRequest) (*DistributionResult, error) {
	if tenantID == uuid.Nil {
		return nil, shared.ErrTenantRequired
	}
	pl, ok := r.ledgers[party.Kind]
	if !ok {
		return nil, shared.NewValidationError("party_kind", fmt.Sprintf("unknown party kind %q", party.Kind))
	}
	if party.ID == uuid.Nil {
		return nil, shared.NewValidationError("party_id", "party id is required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var result *DistributionResult
	err := r.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		result = nil
		if req.IdempotencyKey != "" {
			replay, err := r.replay(txCtx, tenantID, party, req)
			if err != nil {
				return err
			}
			if replay != nil {
				result = replay
				return nil
			}
		}
		var err error
		result, err = r.distribute(txCtx, tenantID, pl, party, req)
		return err
	}, r.txOptions)

	if err != nil && req.IdempotencyKey != "" && errors.Is(err, shared.ErrAlreadyExists) {
		// A concurrent call with the same key committed first; its unique
		// violation aborted our transaction, so read its outcome afresh.
		replay, rerr := r.replay(ctx, tenantID, party, req)
		if rerr == nil && replay != nil {
			return replay, nil
		}
		if rerr != nil {
			err = rerr
		}
	}
	if err != nil {
		return nil, toCallerError(err)
	}
	return result, nil
}

// distribute runs steps 2 to 7 of a payment inside the caller's transaction.
func (r *Recorder) distribute(ctx context.Context, tenantID uuid.UUID, pl PartyLedger, ref ledger.PartyRef, req ledger.PaymentRequest) (*DistributionResult, error) {
	refs := append([]shared.EntityRef{ref.EntityRef()}, req.Refs()...)
	if err := r.guard.AssertSameTenant(ctx, tenantID, refs...); err != nil {
		return nil, err
	}

	party, err := pl.FindParty(ctx, tenantID, ref.ID)
	if err != nil {
		return nil, err
	}
	if err := party.EnsureCanReceivePayment(); err != nil {
		return nil, err
	}

	invoices, err := pl.OutstandingInvoices(ctx, tenantID, ref.ID)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, ledger.ErrNoOutstandingInvoices
	}

	allocations, remainder := ledger.Allocate(req.Amount, invoices)
	if len(allocations) == 0 {
		return nil, ledger.ErrNoOutstandingInvoices
	}

	batchID := uuid.New()
	ctx, _ = logger.WithBatchID(ctx, logger.FromContext(ctx), batchID.String())

	result := &DistributionResult{
		BatchID:     batchID,
		Party:       ref,
		Mode:        req.Mode,
		PaymentDate: req.PaymentDate.UTC(),
		Payments:    make([]PaymentLine, 0, len(allocations)),
		Remainder:   remainder,
	}
	payments := make([]*ledger.Payment, 0, len(allocations))
	events := make([]shared.DomainEvent, 0, len(allocations))
	for _, alloc := range allocations {
		if err := pl.ApplyAllocation(ctx, alloc.Invoice, alloc.Amount); err != nil {
			return nil, err
		}
		p := ledger.NewPayment(tenantID, batchID, ref, alloc, req)
		payments = append(payments, p)
		events = append(events, ledger.NewPaymentRecordedEvent(p, party, alloc.Invoice))

		result.Payments = append(result.Payments, PaymentLine{
			PaymentID:     p.ID,
			InvoiceID:     alloc.Invoice.ID,
			InvoiceNumber: alloc.Invoice.InvoiceNumber,
			Amount:        alloc.Amount,
		})
		result.InvoicesUpdated = append(result.InvoicesUpdated, toInvoiceState(alloc.Invoice))
		result.TotalAllocated = result.TotalAllocated.Add(alloc.Amount)
	}

	if err := r.payments.Create(ctx, payments...); err != nil {
		return nil, err
	}
	if err := pl.AdjustPartyBalance(ctx, tenantID, ref.ID, result.TotalAllocated.Neg()); err != nil {
		return nil, err
	}
	if err := r.outbox.SaveEvents(ctx, events...); err != nil {
		return nil, err
	}
	if req.IdempotencyKey != "" {
		record := &ledger.PaymentRequestRecord{
			ID:             uuid.New(),
			TenantID:       tenantID,
			IdempotencyKey: req.IdempotencyKey,
			BatchID:        batchID,
			PartyKind:      ref.Kind,
			PartyID:        ref.ID,
			Amount:         req.Amount,
			Allocated:      result.TotalAllocated,
			Remainder:      remainder,
			CreatedAt:      time.Now().UTC(),
		}
		if err := r.requests.Create(ctx, record); err != nil {
			return nil, err
		}
	}

	logger.L(ctx).Info("payment distributed",
		zap.String("party_kind", string(ref.Kind)),
		zap.String("party_id", ref.ID.String()),
		zap.Int("rows", len(payments)),
		zap.String("allocated", result.TotalAllocated.String()),
		zap.String("remainder", remainder.String()),
	)
	return result, nil
}

// replay returns the stored outcome for req's idempotency key, or nil when
// the key is unused.
func (r *Recorder) replay(ctx context.Context, tenantID uuid.UUID, ref ledger.PartyRef, req ledger.PaymentRequest) (*DistributionResult, error) {
	record, err := r.requests.FindByKey(ctx, tenantID, req.IdempotencyKey)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if record.PartyKind != ref.Kind || record.PartyID != ref.ID || !record.Amount.Equal(req.Amount) {
		return nil, ledger.ErrIdempotencyKeyReused
	}

	view, err := r.loadBatch(ctx, tenantID, record.BatchID)
	if err != nil {
		return nil, err
	}
	if view.Mode != req.Mode || !sameAccount(view.BankAccountID, req.BankAccountID) {
		return nil, ledger.ErrIdempotencyKeyReused
	}
	invoices, err := r.ledgers[ref.Kind].FindInvoices(ctx, tenantID, ref.Kind.InvoiceKind(), invoiceIDs(view.Payments))
	if err != nil {
		return nil, err
	}
	states := make([]InvoiceState, len(invoices))
	for i, inv := range invoices {
		states[i] = toInvoiceState(inv)
	}
	logger.L(ctx).Info("payment replayed from idempotency key",
		zap.String("batch_id", record.BatchID.String()))

	return &DistributionResult{
		BatchID:         record.BatchID,
		Party:           ref,
		Mode:            view.Mode,
		PaymentDate:     view.PaymentDate,
		Payments:        view.Payments,
		InvoicesUpdated: states,
		TotalAllocated:  record.Allocated,
		Remainder:       record.Remainder,
		Replayed:        true,
	}, nil
}

// GetBatch lists the payment rows of one instruction in allocation order.
func (r *Recorder) GetBatch(ctx context.Context, tenantID, batchID uuid.UUID) (*BatchView, error) {
	if tenantID == uuid.Nil {
		return nil, shared.ErrTenantRequired
	}
	view, err := r.loadBatch(ctx, tenantID, batchID)
	if err != nil {
		return nil, toCallerError(err)
	}
	return view, nil
}

func (r *Recorder) loadBatch(ctx context.Context, tenantID, batchID uuid.UUID) (*BatchView, error) {
	rows, err := r.payments.FindByBatch(ctx, tenantID, batchID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, shared.ErrNotFound.WithMessage("payment batch not found")
	}
	first := rows[0]
	ref := ledger.PartyRef{Kind: first.PartyKind, ID: first.PartyID}
	pl, ok := r.ledgers[ref.Kind]
	if !ok {
		return nil, shared.ErrInvalidState.WithMessage(fmt.Sprintf("no ledger for party kind %s", ref.Kind))
	}

	ids := make([]uuid.UUID, len(rows))
	for i, p := range rows {
		ids[i] = p.InvoiceID
	}
	invoices, err := pl.FindInvoices(ctx, tenantID, ref.Kind.InvoiceKind(), ids)
	if err != nil {
		return nil, err
	}
	// FindInvoices returns allocation (FIFO) order; rows follow it.
	position := make(map[uuid.UUID]int, len(invoices))
	numbers := make(map[uuid.UUID]string, len(invoices))
	for i, inv := range invoices {
		position[inv.ID] = i
		numbers[inv.ID] = inv.InvoiceNumber
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return position[rows[i].InvoiceID] < position[rows[j].InvoiceID]
	})

	view := &BatchView{
		BatchID:       batchID,
		Party:         ref,
		Mode:          first.Mode,
		PaymentDate:   first.PaymentDate,
		BankAccountID: first.BankAccountID,
		Reference:     first.Reference(),
		Notes:         first.Notes,
		Total:         decimal.Zero,
		Payments:      make([]PaymentLine, len(rows)),
	}
	for i, p := range rows {
		view.Payments[i] = PaymentLine{
			PaymentID:     p.ID,
			InvoiceID:     p.InvoiceID,
			InvoiceNumber: numbers[p.InvoiceID],
			Amount:        p.Amount,
		}
		view.Total = view.Total.Add(p.Amount)
	}
	return view, nil
}

func invoiceIDs(lines []PaymentLine) []uuid.UUID {
	ids := make([]uuid.UUID, len(lines))
	for i, l := range lines {
		ids[i] = l.InvoiceID
	}
	return ids
}

func (r *Recorder) recordFailure(ctx context.Context, tenantID uuid.UUID, party ledger.PartyRef, err error) {
	kind := string(party.Kind)
	switch {
	case errors.Is(err, shared.ErrTenantMismatch):
		logger.L(ctx).Security("payment rejected: cross tenant reference",
			zap.String("tenant_id", tenantID.String()),
			zap.String("party_kind", kind),
			zap.String("party_id", party.ID.String()),
		)
		r.metrics.RecordTenantMismatch(ctx, tenantID.String())
		r.metrics.RecordFailure(ctx, kind, telemetry.OutcomeMismatch)
	case errors.Is(err, ledger.ErrNoOutstandingInvoices):
		r.metrics.RecordFailure(ctx, kind, telemetry.OutcomeNoInvoices)
	case errors.Is(err, shared.ErrStorageFailure):
		logger.L(ctx).Error("payment failed", zap.Error(err))
		r.metrics.RecordFailure(ctx, kind, telemetry.OutcomeFailed)
	default:
		logger.L(ctx).Warn("payment rejected", zap.Error(err))
		r.metrics.RecordFailure(ctx, kind, telemetry.OutcomeRejected)
	}
}

// toCallerError turns anything that is not already a domain outcome into a
// StorageFailure. Conflicts that survived every retry are storage failures too.
func toCallerError(err error) error {
	if errors.Is(err, shared.ErrConcurrencyConflict) {
		return shared.ErrStorageFailure.WithCause(err)
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	return shared.ErrStorageFailure.WithCause(err)
}

func sameAccount(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

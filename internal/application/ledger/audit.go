package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mandi/backend/internal/domain/ledger"
	"github.com/mandi/backend/internal/domain/shared"
	"github.com/mandi/backend/internal/infrastructure/logger"
	"github.com/mandi/backend/internal/infrastructure/telemetry"
)

// ReportArchive stores finished audit reports. Store returns the location of
// the stored object.
type ReportArchive interface {
	Store(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// DriftLine is one party whose stored balance disagrees with its invoices
type DriftLine struct {
	PartyKind   ledger.PartyKind `json:"party_kind"`
	PartyID     uuid.UUID        `json:"party_id"`
	Name        string           `json:"name"`
	Recorded    decimal.Decimal  `json:"recorded_balance"`
	Outstanding decimal.Decimal  `json:"outstanding_balance"`
	Drift       decimal.Decimal  `json:"drift"`
}

// AuditReport is the result of one balance audit
type AuditReport struct {
	TenantID    uuid.UUID   `json:"tenant_id"`
	GeneratedAt time.Time   `json:"generated_at"`
	Drifts      []DriftLine `json:"drifts"`
	Location    string      `json:"location,omitempty"`
}

// Clean reports whether every party balance matched
func (r *AuditReport) Clean() bool {
	return len(r.Drifts) == 0
}

// AuditService compares party balances with the invoices behind them.
type AuditService struct {
	auditor ledger.BalanceAuditor
	archive ReportArchive
	now     func() time.Time
}

// AuditOption configures an AuditService
type AuditOption func(*AuditService)

// WithArchive stores every report as JSON
func WithArchive(a ReportArchive) AuditOption {
	return func(s *AuditService) { s.archive = a }
}

// WithClock overrides the report timestamp source
func WithClock(now func() time.Time) AuditOption {
	return func(s *AuditService) { s.now = now }
}

func NewAuditService(auditor ledger.BalanceAuditor, opts ...AuditOption) *AuditService {
	s := &AuditService{auditor: auditor, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run audits one tenant. A report with drifts is not an error; archive
// failures are.
func (s *AuditService) Run(ctx context.Context, tenantID uuid.UUID) (*AuditReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "audit_balances", telemetry.SpanAttrTenantID, tenantID.String())
	defer span.End()

	if tenantID == uuid.Nil {
		return nil, shared.ErrTenantRequired
	}
	drifts, err := s.auditor.AuditBalances(ctx, tenantID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	report := &AuditReport{
		TenantID:    tenantID,
		GeneratedAt: s.now().UTC(),
		Drifts:      make([]DriftLine, 0, len(drifts)),
	}
	log := logger.L(ctx)
	for _, d := range drifts {
		report.Drifts = append(report.Drifts, DriftLine{
			PartyKind:   d.Party.Kind,
			PartyID:     d.Party.ID,
			Name:        d.Name,
			Recorded:    d.Recorded,
			Outstanding: d.Outstanding,
			Drift:       d.Drift(),
		})
		log.Warn("party balance drift",
			zap.String("tenant_id", tenantID.String()),
			zap.String("party_kind", string(d.Party.Kind)),
			zap.String("party_id", d.Party.ID.String()),
			zap.String("recorded", d.Recorded.String()),
			zap.String("outstanding", d.Outstanding.String()),
		)
	}
	telemetry.SetAttributes(span, "ledger.audit.drifts", len(report.Drifts))

	if s.archive != nil {
		body, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode audit report: %w", err)
		}
		loc, err := s.archive.Store(ctx, ReportKey(tenantID, report.GeneratedAt), body, "application/json")
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, shared.ErrStorageFailure.WithCause(err)
		}
		report.Location = loc
	}
	return report, nil
}

// ReportKey names an archived report: <tenant>/balance-audit-<timestamp>.json
func ReportKey(tenantID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("%s/balance-audit-%s.json", tenantID, at.UTC().Format("20060102T150405Z"))
}

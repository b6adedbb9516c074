// Package scheduler runs the daily balance audit for every tenant.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	ledgerapp "github.com/mandi/backend/internal/application/ledger"
	"github.com/mandi/backend/internal/infrastructure/logger"
)

// TenantLister lists the tenants that own ledger data
type TenantLister interface {
	ListTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Auditor audits the party balances of one tenant
type Auditor interface {
	Run(ctx context.Context, tenantID uuid.UUID) (*ledgerapp.AuditReport, error)
}

// AuditTriggerConfig sets the daily run time
type AuditTriggerConfig struct {
	Hour   int
	Minute int

	// CheckInterval is how often the clock is compared with the run time
	CheckInterval time.Duration
}

// DefaultAuditTriggerConfig runs at 02:00 and checks every minute
func DefaultAuditTriggerConfig() AuditTriggerConfig {
	return AuditTriggerConfig{Hour: 2, CheckInterval: time.Minute}
}

// AuditSummary is the outcome of one sweep over all tenants
type AuditSummary struct {
	Tenants int
	Drifted int
	Failed  int
}

// AuditTrigger runs the balance audit for each tenant once a day
type AuditTrigger struct {
	config  AuditTriggerConfig
	tenants TenantLister
	auditor Auditor
	logger  *zap.Logger
	now     func() time.Time

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	isRunning   bool
	lastRunDate string
}

func NewAuditTrigger(config AuditTriggerConfig, tenants TenantLister, auditor Auditor, log *zap.Logger) *AuditTrigger {
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultAuditTriggerConfig().CheckInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditTrigger{
		config:  config,
		tenants: tenants,
		auditor: auditor,
		logger:  log.Named("audit_trigger"),
		now:     time.Now,
	}
}

// Start begins checking the clock. Calling it twice is a no-op.
func (a *AuditTrigger) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.isRunning {
		a.mu.Unlock()
		return nil
	}
	a.isRunning = true
	ctx, a.cancel = context.WithCancel(ctx)
	a.mu.Unlock()

	a.wg.Add(1)
	go a.runLoop(ctx)

	a.logger.Info("Audit trigger started",
		zap.Int("hour", a.config.Hour),
		zap.Int("minute", a.config.Minute),
		zap.Duration("check_interval", a.config.CheckInterval),
	)
	return nil
}

// Stop waits for a running sweep to finish or ctx to expire
func (a *AuditTrigger) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.isRunning {
		a.mu.Unlock()
		return nil
	}
	a.isRunning = false
	cancel := a.cancel
	a.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.logger.Info("Audit trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *AuditTrigger) runLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.config.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.checkAndTrigger(ctx)
		}
	}
}

// checkAndTrigger sweeps once when the run time is reached, at most once a day
func (a *AuditTrigger) checkAndTrigger(ctx context.Context) bool {
	now := a.now()
	today := now.Format("2006-01-02")
	if now.Hour() != a.config.Hour || now.Minute() != a.config.Minute {
		return false
	}

	a.mu.Lock()
	if a.lastRunDate == today {
		a.mu.Unlock()
		return false
	}
	a.lastRunDate = today
	a.mu.Unlock()

	a.RunNow(ctx)
	return true
}

// RunNow audits every tenant. One tenant failing does not stop the sweep.
func (a *AuditTrigger) RunNow(ctx context.Context) AuditSummary {
	ctx = logger.WithContext(ctx, a.logger)

	var summary AuditSummary
	tenantIDs, err := a.tenants.ListTenantIDs(ctx)
	if err != nil {
		a.logger.Error("Failed to list tenants for balance audit", zap.Error(err))
		return summary
	}
	summary.Tenants = len(tenantIDs)

	for _, tenantID := range tenantIDs {
		if ctx.Err() != nil {
			break
		}
		report, err := a.auditor.Run(ctx, tenantID)
		if err != nil {
			summary.Failed++
			a.logger.Error("Balance audit failed",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err),
			)
			continue
		}
		if !report.Clean() {
			summary.Drifted++
		}
	}

	a.logger.Info("Balance audit sweep finished",
		zap.Int("tenants", summary.Tenants),
		zap.Int("drifted", summary.Drifted),
		zap.Int("failed", summary.Failed),
	)
	return summary
}

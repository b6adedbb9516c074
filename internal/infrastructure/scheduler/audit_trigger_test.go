package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	ledgerapp "github.com/mandi/backend/internal/application/ledger"
)

type mockTenants struct{ mock.Mock }

func (m *mockTenants) ListTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]uuid.UUID)
	return ids, args.Error(1)
}

type mockAuditor struct{ mock.Mock }

func (m *mockAuditor) Run(ctx context.Context, tenantID uuid.UUID) (*ledgerapp.AuditReport, error) {
	args := m.Called(ctx, tenantID)
	report, _ := args.Get(0).(*ledgerapp.AuditReport)
	return report, args.Error(1)
}

func TestDefaultAuditTriggerConfig(t *testing.T) {
	cfg := DefaultAuditTriggerConfig()
	assert.Equal(t, 2, cfg.Hour)
	assert.Equal(t, 0, cfg.Minute)
	assert.Equal(t, time.Minute, cfg.CheckInterval)
}

func TestAuditTrigger_RunNow(t *testing.T) {
	clean, drifted, broken := uuid.New(), uuid.New(), uuid.New()
	tenants := &mockTenants{}
	tenants.On("ListTenantIDs", mock.Anything).Return([]uuid.UUID{clean, drifted, broken}, nil)

	auditor := &mockAuditor{}
	auditor.On("Run", mock.Anything, clean).Return(&ledgerapp.AuditReport{TenantID: clean}, nil)
	auditor.On("Run", mock.Anything, drifted).Return(&ledgerapp.AuditReport{
		TenantID: drifted,
		Drifts:   []ledgerapp.DriftLine{{Name: "Ramesh Traders"}},
	}, nil)
	auditor.On("Run", mock.Anything, broken).Return(nil, errors.New("bucket unavailable"))

	trigger := NewAuditTrigger(DefaultAuditTriggerConfig(), tenants, auditor, zap.NewNop())
	summary := trigger.RunNow(context.Background())

	assert.Equal(t, AuditSummary{Tenants: 3, Drifted: 1, Failed: 1}, summary)
	auditor.AssertNumberOfCalls(t, "Run", 3)
}

func TestAuditTrigger_RunNow_ListFails(t *testing.T) {
	tenants := &mockTenants{}
	tenants.On("ListTenantIDs", mock.Anything).Return(nil, errors.New("db down"))
	auditor := &mockAuditor{}

	summary := NewAuditTrigger(DefaultAuditTriggerConfig(), tenants, auditor, nil).RunNow(context.Background())
	assert.Zero(t, summary)
	auditor.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestAuditTrigger_RunsOncePerDayAtConfiguredTime(t *testing.T) {
	tenant := uuid.New()
	tenants := &mockTenants{}
	tenants.On("ListTenantIDs", mock.Anything).Return([]uuid.UUID{tenant}, nil)
	auditor := &mockAuditor{}
	auditor.On("Run", mock.Anything, tenant).Return(&ledgerapp.AuditReport{TenantID: tenant}, nil)

	trigger := NewAuditTrigger(AuditTriggerConfig{Hour: 3, Minute: 30}, tenants, auditor, nil)
	ctx := context.Background()

	at := func(day, hour, minute int) {
		trigger.now = func() time.Time { return time.Date(2024, time.March, day, hour, minute, 5, 0, time.Local) }
	}

	at(1, 3, 29)
	assert.False(t, trigger.checkAndTrigger(ctx))
	at(1, 3, 30)
	assert.True(t, trigger.checkAndTrigger(ctx))
	assert.False(t, trigger.checkAndTrigger(ctx), "second check in the same minute")
	at(2, 3, 30)
	assert.True(t, trigger.checkAndTrigger(ctx))

	auditor.AssertNumberOfCalls(t, "Run", 2)
}

func TestAuditTrigger_StartStop(t *testing.T) {
	tenants := &mockTenants{}
	auditor := &mockAuditor{}
	trigger := NewAuditTrigger(AuditTriggerConfig{Hour: 3, CheckInterval: 5 * time.Millisecond}, tenants, auditor, nil)
	trigger.now = func() time.Time { return time.Date(2024, time.March, 1, 12, 0, 0, 0, time.Local) }

	require.NoError(t, trigger.Start(context.Background()))
	require.NoError(t, trigger.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, trigger.Stop(ctx))
	require.NoError(t, trigger.Stop(ctx))
	tenants.AssertNotCalled(t, "ListTenantIDs", mock.Anything)
}

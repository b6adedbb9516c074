package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	ledgerapp "github.com/mandi/backend/internal/application/ledger"
	"github.com/mandi/backend/internal/domain/ledger"
	"github.com/mandi/backend/internal/domain/shared"
	"github.com/mandi/backend/internal/infrastructure/auth"
	"github.com/mandi/backend/internal/infrastructure/config"
	"github.com/mandi/backend/internal/infrastructure/persistence"
	"github.com/mandi/backend/internal/infrastructure/persistence/models"
	"github.com/mandi/backend/internal/infrastructure/storage"
	"github.com/mandi/backend/tests/testutil"
)

func execute(t *testing.T, e *env, args ...string) (string, error) {
	t.Helper()

	if e.log == nil {
		e.log = zap.NewNop()
	}
	var out bytes.Buffer
	root := newRootCmd(e)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	e.close()
	return out.String(), err
}

func driftedLedger(t *testing.T) (*gorm.DB, *ledger.Party) {
	t.Helper()

	db := testutil.NewLedgerDB(t)
	tenantID := testutil.TestTenantID()
	clean := testutil.SeedParty(t, db, tenantID, ledger.PartyKindRetailer, "Clean Retailer")
	testutil.SeedInvoice(t, db, clean, "SI-1", 1, 400, 1)
	drifted := testutil.SeedParty(t, db, tenantID, ledger.PartyKindVendor, "Ramesh Traders")
	testutil.SeedInvoice(t, db, drifted, "PI-1", 2, 700, 2)
	require.NoError(t, db.Table(models.PartyTable(ledger.PartyKindVendor)).
		Where("id = ?", drifted.ID).
		Update("balance", 650).Error)
	return db, drifted
}

func TestAudit_ReportsDrift(t *testing.T) {
	db, drifted := driftedLedger(t)

	out, err := execute(t, &env{db: db}, "audit", "--tenant", testutil.TestTenantID().String())
	require.NoError(t, err)
	assert.Contains(t, out, "Ramesh Traders")
	assert.Contains(t, out, drifted.ID.String())
	assert.Contains(t, out, "-50.00")
	assert.NotContains(t, out, "Clean Retailer")
}

func TestAudit_FailOnDrift(t *testing.T) {
	db, _ := driftedLedger(t)

	_, err := execute(t, &env{db: db}, "audit", "--tenant", testutil.TestTenantID().String(), "--fail-on-drift")
	assert.ErrorIs(t, err, errDriftFound)

	_, err = execute(t, &env{db: db}, "audit", "--tenant", testutil.OtherTenantID().String(), "--fail-on-drift")
	assert.NoError(t, err, "another tenant has no parties and so no drift")
}

func TestAudit_ArchiveAndJSON(t *testing.T) {
	db, drifted := driftedLedger(t)
	archive := storage.NewMemoryReportArchive()

	out, err := execute(t, &env{db: db, archive: archive},
		"audit", "--tenant", testutil.TestTenantID().String(), "--archive", "--json")
	require.NoError(t, err)

	var report ledgerapp.AuditReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Drifts, 1)
	assert.Equal(t, drifted.ID, report.Drifts[0].PartyID)
	assert.True(t, strings.HasPrefix(report.Location, "mem://"))

	keys := archive.Keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], testutil.TestTenantID().String()+"/balance-audit-"))
}

func TestAudit_InvalidTenant(t *testing.T) {
	_, err := execute(t, &env{db: testutil.NewLedgerDB(t)}, "audit", "--tenant", "not-a-uuid")
	assert.ErrorContains(t, err, "invalid --tenant")

	_, err = execute(t, &env{db: testutil.NewLedgerDB(t)}, "audit")
	assert.ErrorContains(t, err, "tenant")
}

func TestOutboxCommands(t *testing.T) {
	db := testutil.NewLedgerDB(t)
	repo := persistence.NewGormOutboxRepository(db)
	ctx := context.Background()

	dead := shared.NewOutboxEntry(testutil.NewTestEvent(ledger.EventTypePaymentRecorded, testutil.TestTenantID()), []byte(`{}`))
	dead.MaxRetries = 1
	dead.MarkFailed("webhook returned HTTP 500")
	require.NoError(t, repo.Save(ctx, dead))
	otherDead := shared.NewOutboxEntry(testutil.NewTestEvent(ledger.EventTypePaymentRecorded, testutil.OtherTenantID()), []byte(`{}`))
	otherDead.MaxRetries = 1
	otherDead.MarkFailed("timeout")
	require.NoError(t, repo.Save(ctx, otherDead))

	out, err := execute(t, &env{db: db}, "outbox", "dead")
	require.NoError(t, err)
	assert.Contains(t, out, dead.ID.String())
	assert.Contains(t, out, otherDead.ID.String(), "the CLI lists every tenant")
	assert.Contains(t, out, "2 dead")

	out, err = execute(t, &env{db: db}, "outbox", "retry", dead.ID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "requeued "+dead.ID.String())

	_, err = execute(t, &env{db: db}, "outbox", "retry", dead.ID.String())
	assert.ErrorIs(t, err, shared.ErrInvalidState, "a pending entry cannot be retried again")

	_, err = execute(t, &env{db: db}, "outbox", "retry", uuid.NewString())
	assert.Error(t, err)

	out, err = execute(t, &env{db: db}, "outbox", "retry-all")
	require.NoError(t, err)
	assert.Contains(t, out, "requeued 1 entries")

	out, err = execute(t, &env{db: db}, "outbox", "stats")
	require.NoError(t, err)
	assert.Regexp(t, `pending\s+2`, out)
	assert.Regexp(t, `dead\s+0`, out)
	assert.Regexp(t, `total\s+2`, out)
}

func TestTokenIssue(t *testing.T) {
	t.Setenv("MANDI_JWT_SECRET", "ledgerctl-test-secret-0123456789abcdef")
	tenantID := testutil.TestTenantID()
	e := &env{configPaths: []string{t.TempDir()}}

	out, err := execute(t, e, "token", "issue", "--tenant", tenantID.String(), "--actor", "clerk-7", "--role", "clerk", "--ttl", "10m")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "expires "))

	claims, err := auth.NewJWTService(e.cfg.JWT).ValidateAccessToken(lines[0])
	require.NoError(t, err)
	assert.Equal(t, tenantID.String(), claims.TenantID)
	assert.Equal(t, "clerk-7", claims.Subject)
	assert.True(t, claims.HasRole(auth.RoleClerk))
	assert.False(t, claims.HasRole(auth.RoleAdmin))
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), claims.ExpiresAt.Time, time.Minute)
}

func TestTokenIssue_Rejections(t *testing.T) {
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "s", Issuer: "mandi-backend", AccessTokenExpiration: time.Hour}}
	tenant := testutil.TestTenantID().String()

	_, err := execute(t, &env{cfg: cfg}, "token", "issue", "--tenant", tenant, "--actor", "x", "--role", "owner")
	assert.ErrorContains(t, err, `unknown role "owner"`)

	_, err = execute(t, &env{cfg: cfg}, "token", "issue", "--tenant", uuid.Nil.String(), "--actor", "x")
	assert.ErrorIs(t, err, auth.ErrMissingTenantID)

	_, err = execute(t, &env{cfg: cfg}, "token", "issue", "--tenant", tenant)
	assert.ErrorContains(t, err, "actor")
}

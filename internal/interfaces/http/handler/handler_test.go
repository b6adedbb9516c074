package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mandi/backend/internal/application/event"
	ledgerapp "github.com/mandi/backend/internal/application/ledger"
	"github.com/mandi/backend/internal/application/payment"
	"github.com/mandi/backend/internal/domain/ledger"
	"github.com/mandi/backend/internal/domain/shared"
	infraevent "github.com/mandi/backend/internal/infrastructure/event"
	"github.com/mandi/backend/internal/infrastructure/persistence"
	"github.com/mandi/backend/internal/interfaces/http/dto"
	"github.com/mandi/backend/internal/interfaces/http/middleware"
	"github.com/mandi/backend/tests/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
	if err := middleware.SetupValidator(); err != nil {
		panic(err)
	}
}

type apiFixture struct {
	db       *gorm.DB
	router   *gin.Engine
	tenantID uuid.UUID
	outbox   shared.OutboxRepository
}

// newAPIFixture serves the handlers over sqlite with the tenant fixed
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	db := testutil.NewLedgerDB(t)
	tenantID := testutil.TestTenantID()

	serializer := infraevent.NewEventSerializer()
	infraevent.RegisterLedgerEvents(serializer)
	outboxRepo := persistence.NewGormOutboxRepository(db)

	recorder := payment.NewRecorder(
		persistence.NewTransactionManager(db, persistence.TxOptions{}),
		persistence.NewTenantGuard(db),
		persistence.NewGormPaymentRepository(db),
		persistence.NewGormPaymentRequestRepository(db),
		infraevent.NewOutboxPublisher(outboxRepo, serializer),
		[]payment.PartyLedger{persistence.NewVendorLedger(db), persistence.NewRetailerLedger(db)},
	)
	payments := NewPaymentHandler(recorder)
	payments.now = func() time.Time { return time.Date(2024, time.March, 20, 15, 30, 0, 0, time.UTC) }
	ledgers := NewLedgerHandler(ledgerapp.NewQueryService(persistence.NewGormLedgerProjection(db)))
	outbox := NewOutboxHandler(event.NewOutboxService(outboxRepo))

	r := gin.New()
	r.Use(middleware.RequestID(), func(c *gin.Context) {
		c.Set(middleware.TenantIDKey, tenantID)
		c.Next()
	})
	r.POST("/vendors/:id/payments", payments.RecordVendorPayment)
	r.POST("/retailers/:id/payments", payments.RecordRetailerPayment)
	r.GET("/payments/batches/:batchId", payments.GetBatch)
	r.GET("/vendors/:id/statement", ledgers.VendorStatement)
	r.GET("/retailers/:id/statement", ledgers.RetailerStatement)
	r.GET("/ledger/cashbook", ledgers.Cashbook)
	r.GET("/ledger/bankbook/:bankAccountId", ledgers.Bankbook)
	r.GET("/system/outbox/dead", outbox.GetDeadLetterEntries)
	r.POST("/system/outbox/:id/retry", outbox.RetryDeadEntry)
	r.POST("/system/outbox/retry-all", outbox.RetryAllDeadEntries)
	r.GET("/system/outbox/stats", outbox.GetStats)

	return &apiFixture{db: db, router: r, tenantID: tenantID, outbox: outboxRepo}
}

func TestRecordPayment_DistributesOldestFirst(t *testing.T) {
	f := newAPIFixture(t)
	vendor := testutil.SeedParty(t, f.db, f.tenantID, ledger.PartyKindVendor, "Ramesh Traders")
	testutil.SeedInvoice(t, f.db, vendor, "PI-1", 1, 300, 1)
	testutil.SeedInvoice(t, f.db, vendor, "PI-2", 2, 700, 2)

	w := testutil.PerformJSON(t, f.router, http.MethodPost, "/vendors/"+vendor.ID.String()+"/payments",
		map[string]any{"amount": "500", "payment_mode": "cash"}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var res payment.DistributionResult
	testutil.DecodeResponse(t, w, &res)
	require.Len(t, res.Payments, 2)
	assert.Equal(t, "PI-1", res.Payments[0].InvoiceNumber)
	assert.Equal(t, "300", res.Payments[0].Amount.String())
	assert.Equal(t, "200", res.Payments[1].Amount.String())
	assert.True(t, res.Remainder.IsZero())
	assert.Equal(t, ledger.PaymentModeCash, res.Mode)
	assert.Equal(t, "2024-03-20", res.PaymentDate.Format(dto.DateLayout), "date defaults to today")

	require.Len(t, res.InvoicesUpdated, 2)
	assert.Equal(t, ledger.InvoiceStatusPaid, res.InvoicesUpdated[0].Status)
	assert.Equal(t, ledger.InvoiceStatusPartiallyPaid, res.InvoicesUpdated[1].Status)

	w = testutil.PerformJSON(t, f.router, http.MethodGet, "/payments/batches/"+res.BatchID.String(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var batch payment.BatchView
	testutil.DecodeResponse(t, w, &batch)
	assert.Equal(t, "500", batch.Total.String())
	assert.Len(t, batch.Payments, 2)
}

func TestRecordPayment_ReportsRemainder(t *testing.T) {
	f := newAPIFixture(t)
	retailer := testutil.SeedParty(t, f.db, f.tenantID, ledger.PartyKindRetailer, "Sharma Fruits")
	testutil.SeedInvoice(t, f.db, retailer, "SI-1", 1, 700, 1)
	account := testutil.SeedBankAccount(t, f.db, f.tenantID)

	w := testutil.PerformJSON(t, f.router, http.MethodPost, "/retailers/"+retailer.ID.String()+"/payments",
		map[string]any{"amount": 1000, "payment_mode": "UPI", "upi_reference": "upi-77",
			"bank_account_id": account.String(), "payment_date": "2024-03-05"}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var res payment.DistributionResult
	testutil.DecodeResponse(t, w, &res)
	assert.Equal(t, "300", res.Remainder.String())
	assert.Equal(t, "700", res.TotalAllocated.String())
}

func TestRecordPayment_Failures(t *testing.T) {
	f := newAPIFixture(t)
	vendor := testutil.SeedParty(t, f.db, f.tenantID, ledger.PartyKindVendor, "Ramesh Traders")
	settled := testutil.SeedParty(t, f.db, f.tenantID, ledger.PartyKindVendor, "Settled Co")
	testutil.SeedInvoice(t, f.db, vendor, "PI-1", 1, 300, 1)
	foreignAccount := testutil.SeedBankAccount(t, f.db, testutil.OtherTenantID())
	foreignVendor := testutil.SeedParty(t, f.db, testutil.OtherTenantID(), ledger.PartyKindVendor, "Elsewhere")

	path := func(id uuid.UUID) string { return "/vendors/" + id.String() + "/payments" }
	tests := []struct {
		name   string
		path   string
		body   map[string]any
		status int
		code   string
	}{
		{"no outstanding invoices", path(settled.ID), map[string]any{"amount": "100", "payment_mode": "CASH"}, http.StatusUnprocessableEntity, ledger.CodeNoOutstandingInvoices},
		{"bank without account", path(vendor.ID), map[string]any{"amount": "100", "payment_mode": "BANK"}, http.StatusBadRequest, shared.CodeValidation},
		{"upi without account", path(vendor.ID), map[string]any{"amount": "100", "payment_mode": "UPI", "upi_reference": "upi-1"}, http.StatusBadRequest, shared.CodeValidation},
		{"foreign bank account", path(vendor.ID), map[string]any{"amount": "100", "payment_mode": "BANK", "bank_account_id": foreignAccount.String()}, http.StatusForbidden, shared.CodeTenantMismatch},
		{"foreign party", path(foreignVendor.ID), map[string]any{"amount": "100", "payment_mode": "CASH"}, http.StatusForbidden, shared.CodeTenantMismatch},
		{"unknown party", path(uuid.New()), map[string]any{"amount": "100", "payment_mode": "CASH"}, http.StatusNotFound, shared.CodeNotFound},
		{"zero amount", path(vendor.ID), map[string]any{"amount": "0", "payment_mode": "CASH"}, http.StatusBadRequest, shared.CodeValidation},
		{"bad mode", path(vendor.ID), map[string]any{"amount": "10", "payment_mode": "BARTER"}, http.StatusBadRequest, shared.CodeValidation},
		{"bad party id", "/vendors/not-a-uuid/payments", map[string]any{"amount": "10", "payment_mode": "CASH"}, http.StatusBadRequest, shared.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testutil.PerformJSON(t, f.router, http.MethodPost, tt.path, tt.body, nil)
			resp := testutil.RequireErrorCode(t, w, tt.status, tt.code)
			if tt.code == shared.CodeTenantMismatch {
				assert.Equal(t, "Access denied", resp.Error.Message)
			}
		})
	}

	assert.Zero(t, testutil.CountRows(t, f.db, "payments", f.tenantID), "failed calls write nothing")
}

func TestRecordPayment_IdempotentReplay(t *testing.T) {
	f := newAPIFixture(t)
	vendor := testutil.SeedParty(t, f.db, f.tenantID, ledger.PartyKindVendor, "Ramesh Traders")
	testutil.SeedInvoice(t, f.db, vendor, "PI-1", 1, 300, 1)
	path := "/vendors/" + vendor.ID.String() + "/payments"
	body := map[string]any{"amount": "100", "payment_mode": "CASH", "payment_date": "2024-03-02"}
	headers := map[string]string{dto.IdempotencyKeyHeader: "slip-001"}

	first := testutil.PerformJSON(t, f.router, http.MethodPost, path, body, headers)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := testutil.PerformJSON(t, f.router, http.MethodPost, path, body, headers)
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())

	var a, b payment.DistributionResult
	testutil.DecodeResponse(t, first, &a)
	testutil.DecodeResponse(t, second, &b)
	assert.Equal(t, a.BatchID, b.BatchID)
	assert.True(t, b.Replayed)
	assert.Equal(t, int64(1), testutil.CountRows(t, f.db, "payments", f.tenantID))

	body["amount"] = "150"
	w := testutil.PerformJSON(t, f.router, http.MethodPost, path, body, headers)
	testutil.RequireErrorCode(t, w, http.StatusConflict, ledger.CodeIdempotencyKeyReused)
}

func TestStatementAndBooks(t *testing.T) {
	f := newAPIFixture(t)
	vendor := testutil.SeedParty(t, f.db, f.tenantID, ledger.PartyKindVendor, "Ramesh Traders")
	testutil.SeedInvoice(t, f.db, vendor, "PI-1", 1, 300, 1)
	account := testutil.SeedBankAccount(t, f.db, f.tenantID)

	w := testutil.PerformJSON(t, f.router, http.MethodPost, "/vendors/"+vendor.ID.String()+"/payments",
		map[string]any{"amount": "120", "payment_mode": "CASH", "payment_date": "2024-03-05"}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = testutil.PerformJSON(t, f.router, http.MethodPost, "/vendors/"+vendor.ID.String()+"/payments",
		map[string]any{"amount": "80", "payment_mode": "BANK", "bank_account_id": account.String(), "payment_date": "2024-03-06"}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	t.Run("statement", func(t *testing.T) {
		w := testutil.PerformJSON(t, f.router, http.MethodGet, "/vendors/"+vendor.ID.String()+"/statement", nil, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var st dto.StatementResponse
		testutil.DecodeResponse(t, w, &st)
		require.Len(t, st.Lines, 3)
		assert.Equal(t, ledger.StatementLineInvoice, st.Lines[0].Kind)
		assert.Equal(t, "100", st.ClosingBalance.String())
		assert.True(t, st.Consistent)
	})

	t.Run("cashbook", func(t *testing.T) {
		w := testutil.PerformJSON(t, f.router, http.MethodGet, "/ledger/cashbook?from=2024-03-01&to=2024-03-31", nil, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var book dto.BookResponse
		testutil.DecodeResponse(t, w, &book)
		require.Len(t, book.Entries, 1)
		assert.Equal(t, ledger.DirectionOut, book.Entries[0].Direction)
		assert.Equal(t, "2024-03-05", book.Entries[0].Date)
	})

	t.Run("bankbook", func(t *testing.T) {
		w := testutil.PerformJSON(t, f.router, http.MethodGet, "/ledger/bankbook/"+account.String()+"?from=2024-03-01&to=2024-03-31", nil, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var book dto.BookResponse
		testutil.DecodeResponse(t, w, &book)
		require.Len(t, book.Entries, 1)
		assert.Equal(t, "80", book.Entries[0].Amount.String())
	})

	t.Run("bad ranges", func(t *testing.T) {
		w := testutil.PerformJSON(t, f.router, http.MethodGet, "/ledger/cashbook?from=2024-03-01", nil, nil)
		testutil.RequireErrorCode(t, w, http.StatusBadRequest, shared.CodeValidation)
		w = testutil.PerformJSON(t, f.router, http.MethodGet, "/ledger/cashbook?from=2024-03-31&to=2024-03-01", nil, nil)
		testutil.RequireErrorCode(t, w, http.StatusBadRequest, shared.CodeValidation)
	})
}

func TestOutboxAdmin(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	dead := shared.NewOutboxEntry(testutil.NewTestEvent("PaymentRecorded", f.tenantID), []byte(`{}`))
	dead.MaxRetries = 1
	dead.MarkFailed("gateway returned HTTP 502")
	require.NoError(t, f.outbox.Save(ctx, dead))
	pending := shared.NewOutboxEntry(testutil.NewTestEvent("PaymentRecorded", f.tenantID), []byte(`{}`))
	require.NoError(t, f.outbox.Save(ctx, pending))

	w := testutil.PerformJSON(t, f.router, http.MethodGet, "/system/outbox/dead", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var entries []event.OutboxEntryDTO
	testutil.DecodeResponse(t, w, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, dead.ID, entries[0].ID)

	w = testutil.PerformJSON(t, f.router, http.MethodPost, "/system/outbox/"+pending.ID.String()+"/retry", nil, nil)
	testutil.RequireErrorCode(t, w, http.StatusUnprocessableEntity, shared.CodeInvalidState)

	w = testutil.PerformJSON(t, f.router, http.MethodPost, "/system/outbox/"+dead.ID.String()+"/retry", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = testutil.PerformJSON(t, f.router, http.MethodGet, "/system/outbox/stats", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats event.OutboxStatsDTO
	testutil.DecodeResponse(t, w, &stats)
	assert.Equal(t, int64(2), stats.Pending)
	assert.Zero(t, stats.Dead)

	w = testutil.PerformJSON(t, f.router, http.MethodPost, "/system/outbox/retry-all", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"requeued":0`)
}

func TestHealth(t *testing.T) {
	r := gin.New()
	healthy := NewHealthHandler("test", map[string]Pinger{"database": PingFunc(func(context.Context) error { return nil })})
	broken := NewHealthHandler("test", map[string]Pinger{"redis": PingFunc(func(context.Context) error { return errors.New("dial tcp: refused") })})
	r.GET("/health", healthy.Health)
	r.GET("/broken", broken.Health)

	w := testutil.PerformJSON(t, r, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	testutil.DecodeResponse(t, w, &resp)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "up", resp.Checks["database"])

	w = testutil.PerformJSON(t, r, http.MethodGet, "/broken", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"down"`)
}

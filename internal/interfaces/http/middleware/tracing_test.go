package middleware

import (
	"net/http"
	"runtime/pprof"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/mandi/backend/internal/infrastructure/telemetry"
	"github.com/mandi/backend/tests/testutil"
)

func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return sr
}

func TestTracing_Disabled(t *testing.T) {
	sr := setupTestTracer(t)
	router := gin.New()
	router.Use(Tracing("mandi-test", false))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	testutil.PerformJSON(t, router, http.MethodGet, "/test", nil, nil)
	assert.Empty(t, sr.Ended())
}

func TestTracing_EnrichesSpan(t *testing.T) {
	sr := setupTestTracer(t)
	svc := newJWTService()

	router := gin.New()
	router.Use(Tracing("mandi-test", true), RequestID(), JWTAuth(svc), TenantScope(nil), SpanEnricher())
	router.GET("/ledger/cashbook", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	headers := bearer(t, svc, testutil.TestTenantID(), 0)
	headers[RequestIDHeader] = "req-trace-1"
	testutil.PerformJSON(t, router, http.MethodGet, "/ledger/cashbook", nil, headers)
	testutil.PerformJSON(t, router, http.MethodGet, "/boom", nil, headers)

	spans := sr.Ended()
	require.Len(t, spans, 2)

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "req-trace-1", attrs["request_id"])
	assert.Equal(t, testutil.TestTenantID().String(), attrs[telemetry.SpanAttrTenantID])
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestProfiling(t *testing.T) {
	svc := newJWTService()
	router := gin.New()
	router.Use(JWTAuth(svc), TenantScope(nil), Profiling(true))

	var route, method, tenant string
	router.GET("/vendors/:id/statement", func(c *gin.Context) {
		ctx := c.Request.Context()
		route, _ = pprof.Label(ctx, telemetry.ProfilingLabelRoute)
		method, _ = pprof.Label(ctx, telemetry.ProfilingLabelMethod)
		tenant, _ = pprof.Label(ctx, telemetry.ProfilingLabelTenantID)
		c.Status(http.StatusOK)
	})

	w := testutil.PerformJSON(t, router, http.MethodGet, "/vendors/v1/statement", nil, bearer(t, svc, testutil.TestTenantID(), 0))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/vendors/:id/statement", route)
	assert.Equal(t, http.MethodGet, method)
	assert.Equal(t, testutil.TestTenantID().String(), tenant)
}

func TestProfiling_Disabled(t *testing.T) {
	router := gin.New()
	router.Use(Profiling(false))
	var route string
	router.GET("/test", func(c *gin.Context) {
		route, _ = pprof.Label(c.Request.Context(), telemetry.ProfilingLabelRoute)
		c.Status(http.StatusOK)
	})
	testutil.PerformJSON(t, router, http.MethodGet, "/test", nil, nil)
	assert.Empty(t, route)
}

package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestSanitizeLabels(t *testing.T) {
	pairs := sanitizeLabels(map[string]string{
		"Party Kind": "VENDOR",
		"batch_id":   "b-1",
		"empty":      "",
		"op-name":    string(make([]byte, 200)),
	})
	require.Len(t, pairs, 4)
	assert.Equal(t, []string{"party_kind", "VENDOR"}, pairs[:2])
	assert.Equal(t, "op_name", pairs[2])
	assert.Len(t, pairs[3], MaxLabelValueLength)
	assert.Nil(t, sanitizeLabels(nil))
}

func TestWithProfilingLabels_RunsFn(t *testing.T) {
	called := 0
	WithProfilingLabels(context.Background(), nil, func(context.Context) { called++ })
	WithProfilingLabels(context.Background(), PaymentOperationLabels("record", "VENDOR", "CASH", "t"), func(context.Context) { called++ })
	assert.Equal(t, 2, called)
}

func TestStartServiceSpan_RecordsAttributesAndErrors(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, span := StartServiceSpan(context.Background(), "PaymentRecorder", "Record",
		SpanAttrPartyKind, "VENDOR", SpanAttrAllocations, 2)
	assert.NotEmpty(t, GetTraceID(ctx))
	AddEvent(span, "allocated", SpanAttrRemainder, "0")
	RecordError(span, errors.New("boom"))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "PaymentRecorder.Record", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Len(t, spans[0].Events, 2) // allocated + exception
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "VENDOR", attrs[SpanAttrPartyKind])
	assert.Equal(t, "2", attrs[SpanAttrAllocations])
}

func TestGetTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
}

func TestLedgerMetrics_RecordDistribution(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewLedgerMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordDistribution(ctx, "VENDOR", "CASH", 2, 500, 0, false)
	m.RecordDistribution(ctx, "VENDOR", "CASH", 2, 500, 0, true)
	m.RecordFailure(ctx, "RETAILER", OutcomeMismatch)
	m.RecordTenantMismatch(ctx, "tenant-a")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if s, ok := md.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range s.DataPoints {
					sums[md.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(3), sums["mandi.payments.requests"])
	assert.Equal(t, int64(2), sums["mandi.payments.rows"])
	assert.Equal(t, int64(1), sums["mandi.security.tenant_mismatches"])
}

func TestLedgerMetrics_NilIsNoop(t *testing.T) {
	var m *LedgerMetrics
	assert.NotPanics(t, func() {
		m.RecordDistribution(context.Background(), "VENDOR", "CASH", 1, 1, 0, false)
		m.RecordNotification(context.Background(), "log", false)
	})
}

func TestDisabledProvidersAreInert(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	tp, err := NewTracerProvider(ctx, Config{}, logger)
	require.NoError(t, err)
	assert.False(t, tp.IsEnabled())
	assert.NoError(t, tp.Shutdown(ctx))

	mp, err := NewMeterProvider(ctx, MetricsConfig{}, logger)
	require.NoError(t, err)
	assert.NotNil(t, mp.Meter("x"))
	assert.NoError(t, mp.Shutdown(ctx))

	lp, err := NewLoggerProvider(ctx, LogsConfig{}, logger)
	require.NoError(t, err)
	assert.False(t, lp.IsEnabled())
	core := NewZapOTELCore("svc", lp, zapcore.InfoLevel)
	assert.False(t, core.Enabled(zapcore.ErrorLevel))
	assert.NotNil(t, NewBridgedLogger(logger, core))

	p, err := NewProfiler(ProfilerConfig{}, logger)
	require.NoError(t, err)
	assert.False(t, p.IsEnabled())
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop())
}

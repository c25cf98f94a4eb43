package observe

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestRecordTurn(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTurn(ctx, "text", OutcomeOK, 1500*time.Millisecond)
	m.RecordTurn(ctx, "text", OutcomeOK, 500*time.Millisecond)
	m.RecordTurn(ctx, "audio", OutcomeTimeout, 30*time.Second)

	rm := collect(t, reader)

	turns := findMetric(rm, "ami.live.turns")
	require.NotNil(t, turns)
	sum, ok := turns.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	counts := map[string]int64{}
	for _, dp := range sum.DataPoints {
		kind, _ := dp.Attributes.Value(attribute.Key("kind"))
		outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
		counts[kind.AsString()+"/"+outcome.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"text/ok": 2, "audio/timeout": 1}, counts)

	duration := findMetric(rm, "ami.live.turn.duration")
	require.NotNil(t, duration)
	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
	assert.InDelta(t, 2.0, hist.DataPoints[0].Sum, 1e-9)
}

func TestCountersAndGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordParseFallback(ctx)
	m.RecordPersistenceFailure(ctx)
	m.RecordPersistenceFailure(ctx)
	m.SessionOpened(ctx)
	m.SessionOpened(ctx)
	m.SessionClosed(ctx)

	rm := collect(t, reader)

	for name, want := range map[string]int64{
		"ami.reply.parse_fallbacks":     1,
		"ami.chat.persistence_failures": 2,
		"ami.live.active_sessions":      1,
	} {
		found := findMetric(rm, name)
		require.NotNil(t, found, name)
		sum, ok := found.Data.(metricdata.Sum[int64])
		require.True(t, ok, name)
		require.Len(t, sum.DataPoints, 1, name)
		assert.Equal(t, want, sum.DataPoints[0].Value, name)
	}
}

func TestNopMetrics(t *testing.T) {
	m := NopMetrics()
	assert.NotPanics(t, func() {
		m.RecordTurn(context.Background(), "text", OutcomeOK, time.Second)
		m.SessionOpened(context.Background())
	})
}

func TestProviderHandlerExposesMetrics(t *testing.T) {
	p, err := InitProvider(context.Background(), ProviderConfig{ServiceVersion: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	m, err := NewMetrics(p.MeterProvider)
	require.NoError(t, err)
	m.RecordParseFallback(context.Background())

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "ami_reply_parse_fallbacks")
}

func TestInitProvider_DefaultServiceName(t *testing.T) {
	p, err := InitProvider(context.Background(), ProviderConfig{ServiceName: "ami"})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.NoError(t, p.Shutdown(context.Background()))
}

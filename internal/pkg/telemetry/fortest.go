package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// ForTest collects metrics and ended spans in memory, see Metrics, MetricValue and Spans.
type ForTest interface {
	Telemetry
	Metrics(t *testing.T) []metricdata.Metrics
	MetricValue(t *testing.T, name string, attrs ...attribute.KeyValue) float64
	Spans(t *testing.T) tracetest.SpanStubs
	Span(t *testing.T, name string) tracetest.SpanStub
}

type forTest struct {
	Telemetry
	reader   *metric.ManualReader
	recorder *tracetest.SpanRecorder
}

func NewForTest(t *testing.T) ForTest {
	t.Helper()
	reader := metric.NewManualReader()
	meterProvider := metric.NewMeterProvider(metric.WithReader(reader))
	recorder := tracetest.NewSpanRecorder()
	tracerProvider := tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(recorder))
	t.Cleanup(func() {
		_ = meterProvider.Shutdown(context.Background())
		_ = tracerProvider.Shutdown(context.Background())
	})
	return &forTest{Telemetry: New(tracerProvider, meterProvider), reader: reader, recorder: recorder}
}

// Spans returns all ended spans in the order they ended.
func (v *forTest) Spans(t *testing.T) tracetest.SpanStubs {
	t.Helper()
	return tracetest.SpanStubsFromReadOnlySpans(v.recorder.Ended())
}

// Span returns the last ended span with the name, the test fails if there is none.
func (v *forTest) Span(t *testing.T, name string) tracetest.SpanStub {
	t.Helper()
	spans := v.Spans(t)
	for i := len(spans) - 1; i >= 0; i-- {
		if spans[i].Name == name {
			return spans[i]
		}
	}
	require.Failf(t, "span not found", `no ended span "%s"`, name)
	return tracetest.SpanStub{}
}

func (v *forTest) Metrics(t *testing.T) []metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, v.reader.Collect(context.Background(), &rm))
	var out []metricdata.Metrics
	for _, sm := range rm.ScopeMetrics {
		out = append(out, sm.Metrics...)
	}
	return out
}

// MetricValue returns the sum of counter data points, or the count of histogram data points.
// Only data points containing all attributes are included.
func (v *forTest) MetricValue(t *testing.T, name string, attrs ...attribute.KeyValue) float64 {
	t.Helper()
	var out float64
	for _, m := range v.Metrics(t) {
		if m.Name != name {
			continue
		}
		switch data := m.Data.(type) {
		case metricdata.Sum[int64]:
			for _, dp := range data.DataPoints {
				if hasAttributes(dp.Attributes, attrs) {
					out += float64(dp.Value)
				}
			}
		case metricdata.Sum[float64]:
			for _, dp := range data.DataPoints {
				if hasAttributes(dp.Attributes, attrs) {
					out += dp.Value
				}
			}
		case metricdata.Histogram[float64]:
			for _, dp := range data.DataPoints {
				if hasAttributes(dp.Attributes, attrs) {
					out += float64(dp.Count)
				}
			}
		}
	}
	return out
}

func hasAttributes(set attribute.Set, attrs []attribute.KeyValue) bool {
	for _, attr := range attrs {
		if v, ok := set.Value(attr.Key); !ok || v != attr.Value {
			return false
		}
	}
	return true
}

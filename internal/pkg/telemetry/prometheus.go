package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	otelPrometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

// NewPrometheus creates telemetry with metrics exported to the Prometheus registry.
func NewPrometheus(registry *prometheus.Registry, tracerProvider trace.TracerProvider) (Telemetry, error) {
	exporter, err := otelPrometheus.New(otelPrometheus.WithRegisterer(registry), otelPrometheus.WithoutScopeInfo())
	if err != nil {
		return nil, err
	}
	return New(tracerProvider, metric.NewMeterProvider(metric.WithReader(exporter))), nil
}

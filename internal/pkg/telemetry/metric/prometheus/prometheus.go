// Package prometheus serves metrics of the node in the Prometheus format.
package prometheus

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keboola/go-cluster-filesync/internal/pkg/log"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/servicectx"
	"github.com/keboola/go-cluster-filesync/internal/pkg/telemetry"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

const (
	Endpoint          = "/metrics"
	readHeaderTimeout = 10 * time.Second
)

// NewRegistry creates a registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// Handler exposes metrics from the registry.
func Handler(registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(Endpoint, promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	return mux
}

// ServeMetrics creates telemetry exported to Prometheus and starts the metrics HTTP server.
// If the listen address is empty, metrics are collected but not served.
// The server stops on the Process shutdown.
func ServeMetrics(ctx context.Context, listenAddr string, logger log.Logger, proc *servicectx.Process) (telemetry.Telemetry, error) {
	logger = logger.WithComponent("metrics")

	registry := NewRegistry()
	tel, err := telemetry.NewPrometheus(registry, nil)
	if err != nil {
		return nil, errors.PrefixError(err, "cannot create Prometheus exporter")
	}

	if listenAddr == "" {
		logger.Info(ctx, "metrics endpoint is disabled")
		return tel, nil
	}

	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, errors.PrefixErrorf(err, `cannot listen on "%s"`, listenAddr)
	}

	srv := &http.Server{Handler: Handler(registry), ReadHeaderTimeout: readHeaderTimeout}
	proc.Add(func(ctx context.Context, errCh chan<- error) {
		logger.Infof(ctx, `metrics endpoint http://%s%s`, listener.Addr(), Endpoint)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	})

	proc.OnShutdown(func(ctx context.Context) {
		logger.Info(ctx, "shutting down metrics endpoint")
		if err := srv.Shutdown(ctx); err != nil {
			logger.Errorf(ctx, `metrics endpoint shutdown failed: %s`, err)
		}
		logger.Info(ctx, "metrics endpoint shutdown done")
	})

	return tel, nil
}

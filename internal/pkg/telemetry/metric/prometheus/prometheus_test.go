package prometheus_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/go-cluster-filesync/internal/pkg/log"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/servicectx"
	"github.com/keboola/go-cluster-filesync/internal/pkg/telemetry"
	"github.com/keboola/go-cluster-filesync/internal/pkg/telemetry/metric/prometheus"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/netutils"
)

func TestHandler(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	registry := prometheus.NewRegistry()
	tel, err := telemetry.NewPrometheus(registry, nil)
	require.NoError(t, err)
	telemetry.Counter(tel.Meter(), "filesync.chunk.sent", "Chunks published by the sender.", "1").Add(ctx, 3)

	srv := httptest.NewServer(prometheus.Handler(registry))
	defer srv.Close()

	resp, err := http.Get(srv.URL + prometheus.Endpoint) // nolint: noctx
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Regexp(t, `filesync_chunk_sent\w* 3`, string(body))
	assert.Contains(t, string(body), "go_goroutines")
}

func TestServeMetrics_Disabled(t *testing.T) {
	t.Parallel()
	logger := log.NewDebugLogger()
	proc := servicectx.NewForTest(t, logger)

	tel, err := prometheus.ServeMetrics(context.Background(), "", logger, proc)
	require.NoError(t, err)
	assert.NotNil(t, tel.Meter())
	assert.Contains(t, logger.AllMessages(), "metrics endpoint is disabled")
}

func TestServeMetrics(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	addr, err := netutils.FreeLocalAddr()
	require.NoError(t, err)

	logger := log.NewDebugLogger()
	proc := servicectx.NewForTest(t, logger)

	tel, err := prometheus.ServeMetrics(ctx, addr, logger, proc)
	require.NoError(t, err)
	telemetry.Counter(tel.Meter(), "filesync.chunk.sent", "Chunks published by the sender.", "1").Add(ctx, 5)
	require.NoError(t, netutils.WaitForTCP(ctx, addr))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+prometheus.Endpoint, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Regexp(t, `filesync_chunk_sent\w* 5`, string(body))

	proc.Shutdown(ctx, nil)
	proc.WaitForShutdown()
	assert.Contains(t, logger.AllMessages(), "metrics endpoint shutdown done")
}

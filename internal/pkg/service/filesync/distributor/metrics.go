package distributor

import (
	"go.opentelemetry.io/otel/metric"

	"github.com/keboola/go-cluster-filesync/internal/pkg/telemetry"
)

type metrics struct {
	transfers       metric.Int64Counter
	duration        metric.Float64Histogram
	chunksSent      metric.Int64Counter
	chunksReceived  metric.Int64Counter
	chunksDiscarded metric.Int64Counter
}

func newMetrics(meter metric.Meter) *metrics {
	return &metrics{
		transfers:       telemetry.Counter(meter, "filesync.transfer.count", "File distributions by the final status.", "1"),
		duration:        telemetry.Histogram(meter, "filesync.transfer.duration", "Duration of file distributions.", "ms"),
		chunksSent:      telemetry.Counter(meter, "filesync.chunk.sent", "Chunks published by the sender.", "1"),
		chunksReceived:  telemetry.Counter(meter, "filesync.chunk.received", "Chunks written by receivers.", "1"),
		chunksDiscarded: telemetry.Counter(meter, "filesync.chunk.discarded", "Chunks dropped by discarding receivers.", "1"),
	}
}

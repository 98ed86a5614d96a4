package stats

import (
	"go.opentelemetry.io/otel/metric"

	intotel "github.com/imtaco/stream-coordinator/internal/otel"
)

var (
	activeStreamsGauge     metric.Int64Gauge
	totalParticipantsGauge metric.Int64Gauge
	refreshDuration        metric.Float64Histogram
)

func init() {
	f := intotel.NewFactory("streams.stats", intotel.PrefixStats)

	f.Int64Gauge(&activeStreamsGauge, "active_streams",
		metric.WithDescription("Streams currently active"))

	f.Int64Gauge(&totalParticipantsGauge, "total_participants",
		metric.WithDescription("Participants across active streams"))

	f.Float64Histogram(&refreshDuration, "refresh.duration",
		metric.WithDescription("Time to recompute the aggregates"),
		metric.WithUnit("s"))
}

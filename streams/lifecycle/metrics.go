package lifecycle

import (
	"go.opentelemetry.io/otel/metric"

	intotel "github.com/imtaco/stream-coordinator/internal/otel"
)

var (
	eventsApplied    metric.Int64Counter
	eventsDuplicate  metric.Int64Counter
	eventsIgnored    metric.Int64Counter
	streamsCreated   metric.Int64Counter
	streamsFinished  metric.Int64Counter
	streamsForgotten metric.Int64Counter
	implicitCreates  metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("streams.lifecycle", intotel.PrefixLifecycle)

	f.Int64Counter(&eventsApplied, "events.applied",
		metric.WithDescription("Notifications applied, by kind"))

	f.Int64Counter(&eventsDuplicate, "events.duplicate",
		metric.WithDescription("Notifications skipped because their id was already applied"))

	f.Int64Counter(&eventsIgnored, "events.ignored",
		metric.WithDescription("Notifications that produced no mutation"))

	f.Int64Counter(&streamsCreated, "streams.created",
		metric.WithDescription("Streams created by explicit request"))

	f.Int64Counter(&streamsFinished, "streams.finished",
		metric.WithDescription("Streams moved to finished"))

	f.Int64Counter(&streamsForgotten, "streams.forgotten",
		metric.WithDescription("Streams force-deleted"))

	f.Int64Counter(&implicitCreates, "streams.implicit_created",
		metric.WithDescription("Streams created by a join that arrived before creation"))
}

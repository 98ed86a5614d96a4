package fanout

import (
	"go.opentelemetry.io/otel/metric"

	intotel "github.com/imtaco/stream-coordinator/internal/otel"
)

var (
	observersOpen   metric.Int64UpDownCounter
	updatesDispatch metric.Int64Counter
	observersPruned metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("streams.fanout", intotel.PrefixFanout)

	f.Int64UpDownCounter(&observersOpen, "observers.open",
		metric.WithDescription("Observer connections registered on this instance"))

	f.Int64Counter(&updatesDispatch, "updates.dispatched",
		metric.WithDescription("Updates enqueued to local observers"))

	f.Int64Counter(&observersPruned, "observers.pruned",
		metric.WithDescription("Observers dropped because their queue was full"))
}

package store

import (
	"go.opentelemetry.io/otel/metric"

	intotel "github.com/imtaco/stream-coordinator/internal/otel"
)

var (
	opErrors        metric.Int64Counter
	published       metric.Int64Counter
	received        metric.Int64Counter
	malformedEvents metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("streams.store", intotel.PrefixStore)

	f.Int64Counter(&opErrors, "op.errors",
		metric.WithDescription("Store operations that failed"))

	f.Int64Counter(&published, "updates.published",
		metric.WithDescription("Change notifications published"))

	f.Int64Counter(&received, "updates.received",
		metric.WithDescription("Change notifications received from the subscription"))

	f.Int64Counter(&malformedEvents, "updates.malformed",
		metric.WithDescription("Change notifications dropped because they could not be decoded"))
}

package reconcile

import (
	"go.opentelemetry.io/otel/metric"

	intotel "github.com/imtaco/stream-coordinator/internal/otel"
)

var (
	cycleRuns      metric.Int64Counter
	cycleAborted   metric.Int64Counter
	cycleDuration  metric.Float64Histogram
	repairActions  metric.Int64Counter
	repairFailures metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("streams.reconcile", intotel.PrefixReconcile)

	f.Int64Counter(&cycleRuns, "cycle.runs",
		metric.WithDescription("Reconciliation cycles started"))

	f.Int64Counter(&cycleAborted, "cycle.aborted",
		metric.WithDescription("Cycles aborted before any repair"))

	f.Float64Histogram(&cycleDuration, "cycle.duration",
		metric.WithDescription("Reconciliation cycle duration"),
		metric.WithUnit("s"))

	f.Int64Counter(&repairActions, "repair.actions",
		metric.WithDescription("Repairs applied, by action"))

	f.Int64Counter(&repairFailures, "repair.failures",
		metric.WithDescription("Per-stream repairs that failed"))
}

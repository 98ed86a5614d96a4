package service

import (
	"go.opentelemetry.io/otel/metric"

	intotel "github.com/imtaco/stream-coordinator/internal/otel"
)

var (
	roomsCreated   metric.Int64Counter
	roomsDeleted   metric.Int64Counter
	roomFailures   metric.Int64Counter
	tokensIssued   metric.Int64Counter
	webhooksHandle metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("streams.service", intotel.PrefixService)

	f.Int64Counter(&roomsCreated, "rooms.created",
		metric.WithDescription("Rooms created on the room service"))

	f.Int64Counter(&roomsDeleted, "rooms.deleted",
		metric.WithDescription("Rooms deleted on the room service"))

	f.Int64Counter(&roomFailures, "rooms.failures",
		metric.WithDescription("Room service calls that failed"))

	f.Int64Counter(&tokensIssued, "tokens.issued",
		metric.WithDescription("Join tokens issued"))

	f.Int64Counter(&webhooksHandle, "webhooks.handled",
		metric.WithDescription("Webhook notifications handed to the lifecycle"))
}

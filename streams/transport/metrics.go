package transport

import (
	"go.opentelemetry.io/otel/metric"

	intotel "github.com/imtaco/stream-coordinator/internal/otel"
)

var (
	sseOpen       metric.Int64UpDownCounter
	wsOpen        metric.Int64UpDownCounter
	webhookDenied metric.Int64Counter
	webhookFailed metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("streams.transport", intotel.PrefixHTTP)

	f.Int64UpDownCounter(&sseOpen, "sse.open",
		metric.WithDescription("Open server-sent event streams"))

	f.Int64UpDownCounter(&wsOpen, "ws.open",
		metric.WithDescription("Open WebSocket observers"))

	f.Int64Counter(&webhookDenied, "webhook.denied",
		metric.WithDescription("Webhook requests failing authenticity checks"))

	f.Int64Counter(&webhookFailed, "webhook.failed",
		metric.WithDescription("Webhook notifications that could not be applied"))
}

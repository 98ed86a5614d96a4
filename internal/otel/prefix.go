package otel

// Metric prefixes, one per component.
const (
	PrefixStore     = "stream_store"
	PrefixLifecycle = "stream_lifecycle"
	PrefixFanout    = "stream_fanout"
	PrefixReconcile = "stream_reconcile"
	PrefixStats     = "stream_stats"
	PrefixService   = "stream_service"
	PrefixHTTP      = "stream_http"
)

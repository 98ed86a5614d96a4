package otel

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// MetricFactory creates instruments on the global meter under a common prefix.
// Instruments created before Init delegate to the real provider once it is set.
type MetricFactory struct {
	meter  metric.Meter
	prefix string
}

func NewFactory(meterName, prefix string) *MetricFactory {
	return &MetricFactory{
		meter:  otel.Meter(meterName),
		prefix: prefix,
	}
}

func (f *MetricFactory) name(suffix string) string {
	if f.prefix == "" {
		return suffix
	}
	return f.prefix + "." + suffix
}

// create panics on failure; instrument definitions are static and a failure is a programming error.
func create[T any](f *MetricFactory, target *T, kind, name string, fn func(string) (T, error)) {
	fullName := f.name(name)
	inst, err := fn(fullName)
	if err != nil {
		panic(fmt.Sprintf("failed to create %s %s: %v", kind, fullName, err))
	}
	*target = inst
}

func (f *MetricFactory) Int64Counter(target *metric.Int64Counter, name string, options ...metric.Int64CounterOption) {
	create(f, target, "counter", name, func(n string) (metric.Int64Counter, error) {
		return f.meter.Int64Counter(n, options...)
	})
}

func (f *MetricFactory) Int64UpDownCounter(target *metric.Int64UpDownCounter, name string, options ...metric.Int64UpDownCounterOption) {
	create(f, target, "up-down counter", name, func(n string) (metric.Int64UpDownCounter, error) {
		return f.meter.Int64UpDownCounter(n, options...)
	})
}

// Int64Gauge records the latest observed value, used for recomputed aggregates.
func (f *MetricFactory) Int64Gauge(target *metric.Int64Gauge, name string, options ...metric.Int64GaugeOption) {
	create(f, target, "gauge", name, func(n string) (metric.Int64Gauge, error) {
		return f.meter.Int64Gauge(n, options...)
	})
}

func (f *MetricFactory) Float64Histogram(target *metric.Float64Histogram, name string, options ...metric.Float64HistogramOption) {
	create(f, target, "histogram", name, func(n string) (metric.Float64Histogram, error) {
		return f.meter.Float64Histogram(n, options...)
	})
}

package observability

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OTelSink bridges the MetricsSink contract onto an OpenTelemetry meter.
// Instruments are created lazily per metric name; labels become
// attributes.
type OTelSink struct {
	meter  metric.Meter
	logger *slog.Logger

	mu       sync.Mutex
	counters map[string]metric.Int64Counter
	hists    map[string]metric.Float64Histogram
}

// NewOTelSink creates a sink on the given meter. A nil meter falls back to
// the global meter provider.
func NewOTelSink(meter metric.Meter) *OTelSink {
	if meter == nil {
		meter = otel.Meter("natal.core")
	}
	return &OTelSink{
		meter:    meter,
		logger:   slog.Default().With("component", "observability"),
		counters: make(map[string]metric.Int64Counter),
		hists:    make(map[string]metric.Float64Histogram),
	}
}

// NewMeterProvider builds a metric provider carrying the core's service
// identity. The caller owns shutdown.
func NewMeterProvider(serviceName, serviceVersion, environment string, opts ...sdkmetric.Option) (*sdkmetric.MeterProvider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
			semconv.DeploymentEnvironment(environment),
			attribute.String("natal.component", "core"),
		),
	)
	if err != nil {
		return nil, err
	}
	opts = append([]sdkmetric.Option{sdkmetric.WithResource(res)}, opts...)
	return sdkmetric.NewMeterProvider(opts...), nil
}

func (s *OTelSink) IncrCounter(name string, delta int64, labels ...Label) {
	ctr, err := s.counter(name)
	if err != nil {
		s.logger.Warn("counter instrument creation failed", "metric", name, "error", err)
		return
	}
	ctr.Add(context.Background(), delta, metric.WithAttributes(toAttributes(labels)...))
}

func (s *OTelSink) ObserveDuration(name string, ms float64, labels ...Label) {
	hist, err := s.histogram(name)
	if err != nil {
		s.logger.Warn("histogram instrument creation failed", "metric", name, "error", err)
		return
	}
	hist.Record(context.Background(), ms, metric.WithAttributes(toAttributes(labels)...))
}

func (s *OTelSink) counter(name string) (metric.Int64Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctr, ok := s.counters[name]; ok {
		return ctr, nil
	}
	ctr, err := s.meter.Int64Counter(name)
	if err != nil {
		return nil, err
	}
	s.counters[name] = ctr
	return ctr, nil
}

func (s *OTelSink) histogram(name string) (metric.Float64Histogram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hist, ok := s.hists[name]; ok {
		return hist, nil
	}
	hist, err := s.meter.Float64Histogram(name, metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	s.hists[name] = hist
	return hist, nil
}

func toAttributes(labels []Label) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for _, l := range labels {
		attrs = append(attrs, attribute.String(l.Key, l.Value))
	}
	return attrs
}

package otel

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/pez/dispenser"
)

// DispenseObserver records dispenser signals into OpenTelemetry metrics and
// spans.
type DispenseObserver struct {
	metrics *MetricsHandler
	tracing *TracingHandler
}

// NewDispenseObserver creates an observer bound to the provided meter/tracer.
// A nil tracer disables spans.
func NewDispenseObserver(meter metric.Meter, tracer trace.Tracer) (*DispenseObserver, error) {
	metrics, err := NewMetricsHandler(meter)
	if err != nil {
		return nil, err
	}
	o := &DispenseObserver{metrics: metrics}
	if tracer != nil {
		o.tracing = NewTracingHandler(tracer)
	}
	return o, nil
}

// StartDispense implements dispenser.Observer.
func (o *DispenseObserver) StartDispense(ctx context.Context, sequence string, count int) (context.Context, func(dispenser.Observation)) {
	if o == nil {
		return ctx, func(dispenser.Observation) {}
	}

	var span trace.Span
	if o.tracing != nil {
		ctx, span = o.tracing.Start(ctx, sequence, count)
	}
	return ctx, func(obs dispenser.Observation) {
		o.metrics.Record(ctx, obs)
		if span != nil {
			o.tracing.End(span, obs.Err)
		}
	}
}

var _ dispenser.Observer = (*DispenseObserver)(nil)

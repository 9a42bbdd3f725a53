package otel

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/petal-labs/pez/dispenser"
	"github.com/petal-labs/pez/store"
)

// MetricsHandler translates dispense observations into OpenTelemetry metrics.
// It records request and failure counters plus batch size and duration
// histograms, all keyed by sequence.
type MetricsHandler struct {
	requests  metric.Int64Counter
	values    metric.Int64Counter
	failures  metric.Int64Counter
	batchSize metric.Int64Histogram
	duration  metric.Float64Histogram
}

// NewMetricsHandler creates the dispense instruments on meter.
func NewMetricsHandler(meter metric.Meter) (*MetricsHandler, error) {
	requests, err := meter.Int64Counter("pez.dispense.requests",
		metric.WithDescription("Number of dispense calls"),
	)
	if err != nil {
		return nil, err
	}

	values, err := meter.Int64Counter("pez.dispense.values",
		metric.WithDescription("Number of values issued"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter("pez.dispense.failures",
		metric.WithDescription("Number of failed dispense calls"),
	)
	if err != nil {
		return nil, err
	}

	batchSize, err := meter.Int64Histogram("pez.dispense.batch_size",
		metric.WithDescription("Values requested per dispense call"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("pez.dispense.duration",
		metric.WithDescription("Duration of dispense calls in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		requests:  requests,
		values:    values,
		failures:  failures,
		batchSize: batchSize,
		duration:  duration,
	}, nil
}

// Record adds one observation.
func (h *MetricsHandler) Record(ctx context.Context, o dispenser.Observation) {
	seq := metric.WithAttributes(attribute.String("sequence", o.Sequence))
	h.requests.Add(ctx, 1, seq)
	h.batchSize.Record(ctx, int64(o.Count), seq)
	h.duration.Record(ctx, o.Duration.Seconds(), seq)

	if o.Err != nil {
		h.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("sequence", o.Sequence),
			attribute.String("reason", failureReason(o.Err)),
		))
		return
	}
	h.values.Add(ctx, int64(o.Count), seq)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, store.ErrUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}

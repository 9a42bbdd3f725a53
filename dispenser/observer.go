package dispenser

import (
	"context"
	"time"
)

// Observation captures the outcome of one dispense call.
type Observation struct {
	Sequence string
	Count    int
	Duration time.Duration
	Err      error
}

// Observer receives dispenser observability events. StartDispense may derive
// a context (for example to carry a span); the returned func is called
// exactly once with the outcome.
type Observer interface {
	StartDispense(ctx context.Context, sequence string, count int) (context.Context, func(Observation))
}

type noopObserver struct{}

func (noopObserver) StartDispense(ctx context.Context, _ string, _ int) (context.Context, func(Observation)) {
	return ctx, func(Observation) {}
}

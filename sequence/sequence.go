// Package sequence defines bounded, optionally cycling counters and advances
// them through a store transaction.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/petal-labs/pez/store"
)

// MaxValue is the upper bound of both built-in sequences (2^63-1).
const MaxValue uint64 = math.MaxInt64

// Names of the durable counter records backing the built-in sequences.
const (
	ForwardName  = "forward_seq"
	BackwardName = "backward_seq"
)

// ErrExhausted is returned when a non-cycling sequence steps past its bound.
var ErrExhausted = errors.New("sequence exhausted")

// Definition describes one counter: where it starts, how far each advance
// moves it, its inclusive bounds and whether it wraps at them.
type Definition struct {
	Name  string
	Start uint64
	Step  int64
	Min   uint64
	Max   uint64
	Cycle bool
}

// Forward returns the ascending sequence: 1, 2, ..., 2^63-1, 1, ...
func Forward() Definition {
	return Definition{
		Name:  ForwardName,
		Start: 1,
		Step:  1,
		Min:   1,
		Max:   MaxValue,
		Cycle: true,
	}
}

// Backward returns the descending sequence: 2^63-1, ..., 1, 2^63-1, ...
func Backward() Definition {
	return Definition{
		Name:  BackwardName,
		Start: MaxValue,
		Step:  -1,
		Min:   1,
		Max:   MaxValue,
		Cycle: true,
	}
}

// Builtins returns the definitions served by pez.
func Builtins() []Definition {
	return []Definition{Forward(), Backward()}
}

// Lookup resolves a route alias ("forward", "reverse", "backward") or a
// record name to a built-in definition.
func Lookup(name string) (Definition, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "forward", ForwardName:
		return Forward(), true
	case "reverse", "backward", BackwardName:
		return Backward(), true
	}
	return Definition{}, false
}

// Seed returns the provisioning record for d.
func (d Definition) Seed() store.Seed {
	return store.Seed{Name: d.Name, Start: d.Start}
}

// Validate reports definitions that could never produce a value.
func (d Definition) Validate() error {
	switch {
	case strings.TrimSpace(d.Name) == "":
		return errors.New("sequence: name is required")
	case d.Step == 0:
		return fmt.Errorf("sequence %q: step must be non-zero", d.Name)
	case d.Min > d.Max:
		return fmt.Errorf("sequence %q: min %d exceeds max %d", d.Name, d.Min, d.Max)
	case d.Start < d.Min || d.Start > d.Max:
		return fmt.Errorf("sequence %q: start %d outside [%d, %d]", d.Name, d.Start, d.Min, d.Max)
	}
	return nil
}

// Next computes the state following current. A counter that has not issued
// its stored value yet issues it unchanged; otherwise the value moves by Step
// and wraps to the opposite bound when it would leave [Min, Max].
func (d Definition) Next(current store.Counter) (store.Counter, error) {
	if !current.Called {
		if current.Value < d.Min || current.Value > d.Max {
			return store.Counter{}, fmt.Errorf("sequence %q: stored value %d outside [%d, %d]", d.Name, current.Value, d.Min, d.Max)
		}
		return store.Counter{Value: current.Value, Called: true}, nil
	}

	v := current.Value
	if d.Step > 0 {
		step := uint64(d.Step)
		if v > d.Max || d.Max-v < step {
			return d.wrap(d.Min)
		}
		return store.Counter{Value: v + step, Called: true}, nil
	}

	step := uint64(-d.Step) // #nosec G115 -- Step is negative here
	if v < d.Min || v-d.Min < step {
		return d.wrap(d.Max)
	}
	return store.Counter{Value: v - step, Called: true}, nil
}

func (d Definition) wrap(to uint64) (store.Counter, error) {
	if !d.Cycle {
		return store.Counter{}, fmt.Errorf("%w: %q reached its bound", ErrExhausted, d.Name)
	}
	return store.Counter{Value: to, Called: true}, nil
}

// Engine advances one sequence. It holds no counter state; every advance
// reads and writes the store.
type Engine struct {
	def Definition
}

// NewEngine validates d and returns an engine for it.
func NewEngine(d Definition) (*Engine, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &Engine{def: d}, nil
}

// Definition returns the engine's sequence definition.
func (e *Engine) Definition() Definition {
	return e.def
}

// Name returns the durable record name.
func (e *Engine) Name() string {
	return e.def.Name
}

// Advance moves the sequence one step inside tx and returns the issued value.
func (e *Engine) Advance(ctx context.Context, tx store.Tx) (uint64, error) {
	return tx.Advance(ctx, e.def.Name, e.def.Next)
}

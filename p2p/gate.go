package p2p

import (
	"github.com/pkg/errors"

	"github.com/gomlx/collectives/comms"
)

// gate decides whether one invocation of an engine touches the wire. It is fixed at
// construction from Config.Validation, so an engine never carries half-configured
// conditional state: either it always knows the answer (alwaysGate) or it owns the
// counters and bounds that compute it (conditionalGate).
type gate interface {
	initialize(exec comms.Executor) error

	// shouldRun reports whether the invocation on context exec communicates, for the
	// resolved directed edge key.
	shouldRun(key SourceTargetPair, exec comms.Executor) (bool, error)
}

// alwaysGate answers Valid (run whenever a peer exists) or Invalid (never run).
type alwaysGate struct {
	run bool
}

func (g alwaysGate) initialize(comms.Executor) error { return nil }

func (g alwaysGate) shouldRun(SourceTargetPair, comms.Executor) (bool, error) {
	return g.run, nil
}

// conditionalGate runs the invocations whose per-context ordinal falls inside the
// bounds of the resolved edge. The ordinal advances on every invocation, run or not.
type conditionalGate struct {
	counters *ExecutionCounters
	bounds   Bounds
}

func (g *conditionalGate) initialize(exec comms.Executor) error {
	return g.counters.Initialize(exec)
}

func (g *conditionalGate) shouldRun(key SourceTargetPair, exec comms.Executor) (bool, error) {
	bound, found := g.bounds[key]
	if !found {
		return false, errors.Wrapf(ErrConfig, "no conditional bounds for pair %s", key)
	}
	counter, err := g.counters.Counter(exec)
	if err != nil {
		return false, err
	}
	ordinal := *counter
	*counter++
	return bound.Lo <= ordinal && ordinal <= bound.Hi, nil
}

func newGate(config *Config) gate {
	switch config.Validation {
	case Invalid:
		return alwaysGate{run: false}
	case Conditional:
		return &conditionalGate{counters: NewExecutionCounters(), bounds: config.Bounds}
	default:
		return alwaysGate{run: true}
	}
}

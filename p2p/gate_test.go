package p2p

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/collectives/devices"
	"github.com/gomlx/collectives/types/shapes"
)

type fakeExecutor struct {
	ordinal int
}

func (e *fakeExecutor) DeviceOrdinal() int { return e.ordinal }

func conditionalConfig(t *testing.T, bounds [][2]int64) *Config {
	config, err := NewConfig(devices.CrossReplica, shapes.Make(dtypes.Float32, 4), 2,
		[][2]int64{{0, 1}}, WithConditionalBounds(bounds))
	require.NoError(t, err)
	return config
}

func TestConditionalGate(t *testing.T) {
	g := newGate(conditionalConfig(t, [][2]int64{{1, 2}})).(*conditionalGate)
	exec := &fakeExecutor{ordinal: 0}
	require.NoError(t, g.initialize(exec))

	key := SourceTargetPair{Source: 0, Target: 1}
	var decisions []bool
	for i := 0; i < 4; i++ {
		run, err := g.shouldRun(key, exec)
		require.NoError(t, err)
		decisions = append(decisions, run)
	}
	assert.Equal(t, []bool{false, true, true, false}, decisions)

	// The ordinal advanced on every invocation, gated or not.
	counter, err := g.counters.Counter(exec)
	require.NoError(t, err)
	assert.Equal(t, int64(4), *counter)
}

func TestConditionalGateIndependentContexts(t *testing.T) {
	g := newGate(conditionalConfig(t, [][2]int64{{0, 0}})).(*conditionalGate)
	exec0 := &fakeExecutor{ordinal: 0}
	exec1 := &fakeExecutor{ordinal: 1}
	require.NoError(t, g.initialize(exec0))
	require.NoError(t, g.initialize(exec1))

	key := SourceTargetPair{Source: 0, Target: 1}
	run, err := g.shouldRun(key, exec0)
	require.NoError(t, err)
	assert.True(t, run)
	run, err = g.shouldRun(key, exec0)
	require.NoError(t, err)
	assert.False(t, run)

	// exec1 has its own ordinal, still at 0.
	run, err = g.shouldRun(key, exec1)
	require.NoError(t, err)
	assert.True(t, run)
}

func TestConditionalGateErrors(t *testing.T) {
	g := newGate(conditionalConfig(t, [][2]int64{{0, 1}})).(*conditionalGate)
	exec := &fakeExecutor{ordinal: 0}

	// Context never initialized.
	_, err := g.shouldRun(SourceTargetPair{Source: 0, Target: 1}, exec)
	require.ErrorIs(t, err, ErrNotInitialized)

	// Unknown pair: an error, and the ordinal must not advance.
	require.NoError(t, g.initialize(exec))
	_, err = g.shouldRun(SourceTargetPair{Source: 7, Target: 8}, exec)
	require.ErrorIs(t, err, ErrConfig)
	counter, err := g.counters.Counter(exec)
	require.NoError(t, err)
	assert.Equal(t, int64(0), *counter)
}

func TestGateSelection(t *testing.T) {
	operand := shapes.Make(dtypes.Float32, 4)
	pairs := [][2]int64{{0, 1}}

	config, err := NewConfig(devices.CrossReplica, operand, 2, pairs)
	require.NoError(t, err)
	run, err := newGate(config).shouldRun(SourceTargetPair{Source: 0, Target: 1}, nil)
	require.NoError(t, err)
	assert.True(t, run, "Valid runs whenever a peer exists")

	config, err = NewConfig(devices.CrossReplica, operand, 2, pairs, WithValidation(Invalid))
	require.NoError(t, err)
	run, err = newGate(config).shouldRun(SourceTargetPair{Source: 0, Target: 1}, nil)
	require.NoError(t, err)
	assert.False(t, run, "Invalid never runs")
}

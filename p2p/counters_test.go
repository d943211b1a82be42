package p2p_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/collectives/comms/inprocess"
	"github.com/gomlx/collectives/p2p"
)

func TestExecutionCounters(t *testing.T) {
	clique, err := inprocess.New("").NewClique(2)
	require.NoError(t, err)
	defer clique.Finalize()
	world := clique.(*inprocess.Clique)
	exec0 := world.Executor(0)
	exec1 := world.Executor(1)

	counters := p2p.NewExecutionCounters()

	// Before Initialize the counter doesn't exist.
	_, err = counters.Counter(exec0)
	require.ErrorIs(t, err, p2p.ErrNotInitialized)

	require.NoError(t, counters.Initialize(exec0))
	counter, err := counters.Counter(exec0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), *counter)

	// The same address on every lookup, so increments accumulate.
	*counter++
	again, err := counters.Counter(exec0)
	require.NoError(t, err)
	assert.Same(t, counter, again)
	assert.Equal(t, int64(1), *again)

	// Initialize is idempotent, it must not reset the counter.
	require.NoError(t, counters.Initialize(exec0))
	again, err = counters.Counter(exec0)
	require.NoError(t, err)
	assert.Same(t, counter, again)
	assert.Equal(t, int64(1), *again)

	// Each device context has its own counter.
	require.NoError(t, counters.Initialize(exec1))
	other, err := counters.Counter(exec1)
	require.NoError(t, err)
	assert.NotSame(t, counter, other)
	assert.Equal(t, int64(0), *other)
}

package p2p_test

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/collectives/comms"
	"github.com/gomlx/collectives/p2p"
)

func TestSendThunkSends(t *testing.T) {
	r := newRig(t, 2)
	config := validConfig(t, 2, [][2]int64{{0, 1}})
	send := p2p.NewSendThunk(config, []p2p.Buffer{singleBuffer})
	r.initialize(t, send)

	src := inprocessFloats(4, 3, 2, 1)
	dst := inprocessFloats(0, 0, 0, 0)
	require.NoError(t, send.ExecuteOnStream(r.params(0, src, dst), r.streams[0], r.comms[0]))

	// Catch the transfer with a raw receive on the peer.
	got := inprocessFloats(0, 0, 0, 0)
	require.NoError(t, r.comms[1].Recv(got, dtypes.Float32, 4, 0, r.streams[1]))
	r.drain(t)
	assert.Equal(t, []float32{4, 3, 2, 1}, got.Float32s())
	assert.Equal(t, []float32{4, 3, 2, 1}, src.Float32s(), "sending leaves the source intact")
}

func TestSendThunkNoTarget(t *testing.T) {
	r := newRig(t, 3)
	config := validConfig(t, 3, [][2]int64{{0, 1}})
	send := p2p.NewSendThunk(config, []p2p.Buffer{singleBuffer})
	r.initialize(t, send)

	src := inprocessFloats(5, 5, 5, 5)
	dst := inprocessFloats(7, 7, 7, 7)
	// Device 1 participates but only as a receiver; device 2 is absent entirely.
	// Neither sends, and neither zero-fills anything: that is receive-side behavior.
	require.NoError(t, send.ExecuteOnStream(r.params(1, src, dst), r.streams[1], r.comms[1]))
	require.NoError(t, send.ExecuteOnStream(r.params(2, src, dst), r.streams[2], r.comms[2]))
	r.drain(t)
	assert.Equal(t, []float32{7, 7, 7, 7}, dst.Float32s())
}

func TestSendThunkConditionalBounds(t *testing.T) {
	// Bounds [1,1] over 3 invocations: only the middle one reaches the wire; the lone
	// deposit the peer finds proves the other two stayed silent.
	r := newRig(t, 2)
	config := validConfig(t, 2, [][2]int64{{0, 1}},
		p2p.WithConditionalBounds([][2]int64{{1, 1}}))
	send := p2p.NewSendThunk(config, []p2p.Buffer{singleBuffer})
	r.initialize(t, send)

	src := inprocessFloats(0, 0, 0, 0)
	dst := inprocessFloats(0, 0, 0, 0)
	for invocation := 0; invocation < 3; invocation++ {
		fillFloat32(src, float32(invocation))
		require.NoError(t, send.ExecuteOnStream(r.params(0, src, dst), r.streams[0], r.comms[0]))
		r.drain(t)
	}

	got := inprocessFloats(-1, -1, -1, -1)
	require.NoError(t, r.comms[1].Recv(got, dtypes.Float32, 4, 0, r.streams[1]))
	require.NoError(t, r.streams[1].BlockHostUntilDone())
	assert.Equal(t, []float32{1, 1, 1, 1}, got.Float32s())
}

func TestSendThunkPeerOutsideClique(t *testing.T) {
	// The topology names a peer the clique doesn't have: the communicator's own error
	// comes back through ExecuteOnStream, unclassified.
	r := newRig(t, 2)
	config := validConfig(t, 3, [][2]int64{{0, 2}})
	send := p2p.NewSendThunk(config, []p2p.Buffer{singleBuffer})
	r.initialize(t, send)

	src := inprocessFloats(1, 1, 1, 1)
	dst := inprocessFloats(0, 0, 0, 0)
	err := send.ExecuteOnStream(r.params(0, src, dst), r.streams[0], r.comms[0])
	require.ErrorIs(t, err, comms.ErrBadRank)
}

func TestSendThunkNotInitialized(t *testing.T) {
	r := newRig(t, 2)
	config := validConfig(t, 2, [][2]int64{{0, 1}})
	send := p2p.NewSendThunk(config, []p2p.Buffer{singleBuffer})

	src := inprocessFloats(1, 1, 1, 1)
	dst := inprocessFloats(0, 0, 0, 0)
	err := send.ExecuteOnStream(r.params(0, src, dst), r.streams[0], r.comms[0])
	require.ErrorIs(t, err, p2p.ErrNotInitialized)
}

package p2p_test

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/collectives/comms"
	"github.com/gomlx/collectives/comms/inprocess"
	"github.com/gomlx/collectives/devices"
	"github.com/gomlx/collectives/p2p"
	"github.com/gomlx/collectives/types/shapes"
)

// singleBuffer is the usual operand layout of the engine tests: slot 0 is the source
// region, slot 1 the destination, 4 elements flow.
var singleBuffer = p2p.Buffer{SourceSlice: 0, DestinationSlice: 1, ElementCount: 4}

// rig wires an in-process clique as the engine's collaborators: one stream and one
// communicator per device, plus a replica-major device assignment over the same ranks,
// so logical id, rank and global device id all coincide.
type rig struct {
	clique  *inprocess.Clique
	streams []*inprocess.Stream
	comms   []comms.Comm
	assn    *devices.Assignment
}

func newRig(t *testing.T, numDevices int) *rig {
	clique, err := inprocess.New("").NewClique(numDevices)
	require.NoError(t, err)
	world := clique.(*inprocess.Clique)
	t.Cleanup(world.Finalize)

	r := &rig{clique: world}
	for rank := 0; rank < numDevices; rank++ {
		stream := world.Executor(rank).NewStream()
		t.Cleanup(stream.Close)
		r.streams = append(r.streams, stream)
		comm, err := world.Comm(rank)
		require.NoError(t, err)
		r.comms = append(r.comms, comm)
	}
	r.assn, err = devices.NewDefaultAssignment(numDevices, 1)
	require.NoError(t, err)
	return r
}

// initialize runs Initialize for the given thunks on every device of the rig.
func (r *rig) initialize(t *testing.T, thunks ...p2p.Thunk) {
	for _, thunk := range thunks {
		for rank := range r.streams {
			require.NoError(t, thunk.Initialize(
				&p2p.InitializeParams{Executor: r.clique.Executor(rank)}))
		}
	}
}

// params builds one invocation's ExecuteParams for the given device, with table as the
// buffer table.
func (r *rig) params(device int, table ...comms.Memory) *p2p.ExecuteParams {
	return &p2p.ExecuteParams{
		Buffers:          table,
		GlobalDeviceID:   devices.GlobalDeviceID(device),
		DeviceAssignment: r.assn,
	}
}

// drain waits for every stream of the rig, failing the test on the first stream error.
func (r *rig) drain(t *testing.T) {
	for rank, stream := range r.streams {
		require.NoError(t, stream.BlockHostUntilDone(), "stream of device %d", rank)
	}
}

// validConfig builds a Valid cross-replica config over float32[4] operands.
func validConfig(t *testing.T, numDevices int64, pairs [][2]int64, opts ...p2p.ConfigOption) *p2p.Config {
	config, err := p2p.NewConfig(devices.CrossReplica, shapes.Make(dtypes.Float32, 4),
		numDevices, pairs, opts...)
	require.NoError(t, err)
	return config
}

func inprocessFloats(values ...float32) *inprocess.Memory {
	return inprocess.FromFlat(values)
}

func fillFloat32(mem *inprocess.Memory, value float32) {
	flat := mem.Float32s()
	for i := range flat {
		flat[i] = value
	}
}

package devices_test

import (
	"testing"

	"github.com/gomlx/collectives/devices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAssignment(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		a, err := devices.NewAssignment([][]devices.GlobalDeviceID{
			{0, 1},
			{2, 3},
			{4, 5},
		})
		require.NoError(t, err)
		assert.Equal(t, 3, a.ReplicaCount())
		assert.Equal(t, 2, a.PartitionCount())
		assert.Equal(t, 6, a.NumDevices())

		device, err := a.Device(2, 1)
		require.NoError(t, err)
		assert.Equal(t, devices.GlobalDeviceID(5), device)

		logical, err := a.LogicalIDForDevice(3)
		require.NoError(t, err)
		assert.Equal(t, devices.LogicalID{ReplicaID: 1, PartitionID: 1}, logical)
		assert.Equal(t, "(r1, p1)", logical.String())
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name    string
			grid    [][]devices.GlobalDeviceID
			wantErr string
		}{
			{
				name:    "empty",
				grid:    nil,
				wantErr: "cannot be empty",
			},
			{
				name:    "empty row",
				grid:    [][]devices.GlobalDeviceID{{}},
				wantErr: "cannot be empty",
			},
			{
				name:    "ragged",
				grid:    [][]devices.GlobalDeviceID{{0, 1}, {2}},
				wantErr: "not rectangular",
			},
			{
				name:    "duplicate device",
				grid:    [][]devices.GlobalDeviceID{{0, 1}, {1, 2}},
				wantErr: "more than once",
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := devices.NewAssignment(tt.grid)
				require.ErrorContains(t, err, tt.wantErr)
			})
		}
	})
}

func TestNewDefaultAssignment(t *testing.T) {
	a, err := devices.NewDefaultAssignment(2, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, a.ReplicaCount())
	assert.Equal(t, 3, a.PartitionCount())
	for r := 0; r < 2; r++ {
		for p := 0; p < 3; p++ {
			device, err := a.Device(r, p)
			require.NoError(t, err)
			assert.Equal(t, devices.GlobalDeviceID(r*3+p), device)
			logical, err := a.LogicalIDForDevice(device)
			require.NoError(t, err)
			assert.Equal(t, int64(r), logical.ReplicaID)
			assert.Equal(t, int64(p), logical.PartitionID)
		}
	}

	_, err = devices.NewDefaultAssignment(0, 3)
	require.ErrorContains(t, err, "positive counts")
}

func TestLogicalIDForDevice_Unknown(t *testing.T) {
	a, err := devices.NewDefaultAssignment(2, 2)
	require.NoError(t, err)
	_, err = a.LogicalIDForDevice(99)
	require.ErrorContains(t, err, "not part of the device assignment")
}

func TestDevice_OutOfRange(t *testing.T) {
	a, err := devices.NewDefaultAssignment(2, 2)
	require.NoError(t, err)
	_, err = a.Device(2, 0)
	require.ErrorContains(t, err, "no coordinate")
	_, err = a.Device(0, -1)
	require.ErrorContains(t, err, "no coordinate")
}

func TestGroupMode(t *testing.T) {
	logical := devices.LogicalID{ReplicaID: 3, PartitionID: 7}
	assert.Equal(t, int64(3), logical.ID(devices.CrossReplica))
	assert.Equal(t, int64(7), logical.ID(devices.CrossPartition))
	assert.Equal(t, "cross_replica", devices.CrossReplica.String())
	assert.Equal(t, "cross_partition", devices.CrossPartition.String())

	assert.Equal(t, devices.CrossReplica, devices.GroupModeForChannel(0))
	assert.Equal(t, devices.CrossPartition, devices.GroupModeForChannel(1))
	assert.Equal(t, devices.CrossPartition, devices.GroupModeForChannel(42))
}

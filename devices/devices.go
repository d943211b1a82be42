// Package devices models the device topology of one compiled program run: which global
// device executes which (replica, partition) coordinate, and how a device finds its own
// logical identity inside a collective operation.
//
// The compiler emits communication instructions in terms of logical device ids --
// replica ids or partition ids, depending on the operation's GroupMode -- while the
// runtime addresses physical devices by GlobalDeviceID. The Assignment built by the
// loader is the bridge between the two, and is immutable for the lifetime of the
// loaded program.
package devices

import (
	"fmt"

	"github.com/gomlx/collectives/types"
	"github.com/pkg/errors"
)

// GlobalDeviceID uniquely identifies a device in a multi-host execution.
// It is assigned by the runtime that launched the program, not by the compiler.
type GlobalDeviceID int64

// LogicalID is the compiler-visible identity of a device within one program run:
// the coordinates of the device in the (replica, partition) grid of the Assignment.
type LogicalID struct {
	ReplicaID   int64
	PartitionID int64
}

// String implements fmt.Stringer, in the short form used in log messages.
func (l LogicalID) String() string {
	return fmt.Sprintf("(r%d, p%d)", l.ReplicaID, l.PartitionID)
}

// GroupMode determines which half of a LogicalID identifies a device in a collective
// operation: communication happens either across replicas (within the same partition)
// or across partitions (within the same replica). Exactly one interpretation is active
// per instruction instance.
type GroupMode int

const (
	// CrossReplica: participants are identified by their replica id.
	CrossReplica GroupMode = iota

	// CrossPartition: participants are identified by their partition id.
	CrossPartition
)

// String implements fmt.Stringer.
func (m GroupMode) String() string {
	switch m {
	case CrossReplica:
		return "cross_replica"
	case CrossPartition:
		return "cross_partition"
	}
	return fmt.Sprintf("GroupMode(%d)", int(m))
}

// GroupModeForChannel returns the group mode of a send or recv instruction given its
// channel id: instructions assigned a positive channel id communicate across
// partitions, the others across replicas.
func GroupModeForChannel(channelID int64) GroupMode {
	if channelID > 0 {
		return CrossPartition
	}
	return CrossReplica
}

// ID returns the logical device id active under the given group mode.
func (l LogicalID) ID(mode GroupMode) int64 {
	if mode == CrossPartition {
		return l.PartitionID
	}
	return l.ReplicaID
}

// Assignment maps the (replica, partition) grid of a compiled program to the global
// devices that execute it. It is created once by the loader and never mutated.
type Assignment struct {
	// grid is replica-major: grid[replica][partition].
	grid [][]GlobalDeviceID

	// byDevice is the inverse mapping, precomputed at construction.
	byDevice map[GlobalDeviceID]LogicalID
}

// NewAssignment creates an Assignment from a replica-major grid: grid[r][p] is the
// global device running replica r of partition p.
//
// The grid must be non-empty and rectangular, and a global device can appear at most
// once -- a device cannot run two coordinates of the same program.
func NewAssignment(grid [][]GlobalDeviceID) (*Assignment, error) {
	if len(grid) == 0 || len(grid[0]) == 0 {
		return nil, errors.New("device assignment grid cannot be empty")
	}
	numPartitions := len(grid[0])
	seen := types.MakeSet[GlobalDeviceID](len(grid) * numPartitions)
	byDevice := make(map[GlobalDeviceID]LogicalID, len(grid)*numPartitions)
	for r, row := range grid {
		if len(row) != numPartitions {
			return nil, errors.Errorf("device assignment grid is not rectangular: replica 0 has %d partitions, replica %d has %d",
				numPartitions, r, len(row))
		}
		for p, device := range row {
			if seen.Has(device) {
				return nil, errors.Errorf("global device %d appears more than once in the device assignment", device)
			}
			seen.Insert(device)
			byDevice[device] = LogicalID{ReplicaID: int64(r), PartitionID: int64(p)}
		}
	}
	cloned := make([][]GlobalDeviceID, len(grid))
	for r, row := range grid {
		cloned[r] = append([]GlobalDeviceID{}, row...)
	}
	return &Assignment{grid: cloned, byDevice: byDevice}, nil
}

// NewDefaultAssignment creates the trivial Assignment that fills the grid with
// sequential global device ids, replica-major: replica r of partition p runs on global
// device r*partitionCount+p.
func NewDefaultAssignment(replicaCount, partitionCount int) (*Assignment, error) {
	if replicaCount <= 0 || partitionCount <= 0 {
		return nil, errors.Errorf("device assignment requires positive counts, got %d replicas x %d partitions",
			replicaCount, partitionCount)
	}
	grid := make([][]GlobalDeviceID, replicaCount)
	next := GlobalDeviceID(0)
	for r := range grid {
		grid[r] = make([]GlobalDeviceID, partitionCount)
		for p := range grid[r] {
			grid[r][p] = next
			next++
		}
	}
	return NewAssignment(grid)
}

// ReplicaCount returns the number of replicas in the assignment.
func (a *Assignment) ReplicaCount() int { return len(a.grid) }

// PartitionCount returns the number of partitions in the assignment.
func (a *Assignment) PartitionCount() int { return len(a.grid[0]) }

// NumDevices returns the total number of devices participating in the program.
func (a *Assignment) NumDevices() int { return a.ReplicaCount() * a.PartitionCount() }

// Device returns the global device assigned to the given (replica, partition)
// coordinate.
func (a *Assignment) Device(replica, partition int) (GlobalDeviceID, error) {
	if replica < 0 || replica >= a.ReplicaCount() || partition < 0 || partition >= a.PartitionCount() {
		return -1, errors.Errorf("device assignment has no coordinate (r%d, p%d): assignment is %d replicas x %d partitions",
			replica, partition, a.ReplicaCount(), a.PartitionCount())
	}
	return a.grid[replica][partition], nil
}

// LogicalIDForDevice returns the logical identity of the given global device in this
// program run, or an error if the device does not participate in it.
func (a *Assignment) LogicalIDForDevice(device GlobalDeviceID) (LogicalID, error) {
	logical, found := a.byDevice[device]
	if !found {
		return LogicalID{}, errors.Errorf("global device %d is not part of the device assignment (%d replicas x %d partitions)",
			device, a.ReplicaCount(), a.PartitionCount())
	}
	return logical, nil
}

// String implements fmt.Stringer.
func (a *Assignment) String() string {
	return fmt.Sprintf("Assignment(%d replicas x %d partitions)", a.ReplicaCount(), a.PartitionCount())
}

// Package comms defines the interface the collectives runtime needs from a
// communication backend: device memory handles, ordered execution streams and the
// point-to-point communicator that moves buffers between peers.
//
// The engine in package p2p is written purely against these interfaces. A pure-Go,
// in-process implementation lives in comms/inprocess; a real deployment plugs in
// whatever runtime drives its interconnect (NCCL, UCX, ...), constructed and owned
// by the executor, not by this package.
//
// All operations that touch device data -- Send, Recv, MemZero -- are asynchronous
// with respect to the host: they enqueue work on the given stream and return. The
// error they return reports enqueue-time failures only (bad peer, wrong sizes, broken
// stream); failures of the enqueued work itself surface through the stream, at
// Stream.BlockHostUntilDone. Ordering between enqueued operations is established
// purely by the stream they were enqueued on.
package comms

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

var (
	// ErrBadRank indicates a peer rank outside [0, NumRanks) was given to a
	// communicator call.
	ErrBadRank = errors.New("peer rank outside the communicator's range")

	// ErrFinalized indicates the clique was finalized while (or before) the operation
	// ran. Operations pending at finalization fail with it instead of hanging forever.
	ErrFinalized = errors.New("communicator clique already finalized")
)

// Memory is an opaque handle to a contiguous region of device memory with a known
// byte size. The region is allocated and assigned by the executor's buffer-assignment
// pass; implementations attach whatever addressing they need to their own concrete
// type -- see for example inprocess.Memory.
type Memory interface {
	// ByteSize returns the size of the region in bytes.
	ByteSize() uintptr
}

// Executor represents one device execution context: the scope within which streams
// are ordered and per-context runtime state (e.g., execution counters) lives.
//
// Interface values are compared by identity when used as registry keys, so an
// implementation must hand out the same Executor value for the same device context
// for the lifetime of that context.
type Executor interface {
	// DeviceOrdinal returns the local ordinal of the device driven by this context.
	DeviceOrdinal() int
}

// Stream is an ordered, asynchronous work queue on one device.
type Stream interface {
	// Executor returns the device execution context that owns this stream.
	Executor() Executor

	// MemZero enqueues the zeroing of the first size bytes of mem.
	MemZero(mem Memory, size uintptr) error

	// BlockHostUntilDone blocks the host until all work enqueued so far has finished,
	// and returns the first error any of it produced. A stream that reported an error
	// stays broken: subsequent enqueues fail with the same error.
	BlockHostUntilDone() error
}

// Comm is a point-to-point communicator bound to one rank of a clique. Peer ranks are
// the logical device ids the compiler used when it laid out the communication pattern:
// for send/recv instructions every participant of the clique is a rank, so logical id
// and rank coincide.
type Comm interface {
	// NumRanks returns the number of ranks in the clique this communicator belongs to.
	NumRanks() int

	// Send enqueues on stream the transfer of count elements of dtype from buf to peer.
	Send(buf Memory, dtype dtypes.DType, count int64, peer int64, stream Stream) error

	// Recv enqueues on stream the reception of count elements of dtype from peer into buf.
	Recv(buf Memory, dtype dtypes.DType, count int64, peer int64, stream Stream) error
}

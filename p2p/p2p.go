// Package p2p implements the point-to-point collective engine of a compiled dataflow
// program: the send and receive instructions that move one device buffer between peer
// devices, stream-ordered and asynchronous.
//
// A compiled instruction becomes a RecvThunk or a SendThunk, configured once (Config)
// with the communication topology (SourceTargetMap), the operand shape and the replay
// validation policy, then initialized per device context (Initialize) and executed once
// per program invocation (ExecuteOnStream). Device work -- the transfer itself, or the
// zero-fill of an affirmatively sourceless receiver -- is enqueued on the invocation's
// comms.Stream and not waited for: errors returned by ExecuteOnStream are enqueue-time
// failures only, later device-side failures surface through the stream.
//
// The replay gate is the subtle part. Executors replay a compiled loop body many times,
// and for pipelined topologies a device must communicate only on a sub-range of those
// replays. ExecutionCounters counts invocations per device context; the configured
// Bounds decide, per resolved (source,target) pair, which invocation ordinals
// communicate. See Config and ValidationKind.
package p2p

import "github.com/pkg/errors"

var (
	// ErrConfig reports an invalid engine configuration: malformed compiled attributes,
	// out-of-range topology ids or missing conditional bounds.
	ErrConfig = errors.New("invalid point-to-point configuration")

	// ErrOperandShape reports an operand that doesn't match the configured shape: wrong
	// operand count, bad buffer table index or a region too small for the element count.
	ErrOperandShape = errors.New("operand does not match the configured shape")

	// ErrNotInitialized reports ExecuteOnStream on a device context for which
	// Initialize never ran or never succeeded.
	ErrNotInitialized = errors.New("not initialized for this device context")
)

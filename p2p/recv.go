package p2p

import (
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/collectives/comms"
)

// RecvThunk is the receiving half of a point-to-point transfer: each invocation
// receives the operand from the source the topology names for the calling device, or
// zero-fills the destination when the device affirmatively has no source.
type RecvThunk struct {
	p2pThunk
	buffers []Buffer
}

// Compile-time check that RecvThunk implements Thunk.
var _ Thunk = (*RecvThunk)(nil)

// NewRecvThunk creates the receive engine for config, moving the operand described by
// buffers. Operand count is checked at execution time, against the invocation's buffer
// table.
func NewRecvThunk(config *Config, buffers []Buffer) *RecvThunk {
	t := &RecvThunk{buffers: buffers}
	t.init("recv", config)
	return t
}

// ExecuteOnStream runs one invocation: it resolves the operand and the calling device's
// peers, then either enqueues the receive from the source, enqueues a zero-fill
// (affirmatively sourceless participant) or does nothing (absent from the topology, or
// gated off). It returns once the work is enqueued on stream.
func (t *RecvThunk) ExecuteOnStream(params *ExecuteParams, stream comms.Stream, comm comms.Comm) error {
	if err := t.checkInitialized(stream.Executor()); err != nil {
		return err
	}
	pair, err := t.convertOperand(params, t.buffers)
	if err != nil {
		return err
	}
	currentID, deviceString, err := t.currentDevice(params)
	if err != nil {
		return err
	}
	entry, found := t.config.Topology.SourceTarget(currentID)
	if !found {
		klog.V(3).Infof("%s (%s): not a participant, nothing to do", t.label(), deviceString)
		return nil
	}
	if !entry.HasSource {
		// A participant nobody sends to: its destination is affirmatively zeroed.
		size := pair.Destination.ByteSize()
		klog.V(3).Infof("%s (%s): no source, zero-filling %s", t.label(), deviceString,
			humanize.IBytes(uint64(size)))
		if err := stream.MemZero(pair.Destination, size); err != nil {
			return errors.WithMessagef(err, "%s (%s): zero-filling the destination", t.label(), deviceString)
		}
		return nil
	}

	run, err := t.gate.shouldRun(SourceTargetPair{Source: entry.Source, Target: currentID}, stream.Executor())
	if err != nil {
		return errors.WithMessagef(err, "%s (%s)", t.label(), deviceString)
	}
	if !run {
		klog.V(3).Infof("%s (%s): gated off, destination untouched", t.label(), deviceString)
		return nil
	}
	klog.V(3).Infof("%s (%s): receiving %d x %s (%s) from id %d", t.label(), deviceString,
		pair.ElementCount, pair.DType,
		humanize.IBytes(uint64(pair.ElementCount)*uint64(pair.DType.Memory())), entry.Source)
	if err := comm.Recv(pair.Destination, pair.DType, pair.ElementCount, entry.Source, stream); err != nil {
		return errors.WithMessagef(err, "%s (%s)", t.label(), deviceString)
	}
	return nil
}

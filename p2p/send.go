package p2p

import (
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/collectives/comms"
)

// SendThunk is the sending half of a point-to-point transfer: each invocation sends the
// operand to the target the topology names for the calling device. A device without a
// target sends nothing; zero-fill is strictly a receive-side affair.
type SendThunk struct {
	p2pThunk
	buffers []Buffer
}

// Compile-time check that SendThunk implements Thunk.
var _ Thunk = (*SendThunk)(nil)

// NewSendThunk creates the send engine for config, moving the operand described by
// buffers. Operand count is checked at execution time, against the invocation's buffer
// table.
func NewSendThunk(config *Config, buffers []Buffer) *SendThunk {
	t := &SendThunk{buffers: buffers}
	t.init("send", config)
	return t
}

// ExecuteOnStream runs one invocation: it resolves the operand and the calling device's
// peers, then enqueues the send to the target, or does nothing when the device has no
// target, is absent from the topology or is gated off. It returns once the work is
// enqueued on stream.
func (t *SendThunk) ExecuteOnStream(params *ExecuteParams, stream comms.Stream, comm comms.Comm) error {
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
	if !entry.HasTarget {
		klog.V(3).Infof("%s (%s): no target, nothing to send", t.label(), deviceString)
		return nil
	}

	run, err := t.gate.shouldRun(SourceTargetPair{Source: currentID, Target: entry.Target}, stream.Executor())
	if err != nil {
		return errors.WithMessagef(err, "%s (%s)", t.label(), deviceString)
	}
	if !run {
		klog.V(3).Infof("%s (%s): gated off, nothing sent", t.label(), deviceString)
		return nil
	}
	klog.V(3).Infof("%s (%s): sending %d x %s (%s) to id %d", t.label(), deviceString,
		pair.ElementCount, pair.DType,
		humanize.IBytes(uint64(pair.ElementCount)*uint64(pair.DType.Memory())), entry.Target)
	if err := comm.Send(pair.Source, pair.DType, pair.ElementCount, entry.Target, stream); err != nil {
		return errors.WithMessagef(err, "%s (%s)", t.label(), deviceString)
	}
	return nil
}

package inprocess

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/gomlx/collectives/comms"
)

// Comm is the point-to-point communicator of one rank of an in-process clique.
type Comm struct {
	clique *Clique
	rank   int64
}

// Compile-time check that inprocess.Comm implements comms.Comm.
var _ comms.Comm = (*Comm)(nil)

// NumRanks implements comms.Comm.
func (c *Comm) NumRanks() int { return c.clique.NumRanks() }

// checkTransfer validates the arguments shared by Send and Recv and casts buffer and
// stream to the in-process concrete types.
func (c *Comm) checkTransfer(buf comms.Memory, dtype dtypes.DType, count int64, peer int64, stream comms.Stream) (*Memory, *Stream, uintptr, error) {
	if c.clique.finalized.Test() {
		return nil, nil, 0, errors.WithStack(comms.ErrFinalized)
	}
	if peer < 0 || peer >= int64(c.clique.NumRanks()) {
		return nil, nil, 0, errors.Wrapf(comms.ErrBadRank, "peer %d on a clique of %d ranks", peer, c.clique.NumRanks())
	}
	m, ok := buf.(*Memory)
	if !ok {
		return nil, nil, 0, errors.Errorf("in-process communicator given memory of type %T, must be *inprocess.Memory", buf)
	}
	s, ok := stream.(*Stream)
	if !ok {
		return nil, nil, 0, errors.Errorf("in-process communicator given stream of type %T, must be *inprocess.Stream", stream)
	}
	if count < 0 {
		return nil, nil, 0, errors.Errorf("negative element count %d", count)
	}
	byteSize := uintptr(count) * dtype.Memory()
	if byteSize > m.ByteSize() {
		return nil, nil, 0, errors.Errorf("transfer of %d x %s takes %d bytes, buffer holds only %d", count, dtype, byteSize, m.ByteSize())
	}
	return m, s, byteSize, nil
}

// Send implements comms.Comm: it enqueues on stream the delivery of count elements of
// dtype from buf to peer's mailbox. The bytes are snapshotted when the stream reaches
// the operation, not at enqueue time.
func (c *Comm) Send(buf comms.Memory, dtype dtypes.DType, count int64, peer int64, stream comms.Stream) error {
	m, s, byteSize, err := c.checkTransfer(buf, dtype, count, peer, stream)
	if err != nil {
		return errors.WithMessagef(err, "Send to peer %d on rank %d", peer, c.rank)
	}
	mailbox := c.clique.mailbox(c.rank, peer)
	finalized := c.clique.finalized.WaitChan()
	return s.enqueue(func() error {
		msg := message{dtype: dtype, count: count, data: make([]byte, byteSize)}
		copy(msg.data, m.data[:byteSize])
		select {
		case mailbox <- msg:
			return nil
		case <-finalized:
			return errors.Wrapf(comms.ErrFinalized, "send from rank %d to peer %d abandoned", c.rank, peer)
		}
	})
}

// Recv implements comms.Comm: it enqueues on stream the reception of count elements of
// dtype from peer into buf. The receive holds the stream (never the host) until the
// matching send's data arrives, and poisons the stream if the sender declared a
// different element type or count.
func (c *Comm) Recv(buf comms.Memory, dtype dtypes.DType, count int64, peer int64, stream comms.Stream) error {
	m, s, _, err := c.checkTransfer(buf, dtype, count, peer, stream)
	if err != nil {
		return errors.WithMessagef(err, "Recv from peer %d on rank %d", peer, c.rank)
	}
	mailbox := c.clique.mailbox(peer, c.rank)
	finalized := c.clique.finalized.WaitChan()
	return s.enqueue(func() error {
		select {
		case msg := <-mailbox:
			if msg.dtype != dtype || msg.count != count {
				return errors.Errorf("rank %d expected %d x %s from peer %d, peer sent %d x %s",
					c.rank, count, dtype, peer, msg.count, msg.dtype)
			}
			copy(m.data, msg.data)
			return nil
		case <-finalized:
			return errors.Wrapf(comms.ErrFinalized, "receive on rank %d from peer %d abandoned", c.rank, peer)
		}
	})
}

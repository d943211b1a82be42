package inprocess

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/gomlx/collectives/comms"
	"github.com/gomlx/collectives/types/xsync"
)

// Clique is a group of simulated devices living in the same process, fully connected
// through in-memory mailboxes. Rank r runs on the executor with device ordinal r.
type Clique struct {
	id        comms.CliqueID
	executors []*Executor
	comms     []*Comm
	finalized *xsync.Latch

	// mailboxes carry at most one in-flight message per directed pair of ranks, so a
	// second send to the same peer waits on the stream until the first is consumed.
	mailboxes xsync.SyncMap[mailboxKey, chan message]
}

type mailboxKey struct {
	from, to int64
}

// message is one transfer in flight: the sent bytes, with the element type and count the
// sender declared. The receiver checks them against its own.
type message struct {
	dtype dtypes.DType
	count int64
	data  []byte
}

// Compile-time check that inprocess.Clique implements comms.Clique.
var _ comms.Clique = (*Clique)(nil)

func newClique(numRanks int) (*Clique, error) {
	if numRanks <= 0 {
		return nil, errors.Errorf("clique needs at least 1 rank, %d given", numRanks)
	}
	c := &Clique{
		id:        comms.NewCliqueID(),
		executors: make([]*Executor, numRanks),
		comms:     make([]*Comm, numRanks),
		finalized: xsync.NewLatch(),
	}
	for rank := 0; rank < numRanks; rank++ {
		c.executors[rank] = &Executor{ordinal: rank}
		c.comms[rank] = &Comm{clique: c, rank: int64(rank)}
	}
	return c, nil
}

// ID implements comms.Clique.
func (c *Clique) ID() comms.CliqueID { return c.id }

// NumRanks implements comms.Clique.
func (c *Clique) NumRanks() int { return len(c.comms) }

// Comm implements comms.Clique: it returns the communicator bound to rank.
func (c *Clique) Comm(rank int) (comms.Comm, error) {
	if rank < 0 || rank >= len(c.comms) {
		return nil, errors.Wrapf(comms.ErrBadRank, "rank %d on a clique of %d ranks", rank, len(c.comms))
	}
	return c.comms[rank], nil
}

// Executor returns the execution context of the simulated device that runs rank.
func (c *Clique) Executor(rank int) *Executor {
	return c.executors[rank]
}

// Finalize implements comms.Clique: sends and receives still pending on any of the
// clique's streams fail with comms.ErrFinalized instead of waiting forever.
func (c *Clique) Finalize() {
	c.finalized.Trigger()
}

// mailbox returns the channel carrying messages from rank `from` to rank `to`, creating
// it on first use.
func (c *Clique) mailbox(from, to int64) chan message {
	key := mailboxKey{from: from, to: to}
	ch, ok := c.mailboxes.Load(key)
	if !ok {
		ch, _ = c.mailboxes.LoadOrStore(key, make(chan message, 1))
	}
	return ch
}

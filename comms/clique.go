package comms

import "github.com/google/uuid"

// CliqueID uniquely identifies one clique of communicators. All participants of a
// collective must construct their communicators under the same id; runtimes that
// rendezvous out-of-process exchange it through their own side channel.
type CliqueID string

// NewCliqueID returns a fresh, globally unique clique id.
func NewCliqueID() CliqueID {
	return CliqueID(uuid.NewString())
}

// Clique is a fully connected group of communicators, one per rank. It is created by
// Runtime.NewClique with all ranks known up front.
type Clique interface {
	// ID returns the clique's unique id.
	ID() CliqueID

	// NumRanks returns the number of ranks in the clique.
	NumRanks() int

	// Comm returns the communicator bound to the given rank.
	Comm(rank int) (Comm, error)

	// Finalize tears the clique down. Operations still pending on any of its
	// communicators fail with ErrFinalized rather than blocking forever. Finalize is
	// idempotent.
	Finalize()
}

// Package inprocess implements a pure-Go, in-process communication runtime: every rank
// of a clique is a simulated device living in the same process, streams are
// goroutine-backed FIFO queues and sends rendezvous with receives through in-memory
// mailboxes.
//
// It is the runtime the tests and the permute simulator (cmd/permute_sim) run on. It
// trades throughput for portability and determinism; a real deployment would register a
// runtime driving an actual interconnect instead.
package inprocess

import (
	"k8s.io/klog/v2"

	"github.com/gomlx/collectives/comms"
)

// RuntimeName to be used in GOMLX_COMMS to specify this runtime.
const RuntimeName = "inprocess"

// Registers New() as the default constructor for the "inprocess" runtime.
func init() {
	comms.Register(RuntimeName, New)
}

// New constructs a new in-process Runtime.
// There are no configurations, a non-empty string is reported and ignored.
func New(config string) comms.Runtime {
	if config != "" {
		klog.Warningf("in-process communication runtime takes no configuration, %q ignored", config)
	}
	return &Runtime{}
}

// Runtime implements the comms.Runtime interface.
type Runtime struct{}

// Compile-time check that inprocess.Runtime implements comms.Runtime.
var _ comms.Runtime = &Runtime{}

// Name returns the short name of the runtime.
func (r *Runtime) Name() string { return "InProcess (simulated devices)" }

// String implements fmt.Stringer.
func (r *Runtime) String() string { return RuntimeName }

// Description is a longer description of the Runtime that can be used to pretty-print.
func (r *Runtime) Description() string {
	return "Pure-Go in-process communication runtime over simulated devices"
}

// NewClique creates a clique of numRanks simulated devices, fully connected.
func (r *Runtime) NewClique(numRanks int) (comms.Clique, error) {
	return newClique(numRanks)
}

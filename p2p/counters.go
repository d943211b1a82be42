package p2p

import (
	"github.com/pkg/errors"

	"github.com/gomlx/collectives/comms"
	"github.com/gomlx/collectives/types/xsync"
)

// ExecutionCounters counts the invocations of one engine instance, one counter per
// device execution context. The conditional gate reads and increments it on every
// invocation, whether or not the transfer runs.
//
// Counters must be registered with Initialize before use; Counter then always returns
// the same address for the same context. Concurrent Initialize calls for the same
// context are safe and keep the first counter; increments through the returned pointer
// are the caller's to order (one controlling goroutine per context, which is how
// executors drive devices).
type ExecutionCounters struct {
	counters xsync.SyncMap[comms.Executor, *int64]
}

// NewExecutionCounters is ready to use, with no contexts registered.
func NewExecutionCounters() *ExecutionCounters {
	return &ExecutionCounters{}
}

// Initialize registers a zero counter for exec, if one isn't registered yet.
func (c *ExecutionCounters) Initialize(exec comms.Executor) error {
	c.counters.LoadOrStore(exec, new(int64))
	return nil
}

// Counter returns the address of exec's counter. It fails, matching ErrNotInitialized,
// if Initialize never ran for exec.
func (c *ExecutionCounters) Counter(exec comms.Executor) (*int64, error) {
	counter, found := c.counters.Load(exec)
	if !found {
		return nil, errors.Wrapf(ErrNotInitialized, "no execution counter for device #%d", exec.DeviceOrdinal())
	}
	return counter, nil
}

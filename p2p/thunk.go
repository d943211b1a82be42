package p2p

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/gomlx/collectives/comms"
	"github.com/gomlx/collectives/devices"
	"github.com/gomlx/collectives/types/xsync"
)

// InitializeParams carries what Initialize needs: the device execution context the
// engine is being prepared on.
type InitializeParams struct {
	Executor comms.Executor
}

// ExecuteParams carries one invocation's inputs: the resolved buffer table, the calling
// device and the program's device assignment. A fresh value is built per invocation;
// nothing in it outlives the invocation.
type ExecuteParams struct {
	// Buffers is the invocation's buffer table, indexed by Buffer slice numbers.
	Buffers []comms.Memory

	// GlobalDeviceID is the device this invocation runs on.
	GlobalDeviceID devices.GlobalDeviceID

	// DeviceAssignment maps global devices to their logical coordinates.
	DeviceAssignment *devices.Assignment
}

// Thunk is one executable instruction of a compiled program: initialized once per
// device context, executed once per program invocation.
//
// The lifecycle is strict: Initialize must succeed on a context before the first
// ExecuteOnStream there, Initialize is idempotent, ExecuteOnStream repeats without
// bound. ExecuteOnStream enqueues device work on the given stream and returns without
// waiting for it.
type Thunk interface {
	Initialize(params *InitializeParams) error
	ExecuteOnStream(params *ExecuteParams, stream comms.Stream, comm comms.Comm) error
}

// p2pThunk is the shared base of RecvThunk and SendThunk: the immutable configuration,
// the replay gate and the record of which device contexts completed Initialize.
type p2pThunk struct {
	kind   string
	config *Config
	gate   gate

	initialized xsync.SyncMap[comms.Executor, struct{}]
}

func (t *p2pThunk) init(kind string, config *Config) {
	if config == nil {
		exceptions.Panicf("p2p.New%sThunk given a nil config", kind)
	}
	t.kind = kind
	t.config = config
	t.gate = newGate(config)
}

// Config returns the engine's immutable configuration.
func (t *p2pThunk) Config() *Config { return t.config }

// label names the engine in logs and errors.
func (t *p2pThunk) label() string {
	if t.config.Name == "" {
		return t.kind
	}
	return t.kind + " " + t.config.Name
}

// Initialize prepares the engine for the device context in params: the gate registers
// its counter there, then the context is marked ready for ExecuteOnStream. A failed
// Initialize leaves the context unmarked, so every later ExecuteOnStream on it fails.
// Idempotent per context.
func (t *p2pThunk) Initialize(params *InitializeParams) error {
	if params == nil || params.Executor == nil {
		exceptions.Panicf("%s: Initialize given no device execution context", t.label())
	}
	if err := t.gate.initialize(params.Executor); err != nil {
		return errors.WithMessagef(err, "%s: initializing on device #%d", t.label(), params.Executor.DeviceOrdinal())
	}
	t.initialized.Store(params.Executor, struct{}{})
	return nil
}

// checkInitialized fails, matching ErrNotInitialized, unless Initialize succeeded on
// exec.
func (t *p2pThunk) checkInitialized(exec comms.Executor) error {
	if _, found := t.initialized.Load(exec); !found {
		return errors.Wrapf(ErrNotInitialized, "%s on device #%d", t.label(), exec.DeviceOrdinal())
	}
	return nil
}

// currentDevice resolves the calling device's logical id under the config's group mode,
// plus a label for logs.
func (t *p2pThunk) currentDevice(params *ExecuteParams) (currentID int64, deviceString string, err error) {
	logicalID, err := params.DeviceAssignment.LogicalIDForDevice(params.GlobalDeviceID)
	if err != nil {
		return 0, "", errors.WithMessagef(err, "%s", t.label())
	}
	currentID = logicalID.ID(t.config.GroupMode)
	deviceString = fmt.Sprintf("global=%d logical=%s id=%d", params.GlobalDeviceID, logicalID, currentID)
	return currentID, deviceString, nil
}

// convertOperand resolves the engine's single operand against the invocation's buffer
// table. Engines move exactly one buffer pair; anything else is an ErrOperandShape.
func (t *p2pThunk) convertOperand(params *ExecuteParams, buffers []Buffer) (DeviceBufferPair, error) {
	pairs, err := ConvertToDeviceBuffers(params, buffers, t.config.OperandShape.DType)
	if err != nil {
		return DeviceBufferPair{}, errors.WithMessagef(err, "%s", t.label())
	}
	if len(pairs) != 1 {
		return DeviceBufferPair{}, errors.Wrapf(ErrOperandShape, "%s moves exactly one buffer pair, got %d", t.label(), len(pairs))
	}
	return pairs[0], nil
}

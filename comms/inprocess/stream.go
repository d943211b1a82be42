package inprocess

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/gomlx/collectives/comms"
)

// Executor is the execution context of one simulated device. Executors are created by
// the clique, one per rank, and hand out the streams that drive their device.
//
// The same *Executor value is returned for the same rank for the lifetime of the clique,
// so it is usable as an identity key.
type Executor struct {
	ordinal int
}

// Compile-time check that inprocess.Executor implements comms.Executor.
var _ comms.Executor = (*Executor)(nil)

// DeviceOrdinal implements comms.Executor.
func (e *Executor) DeviceOrdinal() int { return e.ordinal }

// NewStream creates a stream on the executor's device, backed by its own worker
// goroutine. Release the goroutine with Stream.Close when done with the stream.
func (e *Executor) NewStream() *Stream {
	s := &Stream{exec: e}
	s.cond = sync.Cond{L: &s.mu}
	go s.run()
	return s
}

// Stream is an ordered asynchronous work queue backed by one worker goroutine.
//
// The first task that fails poisons the stream: tasks already queued behind it are
// discarded, later enqueues fail immediately and BlockHostUntilDone returns the original
// error.
type Stream struct {
	exec *Executor

	mu      sync.Mutex
	cond    sync.Cond // Signaled whenever queue, pending or err changes.
	queue   []func() error
	pending int   // Enqueued but not yet finished tasks.
	err     error // Sticky: the first task failure.
	closed  bool
}

// Compile-time check that inprocess.Stream implements comms.Stream.
var _ comms.Stream = (*Stream)(nil)

// Executor implements comms.Stream.
func (s *Stream) Executor() comms.Executor { return s.exec }

// enqueue appends task to the stream's queue, to run after everything enqueued before it.
func (s *Stream) enqueue(task func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.Errorf("stream on device #%d is closed", s.exec.ordinal)
	}
	if s.err != nil {
		return s.err
	}
	s.queue = append(s.queue, task)
	s.pending++
	s.cond.Broadcast()
	return nil
}

// run is the worker goroutine loop: it executes tasks in enqueue order until Close.
func (s *Stream) run() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		task := s.queue[0]
		s.queue = s.queue[1:]
		poisoned := s.err != nil
		s.mu.Unlock()

		var err error
		if !poisoned {
			err = task()
		}

		s.mu.Lock()
		if err != nil && s.err == nil {
			s.err = err
		}
		s.pending--
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

// MemZero implements comms.Stream: it enqueues the zeroing of the first size bytes of mem.
func (s *Stream) MemZero(mem comms.Memory, size uintptr) error {
	m, ok := mem.(*Memory)
	if !ok {
		return errors.Errorf("in-process stream given memory of type %T, must be *inprocess.Memory", mem)
	}
	if size > m.ByteSize() {
		return errors.Errorf("MemZero of %d bytes on a region of %d bytes", size, m.ByteSize())
	}
	return s.enqueue(func() error {
		clear(m.data[:size])
		return nil
	})
}

// BlockHostUntilDone implements comms.Stream: it blocks until the queue drains and
// returns the first error any task produced.
func (s *Stream) BlockHostUntilDone() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending > 0 {
		s.cond.Wait()
	}
	return s.err
}

// Close lets the worker goroutine exit once the tasks already enqueued finish. Later
// enqueues fail. Close does not wait; follow with BlockHostUntilDone if needed.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
}

package inprocess

import (
	"unsafe"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/x448/float16"

	"github.com/gomlx/collectives/comms"
)

// Memory is a region of simulated device memory: ordinary process memory with the byte
// size fixed at allocation.
//
// The backing array is 8-byte aligned, so the typed views (Float32s, Int64s, ...) are
// always properly aligned.
type Memory struct {
	data []byte
}

// Compile-time check that inprocess.Memory implements comms.Memory.
var _ comms.Memory = (*Memory)(nil)

// NewMemory allocates a zero-initialized region of byteSize bytes.
func NewMemory(byteSize uintptr) *Memory {
	words := make([]uint64, (byteSize+7)/8)
	var data []byte
	if byteSize > 0 {
		data = unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), byteSize)
	}
	return &Memory{data: data}
}

// FromFlat allocates a region holding a copy of the given flat values.
func FromFlat[T dtypes.Supported](values []T) *Memory {
	var dummy T
	byteSize := uintptr(len(values)) * unsafe.Sizeof(dummy)
	m := NewMemory(byteSize)
	if byteSize > 0 {
		copy(m.data, unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(values))), byteSize))
	}
	return m
}

// ByteSize implements comms.Memory.
func (m *Memory) ByteSize() uintptr { return uintptr(len(m.data)) }

// Bytes returns the raw byte view of the region. The slice aliases the region, writes to
// it are seen by the simulated device.
func (m *Memory) Bytes() []byte { return m.data }

// Float16s returns the region viewed as a slice of IEEE 754 half-precision values.
func (m *Memory) Float16s() []float16.Float16 { return view[float16.Float16](m) }

// Float32s returns the region viewed as []float32.
func (m *Memory) Float32s() []float32 { return view[float32](m) }

// Float64s returns the region viewed as []float64.
func (m *Memory) Float64s() []float64 { return view[float64](m) }

// Int32s returns the region viewed as []int32.
func (m *Memory) Int32s() []int32 { return view[int32](m) }

// Int64s returns the region viewed as []int64.
func (m *Memory) Int64s() []int64 { return view[int64](m) }

// view reinterprets the region as a slice of T, discarding any tail bytes that don't fit
// a whole element.
func view[T any](m *Memory) []T {
	var dummy T
	n := uintptr(len(m.data)) / unsafe.Sizeof(dummy)
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(m.data))), n)
}

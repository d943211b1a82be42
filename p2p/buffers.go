package p2p

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/gomlx/collectives/comms"
)

// Buffer names one operand of an engine inside the invocation's buffer table: which
// slots hold the source and destination regions and how many elements flow. The slots
// are assigned at compilation; the regions they resolve to may differ between
// invocations, which is why resolution happens per invocation and is never cached.
type Buffer struct {
	SourceSlice      int
	DestinationSlice int
	ElementCount     int64
}

// DeviceBufferPair is a Buffer resolved against one invocation's buffer table: concrete
// memory regions, valid for this invocation only.
type DeviceBufferPair struct {
	DType        dtypes.DType
	ElementCount int64
	Source       comms.Memory
	Destination  comms.Memory
}

// ConvertToDeviceBuffers resolves buffers against the invocation's buffer table
// (params.Buffers), checking that every slot exists, is non-nil and is large enough for
// ElementCount elements of dtype. Errors match ErrOperandShape.
func ConvertToDeviceBuffers(params *ExecuteParams, buffers []Buffer, dtype dtypes.DType) ([]DeviceBufferPair, error) {
	pairs := make([]DeviceBufferPair, 0, len(buffers))
	for i, buffer := range buffers {
		source, err := resolveSlice(params, buffer.SourceSlice, buffer.ElementCount, dtype)
		if err != nil {
			return nil, errors.WithMessagef(err, "operand #%d source", i)
		}
		destination, err := resolveSlice(params, buffer.DestinationSlice, buffer.ElementCount, dtype)
		if err != nil {
			return nil, errors.WithMessagef(err, "operand #%d destination", i)
		}
		pairs = append(pairs, DeviceBufferPair{
			DType:        dtype,
			ElementCount: buffer.ElementCount,
			Source:       source,
			Destination:  destination,
		})
	}
	return pairs, nil
}

func resolveSlice(params *ExecuteParams, slice int, elementCount int64, dtype dtypes.DType) (comms.Memory, error) {
	if slice < 0 || slice >= len(params.Buffers) {
		return nil, errors.Wrapf(ErrOperandShape, "slice #%d outside the table of %d buffers", slice, len(params.Buffers))
	}
	mem := params.Buffers[slice]
	if mem == nil {
		return nil, errors.Wrapf(ErrOperandShape, "slice #%d resolved to no region", slice)
	}
	if need := uintptr(elementCount) * dtype.Memory(); mem.ByteSize() < need {
		return nil, errors.Wrapf(ErrOperandShape, "slice #%d holds %d bytes, %d x %s takes %d",
			slice, mem.ByteSize(), elementCount, dtype, need)
	}
	return mem, nil
}

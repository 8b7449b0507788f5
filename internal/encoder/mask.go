package encoder

import (
	"github.com/23skdu/longbow-bowyer/internal/device"
	"github.com/23skdu/longbow-bowyer/internal/shape"
)

// BuildAttentionMask expands a per-token validity mask [batch, to_seq] into
// the pairwise mask [batch, from_seq, to_seq], stored as a [batch*from_seq,
// to_seq] tensor of {0,1}. Every from-row shares the same to-side masking
// row: padding positions are never attended *to*, but they are still allowed
// to attend *from* — their output rows are garbage by contract and must be
// discarded downstream.
//
// fromShape supplies only the batch and from-length extents; it may describe
// a rank-2 or rank-3 tensor.
func BuildAttentionMask(backend device.Backend, fromShape shape.Shape, toMask [][]int) (device.Tensor, error) {
	if err := shape.Check("from_tensor", fromShape, 2, 3); err != nil {
		return nil, err
	}
	batch := fromShape[0]
	fromLen := fromShape[1]

	flat, mb, toLen, err := flattenGrid("to_mask", toMask)
	if err != nil {
		return nil, err
	}
	if mb != batch {
		return nil, shape.Errorf("to_mask",
			"batch extent %d does not match from_tensor batch %d", mb, batch)
	}

	out := backend.NewTensor(batch*fromLen, toLen, nil)
	data := out.Data()
	for b := 0; b < batch; b++ {
		row := flat[b*toLen : (b+1)*toLen]
		for f := 0; f < fromLen; f++ {
			dst := data[(b*fromLen+f)*toLen : (b*fromLen+f+1)*toLen]
			for t, v := range row {
				if v != 0 {
					dst[t] = 1
				}
			}
		}
	}
	return out, nil
}

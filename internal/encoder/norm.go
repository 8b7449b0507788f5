package encoder

import (
	"github.com/23skdu/longbow-bowyer/internal/device"
)

// LayerNorm standardizes each row's mean and variance over the last axis,
// then applies a learnable scale (gamma) and shift (beta).
type LayerNorm struct {
	Gamma device.Tensor
	Beta  device.Tensor
	Eps   float32
}

func NewLayerNorm(size int, backend device.Backend) *LayerNorm {
	ones := make([]float32, size)
	for i := range ones {
		ones[i] = 1
	}

	return &LayerNorm{
		Gamma: backend.NewTensor(1, size, ones),
		Beta:  backend.NewTensor(1, size, nil),
		Eps:   1e-12,
	}
}

// Forward normalizes in-place and returns the input for chaining.
func (l *LayerNorm) Forward(t device.Tensor) device.Tensor {
	t.LayerNorm(l.Gamma, l.Beta, l.Eps)
	return t
}

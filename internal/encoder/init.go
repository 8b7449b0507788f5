package encoder

import (
	"math/rand"

	"github.com/23skdu/longbow-bowyer/internal/device"
)

// initializer draws parameter values from a truncated normal distribution:
// standard normal samples beyond two standard deviations are re-drawn, then
// scaled by the configured spread. Every learnable tensor in the model is
// filled through the same initializer so the initialization scale is uniform
// across components.
type initializer struct {
	stddev float32
	rng    *rand.Rand
}

func newInitializer(stddev float32, rng *rand.Rand) *initializer {
	return &initializer{stddev: stddev, rng: rng}
}

func (in *initializer) sample() float32 {
	for {
		v := in.rng.NormFloat64()
		if v >= -2 && v <= 2 {
			return float32(v) * in.stddev
		}
	}
}

// fill overwrites the tensor with fresh truncated-normal draws.
func (in *initializer) fill(t device.Tensor) {
	r, c := t.Dims()
	data := make([]float32, r*c)
	for i := range data {
		data[i] = in.sample()
	}
	t.CopyFrom(data)
}

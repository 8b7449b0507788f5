package encoder

import (
	"math/rand"
	"sync"

	"github.com/23skdu/longbow-bowyer/internal/device"
)

// Dropout is the randomized zeroing transform. Each element is independently
// zeroed with probability rate and survivors are rescaled by 1/(1-rate) to
// preserve the expected magnitude. rate == 0 is a strict no-op, which is how
// every inference pass runs; rate == 1 zeroes everything (degenerate, not a
// supported operating point).
//
// The random source is shared across the attention workers, so draws are
// serialized with a mutex. Training-mode output is therefore random but not
// reproducible across runs; inference never draws.
type Dropout struct {
	rng *rand.Rand
	mu  sync.Mutex
}

func NewDropout(rng *rand.Rand) *Dropout {
	return &Dropout{rng: rng}
}

// Forward applies dropout in-place and returns t for chaining.
func (d *Dropout) Forward(t device.Tensor, rate float32) device.Tensor {
	if rate == 0 {
		return t
	}

	data := t.Data()
	if rate >= 1 {
		for i := range data {
			data[i] = 0
		}
		return t
	}

	scale := 1 / (1 - rate)
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range data {
		if d.rng.Float32() < rate {
			data[i] = 0
		} else {
			data[i] *= scale
		}
	}
	return t
}

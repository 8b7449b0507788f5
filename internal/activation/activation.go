// Package activation maps symbolic activation names to the in-place
// elementwise kernels used by the encoder's projections and feed-forward
// blocks.
package activation

import (
	"fmt"
	"strings"

	"github.com/23skdu/longbow-bowyer/internal/simd"
)

// Func applies a pointwise nonlinearity in-place over a row-major slice.
// A nil Func means "no activation" (identity).
type Func func(data []float32)

// Gelu is the smooth tanh approximation of the Gaussian error linear unit:
// x * 0.5 * (1 + tanh(sqrt(2/pi) * (x + 0.044715*x^3))).
func Gelu(data []float32) { simd.GeluFast(data) }

// Relu is max(0, x).
func Relu(data []float32) { simd.ReluFast(data) }

// Tanh is the hyperbolic tangent.
func Tanh(data []float32) { simd.TanhAll(data) }

// UnknownError reports an activation name with no registered kernel.
type UnknownError struct {
	Name string
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("activation: unsupported activation %q", e.Name)
}

// Resolve maps a name to its kernel. "" and "linear" resolve to nil (no
// activation). Matching is case-insensitive. Callers holding a custom Func
// already should use it directly; Resolve only handles names.
func Resolve(name string) (Func, error) {
	switch strings.ToLower(name) {
	case "", "linear":
		return nil, nil
	case "relu":
		return Relu, nil
	case "gelu":
		return Gelu, nil
	case "tanh":
		return Tanh, nil
	default:
		return nil, &UnknownError{Name: name}
	}
}

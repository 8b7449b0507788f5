// Package shape carries the logical extents of tensors and the rank checks
// the encoder performs before handing data to the numeric kernels.
//
// All hidden states in this codebase are stored row-major in 2-D tensors of
// extent [outer, width], where outer is the product of every leading logical
// axis. A logical [batch, seq, hidden] state is therefore the pair of a
// [batch*seq, hidden] tensor and a Shape{batch, seq, hidden}. Flattening and
// unflattening the outer axes only rewrites the Shape, never the data, which
// makes the round trip exact by construction.
package shape

import "fmt"

// Shape is the per-axis extents of a tensor, outermost first.
type Shape []int

// Of builds a Shape from extents.
func Of(dims ...int) Shape {
	s := make(Shape, len(dims))
	copy(s, dims)
	return s
}

// Rank returns the number of axes.
func (s Shape) Rank() int { return len(s) }

// Elems returns the total element count.
func (s Shape) Elems() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Outer returns the product of all axes but the last.
func (s Shape) Outer() int {
	n := 1
	for _, d := range s[:len(s)-1] {
		n *= d
	}
	return n
}

// Width returns the extent of the last axis.
func (s Shape) Width() int { return s[len(s)-1] }

// Equal reports whether two shapes have identical rank and extents.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i, d := range s {
		if d != o[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (s Shape) Clone() Shape {
	return Of(s...)
}

func (s Shape) String() string { return fmt.Sprint([]int(s)) }

// Error is a structural shape or rank mismatch. It is always a programmer
// error; there is no recovery path.
type Error struct {
	Tensor string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("shape: tensor %q: %s", e.Tensor, e.Reason)
}

// Errorf builds an Error with a formatted reason.
func Errorf(tensor, format string, args ...interface{}) *Error {
	return &Error{Tensor: tensor, Reason: fmt.Sprintf(format, args...)}
}

// Check verifies that s has one of the allowed ranks. The tensor name is
// carried into the error for diagnostics.
func Check(tensor string, s Shape, ranks ...int) error {
	for _, r := range ranks {
		if s.Rank() == r {
			return nil
		}
	}
	return Errorf(tensor, "actual rank %d (shape %v) is not one of the expected ranks %v",
		s.Rank(), s, ranks)
}

// FlattenOuter collapses all axes but the last into one. A rank-2 shape is
// returned unchanged.
func FlattenOuter(s Shape) (Shape, error) {
	if s.Rank() < 2 {
		return nil, Errorf("input", "flatten requires at least rank 2, got shape %v", s)
	}
	if s.Rank() == 2 {
		return s.Clone(), nil
	}
	return Of(s.Outer(), s.Width()), nil
}

// UnflattenOuter restores all but the last axis from orig. The last axis is
// taken from flat so that width-changing transforms (projections) keep their
// output width through the round trip.
func UnflattenOuter(flat, orig Shape) (Shape, error) {
	if err := Check("flat", flat, 2); err != nil {
		return nil, err
	}
	if orig.Rank() == 2 {
		return flat.Clone(), nil
	}
	if flat[0] != orig.Outer() {
		return nil, Errorf("flat", "outer extent %d does not match original shape %v (outer %d)",
			flat[0], orig, orig.Outer())
	}
	out := orig.Clone()
	out[len(out)-1] = flat.Width()
	return out, nil
}

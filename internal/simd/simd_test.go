package simd

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpFast(t *testing.T) {
	for _, x := range []float32{-5, -1, -0.25, 0, 0.25, 1, 5} {
		want := math.Exp(float64(x))
		got := float64(ExpFast(x))
		require.InEpsilon(t, want, got, 1e-3, "exp(%v)", x)
	}
	require.Equal(t, float32(0), ExpFast(-100))
}

func TestGeluFast(t *testing.T) {
	data := []float32{0}
	GeluFast(data)
	require.Equal(t, float32(0), data[0], "gelu(0) must be 0")

	// gelu(x) -> x for large positive x
	data = []float32{10}
	GeluFast(data)
	require.InDelta(t, 10.0, float64(data[0]), 1e-4)

	// gelu(x) -> 0 for large negative x
	data = []float32{-10}
	GeluFast(data)
	require.InDelta(t, 0.0, float64(data[0]), 1e-4)
}

func TestReluFast(t *testing.T) {
	data := []float32{-2, -0.5, 0, 0.5, 2}
	ReluFast(data)
	require.Equal(t, []float32{0, 0, 0, 0.5, 2}, data)
}

func TestSoftmaxRow(t *testing.T) {
	row := []float32{1, 2, 3, 4}
	SoftmaxRow(row)

	var sum float32
	for i := 1; i < len(row); i++ {
		require.Greater(t, row[i], row[i-1], "softmax must be monotone in its input")
	}
	for _, v := range row {
		sum += v
	}
	require.InDelta(t, 1.0, float64(sum), 1e-5)
}

func TestDotProduct(t *testing.T) {
	a := []float32{1, 2, 3, 4, 5}
	b := []float32{5, 4, 3, 2, 1}
	require.Equal(t, float32(35), DotProduct(a, b))
}

func TestVecAddScaled(t *testing.T) {
	dst := []float32{1, 1, 1, 1, 1}
	src := []float32{1, 2, 3, 4, 5}
	VecAddScaled(dst, src, 2)
	require.Equal(t, []float32{3, 5, 7, 9, 11}, dst)
}

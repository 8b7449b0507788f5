package activation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	f, err := Resolve("gelu")
	require.NoError(t, err)
	require.NotNil(t, f)

	f, err = Resolve("RELU")
	require.NoError(t, err)
	require.NotNil(t, f)

	f, err = Resolve("linear")
	require.NoError(t, err)
	require.Nil(t, f, "linear means no activation")

	f, err = Resolve("")
	require.NoError(t, err)
	require.Nil(t, f)

	_, err = Resolve("swish")
	require.Error(t, err)
	var unknown *UnknownError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "swish", unknown.Name)
}

func TestGeluLimits(t *testing.T) {
	data := []float32{0, 8, -8}
	Gelu(data)
	require.Equal(t, float32(0), data[0])
	require.InDelta(t, 8.0, float64(data[1]), 1e-3)
	require.InDelta(t, 0.0, float64(data[2]), 1e-3)
}

func TestReluTanh(t *testing.T) {
	data := []float32{-1, 2}
	Relu(data)
	require.Equal(t, []float32{0, 2}, data)

	data = []float32{0, 1000, -1000}
	Tanh(data)
	require.Equal(t, float32(0), data[0])
	require.Equal(t, float32(1), data[1])
	require.Equal(t, float32(-1), data[2])
}

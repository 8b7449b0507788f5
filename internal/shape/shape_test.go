package shape

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	s := Of(2, 3, 8)
	require.NoError(t, Check("hidden", s, 3))
	require.NoError(t, Check("hidden", s, 2, 3))

	err := Check("hidden", s, 2)
	require.Error(t, err)
	var shapeErr *Error
	require.ErrorAs(t, err, &shapeErr)
	require.Equal(t, "hidden", shapeErr.Tensor)
	require.Contains(t, err.Error(), "rank 3")
}

func TestFlattenUnflattenRoundTrip(t *testing.T) {
	cases := []Shape{
		Of(2, 3, 8),
		Of(1, 1, 4),
		Of(7, 5),
		Of(4, 2, 16),
	}
	for _, orig := range cases {
		flat, err := FlattenOuter(orig)
		require.NoError(t, err)
		require.Equal(t, 2, flat.Rank())
		require.Equal(t, orig.Elems(), flat.Elems())

		back, err := UnflattenOuter(flat, orig)
		require.NoError(t, err)
		require.True(t, back.Equal(orig), "round trip %v -> %v -> %v", orig, flat, back)
	}
}

func TestUnflattenPreservesNewWidth(t *testing.T) {
	// A projection may change the last axis while flat; unflatten keeps it.
	orig := Of(2, 3, 8)
	projected := Of(6, 32)
	back, err := UnflattenOuter(projected, orig)
	require.NoError(t, err)
	require.True(t, back.Equal(Of(2, 3, 32)))
}

func TestUnflattenOuterMismatch(t *testing.T) {
	_, err := UnflattenOuter(Of(5, 8), Of(2, 3, 8))
	require.Error(t, err)

	_, err = UnflattenOuter(Of(2, 3, 8), Of(2, 3, 8))
	require.Error(t, err, "flat side must be rank 2")
}

func TestFlattenRejectsVectors(t *testing.T) {
	_, err := FlattenOuter(Of(8))
	require.Error(t, err)
}

func TestAccessors(t *testing.T) {
	s := Of(2, 3, 8)
	require.Equal(t, 3, s.Rank())
	require.Equal(t, 48, s.Elems())
	require.Equal(t, 6, s.Outer())
	require.Equal(t, 8, s.Width())
}

package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapCachePutGet(t *testing.T) {
	c := NewMapCache()
	require.Equal(t, 0, c.Size())

	key := Signature([]int{1, 2, 3}, []int{1, 1, 1}, []int{0, 0, 0})
	c.Put(key, []float32{0.5, -0.5})

	got, ok := c.Get(key)
	require.True(t, ok)
	require.Equal(t, []float32{0.5, -0.5}, got)
	require.Equal(t, 1, c.Size())

	_, ok = c.Get(key + 1)
	require.False(t, ok)
}

func TestMapCacheReturnsCopies(t *testing.T) {
	c := NewMapCache()
	src := []float32{1, 2}
	c.Put(7, src)
	src[0] = 99

	got, _ := c.Get(7)
	require.Equal(t, []float32{1, 2}, got)

	got[1] = 99
	again, _ := c.Get(7)
	require.Equal(t, []float32{1, 2}, again)
}

func TestSignatureSensitivity(t *testing.T) {
	base := Signature([]int{1, 2, 3}, []int{1, 1, 1}, []int{0, 0, 0})

	require.NotEqual(t, base, Signature([]int{1, 2, 4}, []int{1, 1, 1}, []int{0, 0, 0}))
	require.NotEqual(t, base, Signature([]int{1, 2, 3}, []int{1, 1, 0}, []int{0, 0, 0}))
	require.NotEqual(t, base, Signature([]int{1, 2, 3}, []int{1, 1, 1}, []int{0, 0, 1}))
	// section lengths participate, so shifting an element across the
	// boundary changes the key
	require.NotEqual(t,
		Signature([]int{1, 2}, []int{3}, nil),
		Signature([]int{1}, []int{2, 3}, nil))

	require.Equal(t, base, Signature([]int{1, 2, 3}, []int{1, 1, 1}, []int{0, 0, 0}))
}

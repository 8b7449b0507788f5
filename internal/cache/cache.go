// Package cache memoizes pooled encodings keyed by the full input batch
// element (ids, mask and segment ids), so identical sequences skip the
// forward pass entirely.
package cache

import (
	"encoding/binary"
	"hash/fnv"
	"sync"
)

// VectorCache stores pooled sentence vectors.
type VectorCache interface {
	Get(key uint64) ([]float32, bool)
	Put(key uint64, vec []float32)
	Size() int
}

// Signature hashes one sequence's ids, mask and segment ids into a cache
// key. Every field participates: the same ids under a different mask or
// segmentation encode differently and must not collide on purpose.
func Signature(ids, mask, segments []int) uint64 {
	h := fnv.New64a()
	var buf [8]byte

	write := func(section []int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(section)))
		h.Write(buf[:])
		for _, v := range section {
			binary.LittleEndian.PutUint64(buf[:], uint64(v))
			h.Write(buf[:])
		}
	}
	write(ids)
	write(mask)
	write(segments)
	return h.Sum64()
}

// MapCache is an unbounded in-memory VectorCache.
type MapCache struct {
	data map[uint64][]float32
	mu   sync.RWMutex
}

func NewMapCache() *MapCache {
	return &MapCache{
		data: make(map[uint64][]float32),
	}
}

func (c *MapCache) Get(key uint64) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Return copy to avoid modification of cached value
	if v, ok := c.data[key]; ok {
		dst := make([]float32, len(v))
		copy(dst, v)
		return dst, true
	}
	return nil, false
}

func (c *MapCache) Put(key uint64, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Store copy
	dst := make([]float32, len(vec))
	copy(dst, vec)
	c.data[key] = dst
}

func (c *MapCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

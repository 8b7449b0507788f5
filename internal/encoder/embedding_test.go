package encoder

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-bowyer/internal/device"
	"github.com/23skdu/longbow-bowyer/internal/shape"
)

func testInitializer(seed int64) *initializer {
	return newInitializer(0.02, rand.New(rand.NewSource(seed)))
}

func TestEmbeddingLookupStrategiesAgree(t *testing.T) {
	backend := device.NewCPUBackend()
	l := NewEmbeddingLookup(backend, 20, 4, "input_ids", testInitializer(3))

	ids := [][]int{{0, 5, 19}, {7, 7, 1}}

	gathered, gs, err := l.Forward(ids)
	require.NoError(t, err)

	l.UseOneHot = true
	oneHot, os, err := l.Forward(ids)
	require.NoError(t, err)

	require.Equal(t, gs, os)
	require.Equal(t, shape.Of(2, 3, 4), gs)
	require.InDeltaSlice(t, gathered.ToHost(), oneHot.ToHost(), 1e-6)
}

func TestEmbeddingLookupRaggedGrid(t *testing.T) {
	backend := device.NewCPUBackend()
	l := NewEmbeddingLookup(backend, 20, 4, "input_ids", testInitializer(3))

	_, _, err := l.Forward([][]int{{1, 2, 3}, {4, 5}})
	var se *shape.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, "input_ids", se.Tensor)

	_, _, err = l.Forward(nil)
	require.ErrorAs(t, err, &se)
}

func postprocessorConfig(maxPos int) Config {
	cfg := DefaultConfig(20)
	cfg.HiddenSize = 4
	cfg.TypeVocabSize = 2
	cfg.MaxPositionEmbeddings = maxPos
	return cfg
}

func TestPostprocessorRequiresSegmentIDs(t *testing.T) {
	backend := device.NewCPUBackend()
	rng := rand.New(rand.NewSource(5))
	p := NewEmbeddingPostprocessor(backend, postprocessorConfig(8), NewDropout(rng), testInitializer(5))

	in := backend.NewTensor(2*3, 4, nil)
	_, err := p.Forward(in, shape.Of(2, 3, 4), nil, 0)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "segment_ids", ce.Field)
}

func TestPostprocessorRejectsLongSequences(t *testing.T) {
	backend := device.NewCPUBackend()
	rng := rand.New(rand.NewSource(5))
	p := NewEmbeddingPostprocessor(backend, postprocessorConfig(2), NewDropout(rng), testInitializer(5))

	in := backend.NewTensor(1*3, 4, nil)
	segs := [][]int{{0, 0, 0}}
	_, err := p.Forward(in, shape.Of(1, 3, 4), segs, 0)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "max_position_embeddings", ce.Field)
}

func TestPostprocessorSegmentExtentMismatch(t *testing.T) {
	backend := device.NewCPUBackend()
	rng := rand.New(rand.NewSource(5))
	p := NewEmbeddingPostprocessor(backend, postprocessorConfig(8), NewDropout(rng), testInitializer(5))

	in := backend.NewTensor(2*3, 4, nil)
	_, err := p.Forward(in, shape.Of(2, 3, 4), [][]int{{0, 0}, {0, 0}}, 0)
	var se *shape.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, "segment_ids", se.Tensor)
}

// Growing the position table must not disturb the encoding of sequences that
// fit the smaller table: only the row prefix participates.
func TestPositionEmbeddingPrefixStability(t *testing.T) {
	backend := device.NewCPUBackend()

	small := NewEmbeddingPostprocessor(backend, postprocessorConfig(6), NewDropout(rand.New(rand.NewSource(9))), testInitializer(9))
	large := NewEmbeddingPostprocessor(backend, postprocessorConfig(12), NewDropout(rand.New(rand.NewSource(10))), testInitializer(10))

	// Share every parameter; the large position table keeps the small one
	// as its row prefix.
	large.SegmentTable.CopyFrom(small.SegmentTable.Data())
	copy(large.PositionTable.Data(), small.PositionTable.Data())
	large.Norm = small.Norm

	in := []float32{0.1, -0.2, 0.3, 0.4, -0.5, 0.6, 0.7, -0.8, 0.9, 1.0, -1.1, 1.2}
	segs := [][]int{{0, 1, 0}}

	a := backend.NewTensor(3, 4, append([]float32(nil), in...))
	outSmall, err := small.Forward(a, shape.Of(1, 3, 4), segs, 0)
	require.NoError(t, err)

	b := backend.NewTensor(3, 4, append([]float32(nil), in...))
	outLarge, err := large.Forward(b, shape.Of(1, 3, 4), segs, 0)
	require.NoError(t, err)

	require.Equal(t, outSmall.ToHost(), outLarge.ToHost())
}

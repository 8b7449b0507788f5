// Package encoding wraps the encoder model behind a concurrency-limited,
// cache-aware service suitable for serving.
package encoding

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/23skdu/longbow-bowyer/internal/cache"
	"github.com/23skdu/longbow-bowyer/internal/encoder"
)

var tracer = otel.Tracer("bowyer-encoding")

// Service serializes access to one model. Admission is weighted by sequence
// count so a huge batch cannot starve the process, and pooled vectors are
// memoized per sequence.
type Service struct {
	model    *encoder.Model
	cache    cache.VectorCache
	sem      *semaphore.Weighted
	capacity int64
}

// NewService wraps a model. vc may be nil to disable memoization.
func NewService(m *encoder.Model, vc cache.VectorCache, maxConcurrent int) *Service {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Service{
		model:    m,
		cache:    vc,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		capacity: int64(maxConcurrent),
	}
}

// Hidden reports the width of the vectors the service produces.
func (s *Service) Hidden() int {
	return s.model.Config.HiddenSize
}

// acquire admits weight sequences, clamped to capacity so oversized batches
// still make progress one at a time.
func (s *Service) acquire(ctx context.Context, n int) (int64, error) {
	weight := int64(n)
	if weight > s.capacity {
		weight = s.capacity
	}
	return weight, s.sem.Acquire(ctx, weight)
}

// Encode runs a full forward pass and returns every output tensor. The
// cache is not consulted: callers wanting sequence-level outputs always pay
// for the pass.
func (s *Service) Encode(ctx context.Context, in encoder.InputBatch) (*encoder.Outputs, error) {
	ctx, span := tracer.Start(ctx, "encoding.Encode")
	defer span.End()
	span.SetAttributes(attribute.Int("sequence_count", len(in.IDs)))

	weight, err := s.acquire(ctx, len(in.IDs))
	if err != nil {
		return nil, err
	}
	defer s.sem.Release(weight)

	start := time.Now()
	out, err := s.model.Encode(in, false)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	encodeDuration.Observe(time.Since(start).Seconds())
	return out, nil
}

// EncodePooled returns each sequence's pooled vector, serving repeats from
// the cache. Sequences missing from the cache are batched into a single
// forward pass.
func (s *Service) EncodePooled(ctx context.Context, in encoder.InputBatch) ([][]float32, error) {
	ctx, span := tracer.Start(ctx, "encoding.EncodePooled")
	defer span.End()

	n := len(in.IDs)
	if n == 0 {
		return nil, nil
	}
	span.SetAttributes(attribute.Int("sequence_count", n))

	results := make([][]float32, n)
	keys := make([]uint64, n)
	var missIdx []int

	for i := 0; i < n; i++ {
		keys[i] = s.rowKey(in, i)
		if s.cache != nil {
			if v, ok := s.cache.Get(keys[i]); ok {
				results[i] = v
				cacheHits.Inc()
				continue
			}
		}
		cacheMisses.Inc()
		missIdx = append(missIdx, i)
	}
	span.SetAttributes(attribute.Int("cache_hits", n-len(missIdx)))

	if len(missIdx) == 0 {
		return results, nil
	}

	weight, err := s.acquire(ctx, len(missIdx))
	if err != nil {
		return nil, err
	}
	defer s.sem.Release(weight)

	start := time.Now()
	out, err := s.model.Encode(s.subBatch(in, missIdx), false)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	encodeDuration.Observe(time.Since(start).Seconds())

	pooled, ps := out.PooledOutput()
	hidden := ps[1]
	flat := pooled.ToHost()
	for k, i := range missIdx {
		vec := make([]float32, hidden)
		copy(vec, flat[k*hidden:(k+1)*hidden])
		results[i] = vec
		if s.cache != nil {
			s.cache.Put(keys[i], vec)
		}
	}

	log.Debug().
		Int("sequences", n).
		Int("misses", len(missIdx)).
		Msg("pooled encode")
	return results, nil
}

// rowKey hashes one sequence's inputs, treating absent mask/segment grids
// as their defaults.
func (s *Service) rowKey(in encoder.InputBatch, i int) uint64 {
	var mask, segs []int
	if in.Mask != nil {
		mask = in.Mask[i]
	}
	if in.SegmentIDs != nil {
		segs = in.SegmentIDs[i]
	}
	return cache.Signature(in.IDs[i], mask, segs)
}

// subBatch selects the given rows of a batch.
func (s *Service) subBatch(in encoder.InputBatch, idx []int) encoder.InputBatch {
	sub := encoder.InputBatch{IDs: make([][]int, len(idx))}
	if in.Mask != nil {
		sub.Mask = make([][]int, len(idx))
	}
	if in.SegmentIDs != nil {
		sub.SegmentIDs = make([][]int, len(idx))
	}
	for k, i := range idx {
		sub.IDs[k] = in.IDs[i]
		if sub.Mask != nil {
			sub.Mask[k] = in.Mask[i]
		}
		if sub.SegmentIDs != nil {
			sub.SegmentIDs[k] = in.SegmentIDs[i]
		}
	}
	return sub
}

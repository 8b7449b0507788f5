package encoder

import (
	"math"
	"sync"

	"github.com/23skdu/longbow-bowyer/internal/activation"
	"github.com/23skdu/longbow-bowyer/internal/device"
	"github.com/23skdu/longbow-bowyer/internal/shape"
)

// BatchDims carries the batch and length extents that cannot be recovered
// from inputs that were pre-flattened to rank 2.
type BatchDims struct {
	Batch   int
	FromLen int
	ToLen   int
}

// Attention performs multi-headed attention from a "from" tensor (queries)
// to a "to" tensor (keys and values). With from == to this is
// self-attention.
//
// Internally every head is a [from_len, head_size] x [head_size, to_len]
// score computation on 2-D blocks of the projected tensors; the pairwise
// mask enters as an additive -10000 bias on masked score columns before the
// softmax, which drives those probabilities to zero while keeping every
// value finite.
type Attention struct {
	Backend  device.Backend
	NumHeads int
	HeadSize int

	Query *Dense
	Key   *Dense
	Value *Dense

	ProbDropout *Dropout
}

// NewAttention builds the three projections, each of output width
// numHeads*headSize, with independently initialized weights.
func NewAttention(backend device.Backend, numHeads, headSize, fromWidth, toWidth int,
	queryAct, keyAct, valueAct activation.Func, dropout *Dropout, init *initializer) *Attention {

	allHeads := numHeads * headSize
	return &Attention{
		Backend:     backend,
		NumHeads:    numHeads,
		HeadSize:    headSize,
		Query:       NewDense(backend, fromWidth, allHeads, queryAct, init),
		Key:         NewDense(backend, toWidth, allHeads, keyAct, init),
		Value:       NewDense(backend, toWidth, allHeads, valueAct, init),
		ProbDropout: dropout,
	}
}

// resolveDims extracts batch/from/to extents. Rank-3 shapes carry them;
// rank-2 inputs must supply them through dims.
func resolveDims(fromShape, toShape shape.Shape, dims *BatchDims) (batch, fromLen, toLen int, err error) {
	if err := shape.Check("from_tensor", fromShape, 2, 3); err != nil {
		return 0, 0, 0, err
	}
	if err := shape.Check("to_tensor", toShape, 2, 3); err != nil {
		return 0, 0, 0, err
	}
	if fromShape.Rank() != toShape.Rank() {
		return 0, 0, 0, shape.Errorf("from_tensor",
			"rank %d must match the rank of to_tensor (%d)", fromShape.Rank(), toShape.Rank())
	}

	if fromShape.Rank() == 3 {
		return fromShape[0], fromShape[1], toShape[1], nil
	}
	if dims == nil || dims.Batch <= 0 || dims.FromLen <= 0 || dims.ToLen <= 0 {
		return 0, 0, 0, shape.Errorf("from_tensor",
			"batch, from_len and to_len must all be specified for rank-2 inputs")
	}
	return dims.Batch, dims.FromLen, dims.ToLen, nil
}

// Forward runs the attention computation.
//
// from is [batch*from_len, from_width], to is [batch*to_len, to_width];
// mask, when non-nil, is the [batch*from_len, to_len] pairwise mask from
// BuildAttentionMask. Mask extents are the caller's responsibility. The
// result is [batch*from_len, num_heads*head_size], with the returned shape
// rank 2 or 3 according to return2D.
func (a *Attention) Forward(from, to device.Tensor, fromShape, toShape shape.Shape,
	mask device.Tensor, probDropoutRate float32, return2D bool, dims *BatchDims) (device.Tensor, shape.Shape, error) {

	batch, fromLen, toLen, err := resolveDims(fromShape, toShape, dims)
	if err != nil {
		return nil, nil, err
	}

	query := a.Query.Forward(from) // [B*F, N*H]
	key := a.Key.Forward(to)       // [B*T, N*H]
	value := a.Value.Forward(to)   // [B*T, N*H]

	allHeads := a.NumHeads * a.HeadSize
	out := a.Backend.NewTensor(batch*fromLen, allHeads, nil)

	var wg sync.WaitGroup
	for b := 0; b < batch; b++ {
		wg.Add(1)
		go func(b int) {
			defer wg.Done()
			a.attendBatch(out, query, key, value, mask, b, fromLen, toLen, probDropoutRate)
		}(b)
	}
	wg.Wait()

	a.Backend.PutTensor(query)
	a.Backend.PutTensor(key)
	a.Backend.PutTensor(value)

	if return2D {
		return out, shape.Of(batch*fromLen, allHeads), nil
	}
	return out, shape.Of(batch, fromLen, allHeads), nil
}

// attendBatch computes every head for one batch element and writes the
// per-head contexts into the output block.
func (a *Attention) attendBatch(out, query, key, value, mask device.Tensor, b, fromLen, toLen int, rate float32) {
	bias := maskBias(mask, b, fromLen, toLen)

	for h := 0; h < a.NumHeads; h++ {
		probs := a.headProbs(query, key, bias, b, h, fromLen, toLen)
		a.ProbDropout.Forward(probs, rate)

		vbh := value.Slice(b*toLen, (b+1)*toLen, h*a.HeadSize, (h+1)*a.HeadSize)
		ctx := a.Backend.GetTensor(fromLen, a.HeadSize)
		ctx.Mul(probs, vbh)

		for i := 0; i < fromLen; i++ {
			for j := 0; j < a.HeadSize; j++ {
				out.Set(b*fromLen+i, h*a.HeadSize+j, ctx.At(i, j))
			}
		}

		a.Backend.PutTensor(probs)
		a.Backend.PutTensor(vbh)
		a.Backend.PutTensor(ctx)
	}

	if bias != nil {
		a.Backend.PutTensor(bias)
	}
}

// headProbs computes the softmaxed, scaled, mask-biased attention
// probabilities for one (batch, head) pair: a [fromLen, toLen] tensor whose
// rows sum to 1.
func (a *Attention) headProbs(query, key, bias device.Tensor, b, h, fromLen, toLen int) device.Tensor {
	qbh := query.Slice(b*fromLen, (b+1)*fromLen, h*a.HeadSize, (h+1)*a.HeadSize)
	kbh := key.Slice(b*toLen, (b+1)*toLen, h*a.HeadSize, (h+1)*a.HeadSize)

	scores := a.Backend.GetTensor(fromLen, toLen)
	scores.Mul(qbh, kbh.T())
	scores.Scale(float32(1 / math.Sqrt(float64(a.HeadSize))))

	if bias != nil {
		scores.Add(bias)
	}
	scores.Softmax()

	a.Backend.PutTensor(qbh)
	a.Backend.PutTensor(kbh)
	return scores
}

// maskBias converts one batch element's {0,1} mask rows into the additive
// score bias (1-m) * -10000. Returns nil when no mask is supplied.
func maskBias(mask device.Tensor, b, fromLen, toLen int) device.Tensor {
	if mask == nil {
		return nil
	}
	bias := mask.Slice(b*fromLen, (b+1)*fromLen, 0, toLen)
	data := bias.Data()
	for i, m := range data {
		data[i] = (1 - m) * -10000
	}
	return bias
}

package encoder

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/23skdu/longbow-bowyer/internal/activation"
	"github.com/23skdu/longbow-bowyer/internal/device"
	"github.com/23skdu/longbow-bowyer/internal/shape"
)

// InputBatch is one encoder invocation's worth of token ids. Mask and
// SegmentIDs are optional; a nil mask means every position is valid and nil
// segment ids mean a single-segment input.
type InputBatch struct {
	IDs        [][]int
	Mask       [][]int
	SegmentIDs [][]int
}

// normalize validates the grids and fills in the defaults, returning the
// batch and sequence extents.
func (in *InputBatch) normalize() (batch, seq int, err error) {
	_, batch, seq, err = flattenGrid("input_ids", in.IDs)
	if err != nil {
		return 0, 0, err
	}

	if in.Mask == nil {
		in.Mask = constGrid(batch, seq, 1)
	} else if _, mb, ms, err := flattenGrid("input_mask", in.Mask); err != nil {
		return 0, 0, err
	} else if mb != batch || ms != seq {
		return 0, 0, shape.Errorf("input_mask",
			"extents [%d %d] do not match input_ids extents [%d %d]", mb, ms, batch, seq)
	}

	if in.SegmentIDs == nil {
		in.SegmentIDs = constGrid(batch, seq, 0)
	} else if _, sb, ss, err := flattenGrid("segment_ids", in.SegmentIDs); err != nil {
		return 0, 0, err
	} else if sb != batch || ss != seq {
		return 0, 0, shape.Errorf("segment_ids",
			"extents [%d %d] do not match input_ids extents [%d %d]", sb, ss, batch, seq)
	}

	return batch, seq, nil
}

func constGrid(rows, cols, v int) [][]int {
	g := make([][]int, rows)
	for i := range g {
		g[i] = make([]int, cols)
		for j := range g[i] {
			g[i][j] = v
		}
	}
	return g
}

// Model is the full bidirectional encoder: word/segment/position embeddings,
// a transformer stack, and a first-token pooler.
type Model struct {
	Config  Config
	Backend device.Backend

	Words   *EmbeddingLookup
	Post    *EmbeddingPostprocessor
	Encoder *Stack
	Pooler  *Dense

	dropout *Dropout
}

// NewModel builds a model with freshly initialized weights.
func NewModel(backend device.Backend, cfg Config) (*Model, error) {
	return NewModelSeeded(backend, cfg, time.Now().UnixNano())
}

// NewModelSeeded builds a model whose weight initialization is driven by the
// given seed, so two models built from the same seed and configuration carry
// identical parameters.
func NewModelSeeded(backend device.Backend, cfg Config, seed int64) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))
	init := newInitializer(cfg.InitializerRange, rng)
	dropout := NewDropout(rng)

	words := NewEmbeddingLookup(backend, cfg.VocabSize, cfg.HiddenSize, "input_ids", init)
	post := NewEmbeddingPostprocessor(backend, cfg, dropout, init)
	stack, err := NewStack(backend, cfg, dropout, init)
	if err != nil {
		return nil, err
	}
	pooler := NewDense(backend, cfg.HiddenSize, cfg.HiddenSize, activation.Tanh, init)

	return &Model{
		Config:  cfg,
		Backend: backend,
		Words:   words,
		Post:    post,
		Encoder: stack,
		Pooler:  pooler,
		dropout: dropout,
	}, nil
}

// Encode runs the forward pass. With training false the effective dropout
// rates are zero, so repeated calls on the same inputs are bit-identical.
func (m *Model) Encode(in InputBatch, training bool) (*Outputs, error) {
	start := time.Now()

	cfg := m.Config
	if !training {
		cfg = cfg.inference()
	}

	batch, seq, err := in.normalize()
	if err != nil {
		return nil, err
	}

	emb, ts, err := m.Words.Forward(in.IDs)
	if err != nil {
		return nil, err
	}
	if _, err := m.Post.Forward(emb, ts, in.SegmentIDs, cfg.HiddenDropoutProb); err != nil {
		return nil, err
	}

	mask, err := BuildAttentionMask(m.Backend, ts, in.Mask)
	if err != nil {
		return nil, err
	}

	layers, err := m.Encoder.Forward(emb, ts, mask, cfg.HiddenDropoutProb, cfg.AttentionProbsDropoutProb)
	if err != nil {
		return nil, err
	}
	m.Backend.PutTensor(mask)

	seqOut := emb
	if len(layers) > 0 {
		seqOut = layers[len(layers)-1]
	}

	// The pooled vector is the transformed encoding of the first token of
	// each sequence.
	first := make([]int, batch)
	for b := range first {
		first[b] = b * seq
	}
	firstTok := seqOut.Gather(first)
	pooled := m.Pooler.Forward(firstTok)
	m.Backend.PutTensor(firstTok)

	forwardDuration.Observe(time.Since(start).Seconds())
	forwardTokens.Add(float64(batch * seq))

	return &Outputs{
		embedding: emb,
		layers:    layers,
		pooled:    pooled,
		batch:     batch,
		seq:       seq,
		hidden:    cfg.HiddenSize,
	}, nil
}

// EmbeddingTable exposes the word embedding table, [vocab, hidden]. Callers
// that tie output projections to the input embedding read it from here.
func (m *Model) EmbeddingTable() device.Tensor {
	return m.Words.Table
}

// NamedParameters returns every learnable tensor keyed by a stable
// dotted-path name, e.g. "layer.3.attention.query.weight". The map is
// rebuilt per call; the tensors are the live parameters.
func (m *Model) NamedParameters() map[string]device.Tensor {
	params := map[string]device.Tensor{
		"embeddings.word.weight":     m.Words.Table,
		"embeddings.segment.weight":  m.Post.SegmentTable,
		"embeddings.position.weight": m.Post.PositionTable,
		"embeddings.norm.gamma":      m.Post.Norm.Gamma,
		"embeddings.norm.beta":       m.Post.Norm.Beta,
		"pooler.weight":              m.Pooler.Weight,
		"pooler.bias":                m.Pooler.Bias,
	}
	for i, l := range m.Encoder.Layers {
		p := fmt.Sprintf("layer.%d.", i)
		params[p+"attention.query.weight"] = l.SelfAttention.Query.Weight
		params[p+"attention.query.bias"] = l.SelfAttention.Query.Bias
		params[p+"attention.key.weight"] = l.SelfAttention.Key.Weight
		params[p+"attention.key.bias"] = l.SelfAttention.Key.Bias
		params[p+"attention.value.weight"] = l.SelfAttention.Value.Weight
		params[p+"attention.value.bias"] = l.SelfAttention.Value.Bias
		params[p+"attention.output.weight"] = l.AttnOutput.Weight
		params[p+"attention.output.bias"] = l.AttnOutput.Bias
		params[p+"attention.norm.gamma"] = l.AttnNorm.Gamma
		params[p+"attention.norm.beta"] = l.AttnNorm.Beta
		params[p+"intermediate.weight"] = l.Intermediate.Weight
		params[p+"intermediate.bias"] = l.Intermediate.Bias
		params[p+"output.weight"] = l.Output.Weight
		params[p+"output.bias"] = l.Output.Bias
		params[p+"output.norm.gamma"] = l.OutputNorm.Gamma
		params[p+"output.norm.beta"] = l.OutputNorm.Beta
	}
	return params
}

// Outputs collects every tensor a forward pass produces. Storage stays
// flattened as [batch*seq, hidden]; the accessors report the logical rank-3
// shapes.
type Outputs struct {
	embedding device.Tensor
	layers    []device.Tensor
	pooled    device.Tensor

	batch, seq, hidden int
}

// PooledOutput is the [batch, hidden] sentence-level encoding.
func (o *Outputs) PooledOutput() (device.Tensor, shape.Shape) {
	return o.pooled, shape.Of(o.batch, o.hidden)
}

// SequenceOutput is the final layer's [batch, seq, hidden] token encodings.
func (o *Outputs) SequenceOutput() (device.Tensor, shape.Shape) {
	if len(o.layers) == 0 {
		return o.embedding, o.seqShape()
	}
	return o.layers[len(o.layers)-1], o.seqShape()
}

// AllLayerOutputs returns every layer's output in order, all sharing the
// sequence shape.
func (o *Outputs) AllLayerOutputs() ([]device.Tensor, shape.Shape) {
	return o.layers, o.seqShape()
}

// EmbeddingOutput is the post-processed embedding tensor the first layer
// consumed.
func (o *Outputs) EmbeddingOutput() (device.Tensor, shape.Shape) {
	return o.embedding, o.seqShape()
}

func (o *Outputs) seqShape() shape.Shape {
	return shape.Of(o.batch, o.seq, o.hidden)
}

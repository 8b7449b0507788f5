package encoder

import (
	"strconv"
	"time"

	"github.com/23skdu/longbow-bowyer/internal/activation"
	"github.com/23skdu/longbow-bowyer/internal/device"
	"github.com/23skdu/longbow-bowyer/internal/shape"
)

// Layer is one transformer block: multi-headed self-attention followed by a
// position-wise feed-forward network, each wrapped in residual-add plus
// layer normalization.
type Layer struct {
	SelfAttention *Attention
	AttnOutput    *Dense
	AttnNorm      *LayerNorm
	Intermediate  *Dense
	Output        *Dense
	OutputNorm    *LayerNorm

	dropout *Dropout
	backend device.Backend
}

func newLayer(backend device.Backend, cfg Config, act activation.Func, dropout *Dropout, init *initializer) *Layer {
	headSize := cfg.HiddenSize / cfg.NumAttentionHeads
	return &Layer{
		SelfAttention: NewAttention(backend, cfg.NumAttentionHeads, headSize,
			cfg.HiddenSize, cfg.HiddenSize, nil, nil, nil, dropout, init),
		AttnOutput:   NewDense(backend, cfg.HiddenSize, cfg.HiddenSize, nil, init),
		AttnNorm:     NewLayerNorm(cfg.HiddenSize, backend),
		Intermediate: NewDense(backend, cfg.HiddenSize, cfg.IntermediateSize, act, init),
		Output:       NewDense(backend, cfg.IntermediateSize, cfg.HiddenSize, nil, init),
		OutputNorm:   NewLayerNorm(cfg.HiddenSize, backend),
		dropout:      dropout,
		backend:      backend,
	}
}

// forward runs one block over the flattened [batch*seq, hidden] input. The
// returned tensor is freshly allocated; the input is left untouched so the
// caller can retain it as a per-layer output.
func (l *Layer) forward(x device.Tensor, mask device.Tensor, dims BatchDims, hiddenRate, probRate float32) (device.Tensor, error) {
	rows, cols := x.Dims()
	flat := shape.Of(rows, cols)
	attnOut, _, err := l.SelfAttention.Forward(x, x, flat, flat, mask, probRate, true, &dims)
	if err != nil {
		return nil, err
	}

	attnRes := l.AttnOutput.Forward(attnOut)
	l.backend.PutTensor(attnOut)
	l.dropout.Forward(attnRes, hiddenRate)
	attnRes.Add(x)
	l.AttnNorm.Forward(attnRes)

	inter := l.Intermediate.Forward(attnRes)
	out := l.Output.Forward(inter)
	l.backend.PutTensor(inter)
	l.dropout.Forward(out, hiddenRate)
	out.Add(attnRes)
	l.OutputNorm.Forward(out)

	l.backend.PutTensor(attnRes)
	return out, nil
}

// Stack is the full transformer encoder: NumHiddenLayers identical blocks
// applied in sequence. Hidden states stay flattened as [batch*seq, hidden]
// for the entire stack; reshaping to rank 3 is metadata-only and happens at
// the model boundary.
type Stack struct {
	Layers  []*Layer
	Width   int
	backend device.Backend
}

// NewStack validates the head/width arithmetic before allocating anything:
// the hidden size splits evenly across attention heads or the stack cannot
// be built.
func NewStack(backend device.Backend, cfg Config, dropout *Dropout, init *initializer) (*Stack, error) {
	if cfg.HiddenSize%cfg.NumAttentionHeads != 0 {
		return nil, configErrorf("num_attention_heads",
			"hidden size %d is not divisible by %d heads", cfg.HiddenSize, cfg.NumAttentionHeads)
	}
	act, err := cfg.hiddenAct()
	if err != nil {
		return nil, err
	}

	s := &Stack{
		Layers:  make([]*Layer, cfg.NumHiddenLayers),
		Width:   cfg.HiddenSize,
		backend: backend,
	}
	for i := range s.Layers {
		s.Layers[i] = newLayer(backend, cfg, act, dropout, init)
	}
	return s, nil
}

// Forward pushes the embedded input through every layer. It returns the
// output of each layer in order; the last element is the final sequence
// encoding. All outputs share the input's [batch*seq, hidden] storage
// layout. The input tensor itself is not consumed.
func (s *Stack) Forward(x device.Tensor, ts shape.Shape, mask device.Tensor, hiddenRate, probRate float32) ([]device.Tensor, error) {
	if err := shape.Check("layer_input", ts, 3); err != nil {
		return nil, err
	}
	if ts[2] != s.Width {
		return nil, shape.Errorf("layer_input",
			"width %d does not match the residual width %d", ts[2], s.Width)
	}
	dims := BatchDims{Batch: ts[0], FromLen: ts[1], ToLen: ts[1]}

	outputs := make([]device.Tensor, 0, len(s.Layers))
	cur := x
	for i, layer := range s.Layers {
		start := time.Now()
		next, err := layer.forward(cur, mask, dims, hiddenRate, probRate)
		if err != nil {
			return nil, err
		}
		layerDuration.WithLabelValues(strconv.Itoa(i)).Observe(time.Since(start).Seconds())

		outputs = append(outputs, next)
		cur = next
	}
	return outputs, nil
}

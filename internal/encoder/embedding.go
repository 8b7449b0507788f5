package encoder

import (
	"github.com/23skdu/longbow-bowyer/internal/device"
	"github.com/23skdu/longbow-bowyer/internal/shape"
	"github.com/23skdu/longbow-bowyer/internal/simd"
)

// EmbeddingLookup maps integer ids to dense vectors through a learnable
// table. Two computational strategies exist: a direct row gather and a
// one-hot matrix multiply. They produce identical results for valid ids;
// the matmul form exists because some hardware prefers it.
//
// Precondition: 0 <= id < VocabSize. Out-of-range ids are not validated.
type EmbeddingLookup struct {
	Backend   device.Backend
	Table     device.Tensor // [vocab, width]
	Name      string
	VocabSize int
	Width     int
	// UseOneHot selects the one-hot matmul strategy over the gather.
	UseOneHot bool
}

func NewEmbeddingLookup(backend device.Backend, vocabSize, width int, name string, init *initializer) *EmbeddingLookup {
	l := &EmbeddingLookup{
		Backend:   backend,
		Table:     backend.NewTensor(vocabSize, width, nil),
		Name:      name,
		VocabSize: vocabSize,
		Width:     width,
	}
	init.fill(l.Table)
	return l
}

// Forward looks up a [batch, seq] id grid, returning the [batch*seq, width]
// tensor and its logical [batch, seq, width] shape.
func (l *EmbeddingLookup) Forward(ids [][]int) (device.Tensor, shape.Shape, error) {
	flat, batch, seq, err := flattenGrid(l.Name, ids)
	if err != nil {
		return nil, nil, err
	}

	var out device.Tensor
	if l.UseOneHot {
		out = oneHotMatmul(l.Backend, flat, l.VocabSize, l.Table)
	} else {
		out = l.Table.Gather(flat)
	}
	return out, shape.Of(batch, seq, l.Width), nil
}

// oneHotMatmul multiplies a one-hot expansion of ids against the table.
func oneHotMatmul(backend device.Backend, ids []int, depth int, table device.Tensor) device.Tensor {
	n := len(ids)
	oh := backend.GetTensor(n, depth)
	for i, id := range ids {
		oh.Set(i, id, 1)
	}

	_, width := table.Dims()
	out := backend.NewTensor(n, width, nil)
	out.Mul(oh, table)
	backend.PutTensor(oh)
	return out
}

// flattenGrid validates a rectangular id grid and flattens it row-major.
func flattenGrid(name string, grid [][]int) (flat []int, batch, seq int, err error) {
	batch = len(grid)
	if batch == 0 {
		return nil, 0, 0, shape.Errorf(name, "empty batch")
	}
	seq = len(grid[0])
	if seq == 0 {
		return nil, 0, 0, shape.Errorf(name, "empty sequence")
	}

	flat = make([]int, 0, batch*seq)
	for i, row := range grid {
		if len(row) != seq {
			return nil, 0, 0, shape.Errorf(name,
				"ragged grid: row %d has length %d, expected %d", i, len(row), seq)
		}
		flat = append(flat, row...)
	}
	return flat, batch, seq, nil
}

// EmbeddingPostprocessor augments word embeddings with learnable segment
// embeddings and learnable absolute-position embeddings, then normalizes
// and applies hidden dropout.
type EmbeddingPostprocessor struct {
	Backend device.Backend
	// SegmentTable is [type_vocab, width]. The segment vocabulary is always
	// small, so lookup goes through the one-hot matmul unconditionally.
	SegmentTable device.Tensor
	// PositionTable is [max_position_embeddings, width]; rows [0, seq) are
	// sliced out per pass, so growing the table never disturbs shorter
	// sequences.
	PositionTable device.Tensor
	Norm          *LayerNorm
	Dropout       *Dropout

	UseSegments  bool
	UsePositions bool
	TypeVocab    int
	MaxPositions int
	Width        int
}

func NewEmbeddingPostprocessor(backend device.Backend, cfg Config, dropout *Dropout, init *initializer) *EmbeddingPostprocessor {
	p := &EmbeddingPostprocessor{
		Backend:       backend,
		SegmentTable:  backend.NewTensor(cfg.TypeVocabSize, cfg.HiddenSize, nil),
		PositionTable: backend.NewTensor(cfg.MaxPositionEmbeddings, cfg.HiddenSize, nil),
		Norm:          NewLayerNorm(cfg.HiddenSize, backend),
		Dropout:       dropout,
		UseSegments:   true,
		UsePositions:  true,
		TypeVocab:     cfg.TypeVocabSize,
		MaxPositions:  cfg.MaxPositionEmbeddings,
		Width:         cfg.HiddenSize,
	}
	init.fill(p.SegmentTable)
	init.fill(p.PositionTable)
	return p
}

// Forward mutates t in-place (adds, normalizes, drops out) and returns it.
// segmentIDs must cover the same [batch, seq] grid as the embedded input.
func (p *EmbeddingPostprocessor) Forward(t device.Tensor, ts shape.Shape, segmentIDs [][]int, dropoutRate float32) (device.Tensor, error) {
	if err := shape.Check("embedding_output", ts, 3); err != nil {
		return nil, err
	}
	batch, seq, width := ts[0], ts[1], ts[2]

	if p.UseSegments {
		if segmentIDs == nil {
			return nil, configErrorf("segment_ids", "segment ids are required when segment embeddings are enabled")
		}
		flat, sb, ss, err := flattenGrid("segment_ids", segmentIDs)
		if err != nil {
			return nil, err
		}
		if sb != batch || ss != seq {
			return nil, shape.Errorf("segment_ids",
				"extents [%d %d] do not match input extents [%d %d]", sb, ss, batch, seq)
		}

		segEmb := oneHotMatmul(p.Backend, flat, p.TypeVocab, p.SegmentTable)
		t.Add(segEmb)
	}

	if p.UsePositions {
		if seq > p.MaxPositions {
			return nil, configErrorf("max_position_embeddings",
				"sequence length %d exceeds maximum %d", seq, p.MaxPositions)
		}

		// Position vectors carry no batch axis; broadcast the [seq, width]
		// prefix across every batch element.
		pos := p.PositionTable.Slice(0, seq, 0, width)
		posData := pos.Data()
		data := t.Data()
		for b := 0; b < batch; b++ {
			for s := 0; s < seq; s++ {
				row := data[(b*seq+s)*width : (b*seq+s+1)*width]
				simd.VecAdd(row, posData[s*width:(s+1)*width])
			}
		}
	}

	p.Norm.Forward(t)
	p.Dropout.Forward(t, dropoutRate)
	return t, nil
}

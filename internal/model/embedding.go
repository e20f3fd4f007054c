package model

import (
	"fmt"
	"math/rand"

	"github.com/convseq/convseq/internal/tensor"
)

// Embedding maps vocabulary indices to dense vectors. The padding row is
// zeroed at construction and is excluded from gradient updates by the
// training collaborator.
type Embedding struct {
	Weight *tensor.Tensor // [vocab, dim]
	PadIdx int
}

// NewEmbedding builds an embedding table with N(0, 0.1) entries and a
// zeroed padding row.
func NewEmbedding(num, dim, padIdx int, rng *rand.Rand) *Embedding {
	w := tensor.New(num, dim)
	for i := range w.Data {
		w.Data[i] = float32(rng.NormFloat64() * 0.1)
	}
	for i := padIdx * dim; i < (padIdx+1)*dim; i++ {
		w.Data[i] = 0
	}
	return &Embedding{Weight: w, PadIdx: padIdx}
}

// Forward looks up a batch of token sequences, producing [B, T, dim].
// All rows must have equal length.
func (e *Embedding) Forward(tokens [][]int) (*tensor.Tensor, error) {
	b := len(tokens)
	if b == 0 {
		return nil, fmt.Errorf("model: empty batch")
	}
	t := len(tokens[0])
	dim := e.Weight.Shape[1]
	out := tensor.New(b, t, dim)
	for bi, row := range tokens {
		if len(row) != t {
			return nil, fmt.Errorf("model: ragged batch: row %d has %d tokens, want %d", bi, len(row), t)
		}
		for ti, tok := range row {
			if tok < 0 || tok >= e.Weight.Shape[0] {
				return nil, fmt.Errorf("model: token id %d out of range for vocabulary of %d", tok, e.Weight.Shape[0])
			}
			copy(out.Data[(bi*t+ti)*dim:(bi*t+ti+1)*dim], e.Weight.Row(tok))
		}
	}
	return out, nil
}

// PositionalEmbedding adds a learned vector per sequence position. Padding
// tokens receive a zero vector; real-token positions count from the first
// non-padding token when sequences are left-padded, so a token keeps its
// position regardless of how much padding precedes it.
type PositionalEmbedding struct {
	Weight  *tensor.Tensor // [maxPositions, dim]
	PadIdx  int
	LeftPad bool
}

// NewPositionalEmbedding builds a positional table with N(0, 0.1) entries.
func NewPositionalEmbedding(maxPositions, dim, padIdx int, leftPad bool, rng *rand.Rand) *PositionalEmbedding {
	w := tensor.New(maxPositions, dim)
	for i := range w.Data {
		w.Data[i] = float32(rng.NormFloat64() * 0.1)
	}
	return &PositionalEmbedding{Weight: w, PadIdx: padIdx, LeftPad: leftPad}
}

// MaxPositions returns the longest sequence the table supports.
func (p *PositionalEmbedding) MaxPositions() int { return p.Weight.Shape[0] }

// Forward produces [B, T, dim] positional vectors for a token batch.
// A position at or beyond the table size is a bounds error carrying the
// offending value.
func (p *PositionalEmbedding) Forward(tokens [][]int) (*tensor.Tensor, error) {
	b := len(tokens)
	if b == 0 {
		return nil, fmt.Errorf("model: empty batch")
	}
	t := len(tokens[0])
	dim := p.Weight.Shape[1]
	out := tensor.New(b, t, dim)
	for bi, row := range tokens {
		if len(row) != t {
			return nil, fmt.Errorf("model: ragged batch: row %d has %d tokens, want %d", bi, len(row), t)
		}
		lead := 0
		if p.LeftPad {
			for lead < len(row) && row[lead] == p.PadIdx {
				lead++
			}
		}
		for ti, tok := range row {
			if tok == p.PadIdx {
				continue // zero vector
			}
			pos := ti - lead
			if pos < 0 || pos >= p.MaxPositions() {
				return nil, fmt.Errorf("model: position %d exceeds maximum of %d", pos, p.MaxPositions())
			}
			copy(out.Data[(bi*t+ti)*dim:(bi*t+ti+1)*dim], p.Weight.Row(pos))
		}
	}
	return out, nil
}

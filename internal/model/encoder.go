package model

import (
	"fmt"
	"math/rand"

	"github.com/convseq/convseq/internal/dict"
	"github.com/convseq/convseq/internal/tensor"
)

const sqrtHalf = float32(0.7071067811865476) // sqrt(0.5), variance-preserving residual scale

// EncoderOut is the pair of context representations the decoder attends to.
// A is the gradient-scaled convolutional output, B the residual combination
// of A with the input embedding.
type EncoderOut struct {
	A, B *tensor.Tensor // [B, S, embedDim]

	// GradScale is the forward-identity node installed at the encoder
	// output. The training collaborator applies it to gradients crossing
	// back into A.
	GradScale tensor.GradScale
}

// Encoder maps a padded source token batch to the context pair.
type Encoder struct {
	dropout        float32
	embedTokens    *Embedding
	embedPositions *PositionalEmbedding
	fc1            *Linear
	projections    []*Linear // nil entry when channel widths already match
	convolutions   []*Conv
	fc2            *Linear

	// numAttnLayers is the count of attention-bearing decoder layers,
	// recorded by the model at construction. It sets the gradient scale.
	numAttnLayers int

	rng *rand.Rand // dropout source; nil disables dropout
}

func newEncoder(cfg Config, d *dict.Dictionary, rng *rand.Rand) (*Encoder, error) {
	e := &Encoder{
		dropout:        cfg.Dropout,
		embedTokens:    NewEmbedding(d.Len(), cfg.EncoderEmbedDim, d.Pad(), rng),
		embedPositions: NewPositionalEmbedding(cfg.MaxSourcePositions, cfg.EncoderEmbedDim, d.Pad(), true, rng),
	}
	in := cfg.EncoderLayers[0].Channels
	e.fc1 = NewLinear(cfg.EncoderEmbedDim, in, cfg.Dropout, rng)
	for _, spec := range cfg.EncoderLayers {
		if spec.Kernel%2 == 0 {
			return nil, fmt.Errorf("model: encoder kernel size %d must be odd for symmetric padding", spec.Kernel)
		}
		var proj *Linear
		if in != spec.Channels {
			proj = NewLinear(in, spec.Channels, 0, rng)
		}
		e.projections = append(e.projections, proj)
		e.convolutions = append(e.convolutions, NewConv(in, spec.Channels*2, spec.Kernel, (spec.Kernel-1)/2, cfg.Dropout, rng))
		in = spec.Channels
	}
	e.fc2 = NewLinear(in, cfg.EncoderEmbedDim, 0, rng)
	return e, nil
}

// MaxPositions returns the longest source sequence the encoder supports.
func (e *Encoder) MaxPositions() int { return e.embedPositions.MaxPositions() }

// Forward encodes a batch of padded source sequences.
func (e *Encoder) Forward(src [][]int) (*EncoderOut, error) {
	tok, err := e.embedTokens.Forward(src)
	if err != nil {
		return nil, err
	}
	pos, err := e.embedPositions.Forward(src)
	if err != nil {
		return nil, err
	}
	tensor.Add(tok, pos)
	tensor.Dropout(tok, e.dropout, e.rng)
	inputEmbedding := tok.Clone()

	// project to convolution width, then to time-major for the stack
	x := e.fc1.Forward(tok)
	x = tensor.Transpose01(x)

	for i, conv := range e.convolutions {
		residual := x
		if proj := e.projections[i]; proj != nil {
			residual = proj.Forward(x)
		}
		if e.rng != nil && e.dropout > 0 {
			x = x.Clone() // residual may alias x
			tensor.Dropout(x, e.dropout, e.rng)
		}
		x = conv.Forward(x)
		x = tensor.GLU(x)
		tensor.Add(x, residual)
		tensor.Scale(x, sqrtHalf)
	}

	x = tensor.Transpose01(x)
	a := e.fc2.Forward(x)

	scale := float32(1)
	if e.numAttnLayers > 0 {
		scale = 1 / (2 * float32(e.numAttnLayers))
	}
	gs := tensor.GradScale{Scale: scale}
	a = gs.Forward(a)

	b := a.Clone()
	tensor.Add(b, inputEmbedding)
	tensor.Scale(b, sqrtHalf)

	return &EncoderOut{A: a, B: b, GradScale: gs}, nil
}

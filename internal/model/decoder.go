package model

import (
	"math/rand"

	"github.com/convseq/convseq/internal/dict"
	"github.com/convseq/convseq/internal/tensor"
)

// Decoder autoregressively produces target tokens while attending to the
// encoder context pair. The same forward computation serves two modes:
// Forward processes a whole target prefix at once (training and parallel
// scoring), ForwardStep processes only the newest token against a
// caller-owned IncrementalState (generation).
type Decoder struct {
	dropout        float32
	embedTokens    *Embedding
	embedPositions *PositionalEmbedding
	fc1            *Linear
	projections    []*Linear // nil entry when channel widths already match
	convolutions   []*CausalConv
	attention      []*AttentionLayer // nil entry for layers without attention
	fc2            *Linear
	fc3            *Linear
	numAttn        int

	rng *rand.Rand // dropout source; nil disables dropout
}

func newDecoder(cfg Config, d *dict.Dictionary, rng *rand.Rand) (*Decoder, error) {
	attnLayout := cfg.attentionLayout()

	dec := &Decoder{
		dropout:        cfg.Dropout,
		embedTokens:    NewEmbedding(d.Len(), cfg.DecoderEmbedDim, d.Pad(), rng),
		embedPositions: NewPositionalEmbedding(cfg.MaxTargetPositions, cfg.DecoderEmbedDim, d.Pad(), false, rng),
	}
	in := cfg.DecoderLayers[0].Channels
	dec.fc1 = NewLinear(cfg.DecoderEmbedDim, in, cfg.Dropout, rng)
	for i, spec := range cfg.DecoderLayers {
		var proj *Linear
		if in != spec.Channels {
			proj = NewLinear(in, spec.Channels, 0, rng)
		}
		dec.projections = append(dec.projections, proj)
		dec.convolutions = append(dec.convolutions, NewCausalConv(in, spec.Channels*2, spec.Kernel, cfg.Dropout, rng))
		var attn *AttentionLayer
		if attnLayout[i] {
			attn = newAttentionLayer(spec.Channels, cfg.DecoderEmbedDim, rng)
			dec.numAttn++
		}
		dec.attention = append(dec.attention, attn)
		in = spec.Channels
	}
	dec.fc2 = NewLinear(in, cfg.DecoderOutEmbedDim, 0, rng)
	if cfg.ShareEmbed {
		// Validate has already checked the widths match.
		dec.fc3 = TiedLinear(dec.embedTokens.Weight)
	} else {
		dec.fc3 = NewLinear(cfg.DecoderOutEmbedDim, d.Len(), cfg.Dropout, rng)
	}
	return dec, nil
}

// NumAttentionLayers returns how many decoder layers attend to the encoder.
func (d *Decoder) NumAttentionLayers() int { return d.numAttn }

// MaxPositions returns the longest target sequence the decoder supports.
func (d *Decoder) MaxPositions() int { return d.embedPositions.MaxPositions() }

// SetBMM installs a batched-multiply strategy on every attention layer.
// Used to switch to the beam-aware multiply before a generation run.
func (d *Decoder) SetBMM(f BMMFunc) {
	for _, a := range d.attention {
		if a != nil {
			a.SetBMM(f)
		}
	}
}

// Forward scores a whole target prefix at once. tokens is the padded target
// history [B, T]. It returns vocabulary logits [B, T, vocab] and the
// attention weights [B, T, S] averaged over attention-bearing layers, or
// nil when no layer attends.
func (d *Decoder) Forward(tokens [][]int, enc *EncoderOut) (*tensor.Tensor, *tensor.Tensor, error) {
	return d.forward(tokens, enc, nil)
}

// ForwardStep scores only the newest token of the prefix, reusing the
// cached per-layer state. tokens still carries the full prefix so positions
// stay consistent; only its last column is evaluated. The logits are
// [B, 1, vocab] and the attention weights [B, 1, S].
func (d *Decoder) ForwardStep(tokens [][]int, enc *EncoderOut, state *IncrementalState) (*tensor.Tensor, *tensor.Tensor, error) {
	logits, attn, err := d.forward(tokens, enc, state)
	if err == nil {
		state.steps++
	}
	return logits, attn, err
}

func (d *Decoder) forward(tokens [][]int, enc *EncoderOut, state *IncrementalState) (*tensor.Tensor, *tensor.Tensor, error) {
	incremental := state != nil

	// positions are computed over the full prefix even in incremental mode,
	// then sliced down with the input to just the newest token
	positions, err := d.embedPositions.Forward(tokens)
	if err != nil {
		return nil, nil, err
	}
	if incremental {
		tail := make([][]int, len(tokens))
		for i, row := range tokens {
			tail[i] = row[len(row)-1:]
		}
		tokens = tail
		positions = lastTimestep(positions)
	}

	x, err := d.embedTokens.Forward(tokens)
	if err != nil {
		return nil, nil, err
	}
	tensor.Add(x, positions)
	tensor.Dropout(x, d.dropout, d.rng)
	targetEmbedding := x.Clone()

	// split and transpose the encoder output; the transposed copy of A is
	// cached across the steps of a generation run
	encA := state.cachedEncoderA(enc.A)
	encB := enc.B

	batch := len(tokens)

	x = d.fc1.Forward(x)
	if !incremental {
		x = tensor.Transpose01(x) // B x T x C -> T x B x C
	}

	var avgAttn *tensor.Tensor
	for i, conv := range d.convolutions {
		residual := x
		if proj := d.projections[i]; proj != nil {
			residual = proj.Forward(x)
		}

		if d.rng != nil && d.dropout > 0 {
			x = x.Clone() // residual may alias x
			tensor.Dropout(x, d.dropout, d.rng)
		}
		if incremental {
			x = conv.ForwardStep(x, state.history(i, batch, d.convolutions))
		} else {
			x = conv.Forward(x)
		}
		x = tensor.GLU(x)

		if attn := d.attention[i]; attn != nil {
			if !incremental {
				x = tensor.Transpose01(x)
			}
			var scores *tensor.Tensor
			x, scores = attn.Forward(x, targetEmbedding, encA, encB)
			tensor.Scale(scores, 1/float32(d.numAttn))
			if avgAttn == nil {
				avgAttn = scores
			} else {
				tensor.Add(avgAttn, scores)
			}
			if !incremental {
				x = tensor.Transpose01(x)
			}
		}

		tensor.Add(x, residual)
		tensor.Scale(x, sqrtHalf)
	}

	if !incremental {
		x = tensor.Transpose01(x) // T x B x C -> B x T x C
	}

	x = d.fc2.Forward(x)
	tensor.Dropout(x, d.dropout, d.rng)
	logits := d.fc3.Forward(x)

	return logits, avgAttn, nil
}

// lastTimestep slices a [B, T, C] tensor down to [B, 1, C].
func lastTimestep(t *tensor.Tensor) *tensor.Tensor {
	b, steps, c := t.Shape[0], t.Shape[1], t.Shape[2]
	out := tensor.New(b, 1, c)
	for bi := 0; bi < b; bi++ {
		copy(out.Data[bi*c:(bi+1)*c], t.Data[(bi*steps+steps-1)*c:(bi*steps+steps)*c])
	}
	return out
}

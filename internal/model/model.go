// Package model implements a convolutional sequence-to-sequence translation
// architecture: a gated convolutional encoder producing a pair of context
// representations, and an incremental decoder that attends to them while
// generating target tokens.
package model

import (
	"fmt"
	"math/rand"

	"github.com/convseq/convseq/internal/dict"
	"github.com/convseq/convseq/internal/tensor"
)

// Model owns exactly one encoder and one decoder. The count of
// attention-bearing decoder layers is recorded at construction and fixes
// the encoder's gradient-scaling factor.
type Model struct {
	Config  Config
	SrcDict *dict.Dictionary
	TgtDict *dict.Dictionary

	Encoder *Encoder
	Decoder *Decoder
}

// New builds a model with freshly initialised weights. The seed makes
// initialisation reproducible.
func New(cfg Config, srcDict, tgtDict *dict.Dictionary, seed int64) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	enc, err := newEncoder(cfg, srcDict, rng)
	if err != nil {
		return nil, err
	}
	dec, err := newDecoder(cfg, tgtDict, rng)
	if err != nil {
		return nil, err
	}
	enc.numAttnLayers = dec.numAttn
	return &Model{
		Config:  cfg,
		SrcDict: srcDict,
		TgtDict: tgtDict,
		Encoder: enc,
		Decoder: dec,
	}, nil
}

// EnableDropout turns on dropout with the given seed. Used by the training
// collaborator; generation and scoring leave dropout off.
func (m *Model) EnableDropout(seed int64) {
	rng := rand.New(rand.NewSource(seed))
	m.Encoder.rng = rng
	m.Decoder.rng = rng
}

// DisableDropout returns the model to deterministic evaluation behaviour.
func (m *Model) DisableDropout() {
	m.Encoder.rng = nil
	m.Decoder.rng = nil
}

// Param is one named parameter tensor. Vector parameters (magnitudes,
// biases) are exposed as rank-1 tensors sharing the layer's backing memory,
// so loading into them updates the layer.
type Param struct {
	Name   string
	Tensor *tensor.Tensor
}

func vec(v []float32) *tensor.Tensor { return tensor.FromData(v, len(v)) }

func linearParams(prefix string, l *Linear) []Param {
	if l.Tied() {
		// weight aliases the embedding table, persisted once under its
		// own name
		return []Param{{prefix + ".bias", vec(l.Bias)}}
	}
	return []Param{
		{prefix + ".v", l.V},
		{prefix + ".g", vec(l.G)},
		{prefix + ".bias", vec(l.Bias)},
	}
}

// Parameters enumerates every persisted tensor in a stable order.
func (m *Model) Parameters() []Param {
	var ps []Param
	add := func(name string, t *tensor.Tensor) {
		ps = append(ps, Param{name, t})
	}

	e := m.Encoder
	add("encoder.embed_tokens.weight", e.embedTokens.Weight)
	add("encoder.embed_positions.weight", e.embedPositions.Weight)
	ps = append(ps, linearParams("encoder.fc1", e.fc1)...)
	for i, conv := range e.convolutions {
		if proj := e.projections[i]; proj != nil {
			ps = append(ps, linearParams(fmt.Sprintf("encoder.projections.%d", i), proj)...)
		}
		prefix := fmt.Sprintf("encoder.convolutions.%d", i)
		add(prefix+".v", conv.V)
		add(prefix+".g", vec(conv.G))
		add(prefix+".bias", vec(conv.Bias))
	}
	ps = append(ps, linearParams("encoder.fc2", e.fc2)...)

	d := m.Decoder
	add("decoder.embed_tokens.weight", d.embedTokens.Weight)
	add("decoder.embed_positions.weight", d.embedPositions.Weight)
	ps = append(ps, linearParams("decoder.fc1", d.fc1)...)
	for i, conv := range d.convolutions {
		if proj := d.projections[i]; proj != nil {
			ps = append(ps, linearParams(fmt.Sprintf("decoder.projections.%d", i), proj)...)
		}
		prefix := fmt.Sprintf("decoder.convolutions.%d", i)
		add(prefix+".v", conv.V)
		add(prefix+".g", vec(conv.G))
		add(prefix+".bias", vec(conv.Bias))
		if attn := d.attention[i]; attn != nil {
			ps = append(ps, linearParams(fmt.Sprintf("decoder.attention.%d.in_proj", i), attn.inProj)...)
			ps = append(ps, linearParams(fmt.Sprintf("decoder.attention.%d.out_proj", i), attn.outProj)...)
		}
	}
	ps = append(ps, linearParams("decoder.fc2", d.fc2)...)
	ps = append(ps, linearParams("decoder.fc3", d.fc3)...)
	return ps
}

// Refresh rematerializes every weight-normalized layer's effective weight.
// Call after loading parameter values.
func (m *Model) Refresh() {
	e := m.Encoder
	e.fc1.Refresh()
	for i, conv := range e.convolutions {
		if proj := e.projections[i]; proj != nil {
			proj.Refresh()
		}
		conv.Refresh()
	}
	e.fc2.Refresh()

	d := m.Decoder
	d.fc1.Refresh()
	for i, conv := range d.convolutions {
		if proj := d.projections[i]; proj != nil {
			proj.Refresh()
		}
		conv.Refresh()
		if attn := d.attention[i]; attn != nil {
			attn.inProj.Refresh()
			attn.outProj.Refresh()
		}
	}
	d.fc2.Refresh()
	d.fc3.Refresh()
}

// SetDecoderConvMagnitude replaces the weight-norm magnitude vector of
// decoder convolution i wholesale. The checkpoint loader uses this for
// states that predate the output-channel weight-norm convention, whose
// magnitude vectors have kernel length instead of channel length.
func (m *Model) SetDecoderConvMagnitude(i int, g []float32) error {
	if i < 0 || i >= len(m.Decoder.convolutions) {
		return fmt.Errorf("model: decoder convolution index %d out of range", i)
	}
	conv := m.Decoder.convolutions[i]
	if len(g) != conv.Kernel && len(g) != conv.OutChannels {
		return fmt.Errorf("model: magnitude length %d matches neither kernel %d nor %d output channels",
			len(g), conv.Kernel, conv.OutChannels)
	}
	conv.G = g
	return nil
}

// MigrateDecoderWeightNorm re-derives every decoder convolution's
// weight-norm parameters along the output-channel axis. States persisted
// before version 2 decomposed them along the kernel axis. Idempotent: the
// effective weights never change.
func (m *Model) MigrateDecoderWeightNorm() {
	for _, conv := range m.Decoder.convolutions {
		conv.RederiveWeightNorm(axisKernel)
	}
}

// Package generate drives the decoder one token at a time to translate
// source sequences. It owns the per-run incremental state; beam search is
// deliberately out of scope, but the per-step scores and the state's
// Reorder operation are the surface a beam driver would build on.
package generate

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/convseq/convseq/internal/logger"
	"github.com/convseq/convseq/internal/model"
)

// Options configures a Generator.
type Options struct {
	// MaxLen caps generated target length; 0 means the decoder's maximum.
	MaxLen  int
	Sampler SamplerConfig
}

// Generator translates batches of source token sequences.
type Generator struct {
	m       *model.Model
	sampler *Sampler
	maxLen  int
	log     logger.Logger
}

// New builds a generator for the model.
func New(m *model.Model, opts Options, log logger.Logger) *Generator {
	maxLen := opts.MaxLen
	if maxLen <= 0 || maxLen > m.Decoder.MaxPositions() {
		maxLen = m.Decoder.MaxPositions()
	}
	if log == nil {
		log = logger.Default()
	}
	return &Generator{
		m:       m,
		sampler: NewSampler(opts.Sampler),
		maxLen:  maxLen,
		log:     log,
	}
}

// Generate translates a batch of source token sequences into target token
// sequences (without the trailing end-of-sentence). Each call is one
// generation run with its own incremental state; cancellation is honored
// at step boundaries.
func (g *Generator) Generate(ctx context.Context, src [][]int) ([][]int, error) {
	if len(src) == 0 {
		return nil, fmt.Errorf("generate: empty batch")
	}
	runID := uuid.NewString()
	log := g.log.With("run", runID)

	enc, err := g.m.Encoder.Forward(src)
	if err != nil {
		return nil, err
	}

	eos := g.m.TgtDict.Eos()
	batch := len(src)
	state := model.NewIncrementalState()

	// the decoder is primed with end-of-sentence, mirroring the target
	// shift used during scoring
	prefix := make([][]int, batch)
	for i := range prefix {
		prefix[i] = []int{eos}
	}
	finished := make([]bool, batch)
	done := 0

	for step := 0; step < g.maxLen && done < batch; step++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		logits, _, err := g.m.Decoder.ForwardStep(prefix, enc, state)
		if err != nil {
			return nil, err
		}
		for b := 0; b < batch; b++ {
			if finished[b] {
				// keep the batch shape stable; the extra pad steps are
				// discarded below
				prefix[b] = append(prefix[b], g.m.TgtDict.Pad())
				continue
			}
			row := logits.Data[b*logits.Dim(2) : (b+1)*logits.Dim(2)]
			next := g.sampler.Sample(row)
			prefix[b] = append(prefix[b], next)
			if next == eos {
				finished[b] = true
				done++
			}
		}
	}

	out := make([][]int, batch)
	for b, row := range prefix {
		seq := row[1:] // drop the priming token
		for i, tok := range seq {
			if tok == eos {
				seq = seq[:i]
				break
			}
		}
		out[b] = seq
	}
	log.Debug("generation run finished", "batch", batch, "steps", state.Steps())
	return out, nil
}

// Translate tokenizes text with the source dictionary, generates, and
// renders the result with the target dictionary.
func (g *Generator) Translate(ctx context.Context, text string) (string, error) {
	src := g.m.SrcDict.Encode(text)
	out, err := g.Generate(ctx, [][]int{src})
	if err != nil {
		return "", err
	}
	return g.m.TgtDict.Decode(out[0]), nil
}

package model

import (
	"fmt"

	"github.com/convseq/convseq/internal/tensor"
)

// IncrementalState is the caller-owned cache for one generation run. It
// holds the transposed copy of the encoder's context A, computed once per
// run, and per-layer convolution input histories sufficient to produce the
// next causal convolution output without revisiting earlier timesteps.
//
// One state belongs to exactly one run: create it when generation starts,
// pass it to every ForwardStep, and discard it when the run ends or a new
// encoder output is supplied. It must not be shared across concurrent runs.
type IncrementalState struct {
	encA *tensor.Tensor // [B, embed, S], transposed once per run

	// convHistory[i] is [B, K-1, Cin] for decoder layer i, oldest step
	// first; nil for kernel-size-1 layers, which need no history.
	convHistory []*tensor.Tensor

	batch int // batch size the caches were built for; 0 until first step
	steps int
}

// NewIncrementalState returns an empty state for a fresh generation run.
func NewIncrementalState() *IncrementalState {
	return &IncrementalState{}
}

// Steps reports how many decoding steps have been taken with this state.
func (s *IncrementalState) Steps() int { return s.steps }

// Reorder permutes the batch axis of every cached tensor with one uniform
// gather: entry i of every cache becomes the previous entry order[i]. Beam
// consumers call this after pruning or rescoring hypotheses; order may be
// shorter than the cached batch (dropped hypotheses) but never longer, and
// every index must refer to an existing batch row. All entries are
// validated before any is mutated, so a failed reorder leaves the state
// untouched.
func (s *IncrementalState) Reorder(order []int) error {
	if s.batch == 0 {
		return fmt.Errorf("model: reorder of empty incremental state")
	}
	if len(order) == 0 || len(order) > s.batch {
		return fmt.Errorf("model: reorder length %d incompatible with cached batch size %d", len(order), s.batch)
	}
	for _, idx := range order {
		if idx < 0 || idx >= s.batch {
			return fmt.Errorf("model: reorder index %d out of range for cached batch size %d", idx, s.batch)
		}
	}

	var encA *tensor.Tensor
	if s.encA != nil {
		var err error
		encA, err = s.encA.Gather0(order)
		if err != nil {
			return err
		}
	}
	hist := make([]*tensor.Tensor, len(s.convHistory))
	for i, h := range s.convHistory {
		if h == nil {
			continue
		}
		g, err := h.Gather0(order)
		if err != nil {
			return err
		}
		hist[i] = g
	}

	s.encA = encA
	s.convHistory = hist
	s.batch = len(order)
	return nil
}

// cachedEncoderA returns the transposed context A, computing and caching it
// on first use. A nil state (full-sequence mode) computes it fresh each call.
func (s *IncrementalState) cachedEncoderA(a *tensor.Tensor) *tensor.Tensor {
	if s == nil {
		return tensor.Transpose12(a)
	}
	if s.encA == nil {
		s.encA = tensor.Transpose12(a)
	}
	return s.encA
}

// history returns the convolution input history for layer i, allocating the
// zeroed buffers on the first step of the run.
func (s *IncrementalState) history(layer, batch int, convs []*CausalConv) *tensor.Tensor {
	if s.convHistory == nil {
		s.convHistory = make([]*tensor.Tensor, len(convs))
		for i, c := range convs {
			if c.Kernel > 1 {
				s.convHistory[i] = tensor.New(batch, c.Kernel-1, c.InChannels)
			}
		}
		s.batch = batch
	}
	return s.convHistory[layer]
}

package generate

import (
	"math"
	"math/rand"
	"sort"
)

// SamplerConfig configures next-token selection. Temperature <= 0 selects
// greedy decoding.
type SamplerConfig struct {
	Seed        int64
	Temperature float32
	TopK        int
}

// Sampler turns a vocabulary logit row into a token id.
type Sampler struct {
	rng    *rand.Rand
	cfg    SamplerConfig
	greedy bool
}

// NewSampler returns a sampler with the provided configuration.
func NewSampler(cfg SamplerConfig) *Sampler {
	greedy := cfg.Temperature <= 0
	if cfg.Temperature <= 0 {
		cfg.Temperature = 1
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	return &Sampler{
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		cfg:    cfg,
		greedy: greedy,
	}
}

// Sample picks the next token from one logit row.
func (s *Sampler) Sample(logits []float32) int {
	if s.greedy {
		return argmax(logits)
	}

	k := s.cfg.TopK
	if k > len(logits) {
		k = len(logits)
	}
	idx := make([]int, len(logits))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return logits[idx[a]] > logits[idx[b]] })
	idx = idx[:k]

	// softmax over the kept logits at the configured temperature
	maxv := logits[idx[0]]
	probs := make([]float64, k)
	var sum float64
	for i, id := range idx {
		p := math.Exp(float64((logits[id] - maxv) / s.cfg.Temperature))
		probs[i] = p
		sum += p
	}
	r := s.rng.Float64() * sum
	for i, p := range probs {
		r -= p
		if r <= 0 {
			return idx[i]
		}
	}
	return idx[k-1]
}

func argmax(v []float32) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}

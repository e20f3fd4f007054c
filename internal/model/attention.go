package model

import (
	"math"
	"math/rand"

	"github.com/convseq/convseq/internal/tensor"
)

// BMMFunc is the batched matrix multiply strategy used by attention layers.
// The default is tensor.BMM; generation runs may install a beam-aware
// variant that must produce numerically identical results.
type BMMFunc func(a, b *tensor.Tensor) *tensor.Tensor

// BeamableMM returns a batched multiply specialised for beam decoding: all
// hypotheses of one source sentence share the same encoder context, so a
// [B*beam, 1, K] query can be folded to [B, beam, K] and multiplied against
// one context per sentence. Inputs that do not match the single-step beam
// layout fall back to the plain multiply.
func BeamableMM(beam int) BMMFunc {
	return func(a, b *tensor.Tensor) *tensor.Tensor {
		if beam <= 0 || a.Shape[1] != 1 || a.Shape[0]%beam != 0 || a.Shape[0] != b.Shape[0] {
			return tensor.BMM(a, b)
		}
		bsz := a.Shape[0] / beam
		k, n := a.Shape[2], b.Shape[2]

		folded := tensor.FromData(a.Data, bsz, beam, k)
		ctx := tensor.New(bsz, k, n)
		stride := k * n
		for i := 0; i < bsz; i++ {
			copy(ctx.Data[i*stride:(i+1)*stride], b.Data[i*beam*stride:i*beam*stride+stride])
		}
		out := tensor.BMM(folded, ctx)
		return tensor.FromData(out.Data, bsz*beam, 1, n)
	}
}

// AttentionLayer computes content-based attention from the decoder state to
// the encoder context pair.
type AttentionLayer struct {
	inProj  *Linear // convolution width -> embedding width
	outProj *Linear // embedding width -> convolution width
	bmm     BMMFunc
}

func newAttentionLayer(convChannels, embedDim int, rng *rand.Rand) *AttentionLayer {
	return &AttentionLayer{
		inProj:  NewLinear(convChannels, embedDim, 0, rng),
		outProj: NewLinear(embedDim, convChannels, 0, rng),
		bmm:     tensor.BMM,
	}
}

// SetBMM installs a batched-multiply strategy. Called once before a
// generation run begins, never mid-run.
func (a *AttentionLayer) SetBMM(f BMMFunc) {
	if f == nil {
		f = tensor.BMM
	}
	a.bmm = f
}

// Forward attends from x [B, T, conv] to the encoder contexts. encA is the
// time-major-transposed key matrix [B, embed, S] and encB the value matrix
// [B, S, embed]. It returns the updated hidden state [B, T, conv] and the
// normalized attention weights [B, T, S].
func (a *AttentionLayer) Forward(x, targetEmbedding, encA, encB *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor) {
	residual := x

	q := a.inProj.Forward(x)
	tensor.Add(q, targetEmbedding)
	tensor.Scale(q, sqrtHalf)

	scores := a.bmm(q, encA)
	tensor.Softmax(scores)
	attn := scores

	ctx := a.bmm(attn, encB)

	// compensate for source-length dependent averaging variance
	s := encB.Dim(1)
	tensor.Scale(ctx, float32(float64(s)*math.Sqrt(1/float64(s))))

	out := a.outProj.Forward(ctx)
	tensor.Add(out, residual)
	tensor.Scale(out, sqrtHalf)
	return out, attn
}

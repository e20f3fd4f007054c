package model

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/convseq/convseq/internal/tensor"
)

// Weight-normalized layers. Each weight is stored as a direction tensor V
// and a per-slice magnitude G along a fixed axis; the effective weight
// W[i] = G[i] * V[i] / |V[i]| is materialized whenever V or G change.
// The axis is part of the persisted format: axis 0 for linear layers and
// encoder convolutions, the output-channel axis for decoder convolutions.

const (
	// weight-norm axes by layer kind
	axisKernel     = 0 // encoder ConvTBC and linear layers
	axisOutChannel = 2 // decoder causal convolutions
)

// sliceNorms computes the L2 norm of each slice of w along the given axis.
func sliceNorms(w *tensor.Tensor, axis int) []float32 {
	n := w.Dim(axis)
	sums := make([]float64, n)
	switch {
	case len(w.Shape) == 2 && axis == 0:
		in := w.Shape[1]
		for i := 0; i < n; i++ {
			for _, v := range w.Data[i*in : (i+1)*in] {
				sums[i] += float64(v) * float64(v)
			}
		}
	case len(w.Shape) == 3 && axis == 0:
		stride := w.Shape[1] * w.Shape[2]
		for i := 0; i < n; i++ {
			for _, v := range w.Data[i*stride : (i+1)*stride] {
				sums[i] += float64(v) * float64(v)
			}
		}
	case len(w.Shape) == 3 && axis == 2:
		for off, v := range w.Data {
			i := off % n
			sums[i] += float64(v) * float64(v)
		}
	default:
		panic(fmt.Sprintf("model: unsupported weight-norm axis %d for shape %v", axis, w.Shape))
	}
	out := make([]float32, n)
	for i, s := range sums {
		out[i] = float32(math.Sqrt(s))
	}
	return out
}

// materializeWeightNorm computes W = G * V/|V| along the given axis.
func materializeWeightNorm(v *tensor.Tensor, g []float32, axis int) *tensor.Tensor {
	norms := sliceNorms(v, axis)
	scale := make([]float32, len(norms))
	for i, nv := range norms {
		if nv == 0 {
			scale[i] = 0
			continue
		}
		scale[i] = g[i] / nv
	}
	w := v.Clone()
	n := v.Dim(axis)
	switch {
	case axis == 0:
		stride := len(v.Data) / n
		for i := 0; i < n; i++ {
			s := scale[i]
			for j := i * stride; j < (i+1)*stride; j++ {
				w.Data[j] *= s
			}
		}
	case axis == 2:
		for off := range w.Data {
			w.Data[off] *= scale[off%n]
		}
	}
	return w
}

// decomposeWeightNorm splits an effective weight into direction and
// magnitude along the given axis. Since V is a copy of W, the materialized
// product reproduces W exactly.
func decomposeWeightNorm(w *tensor.Tensor, axis int) (*tensor.Tensor, []float32) {
	return w.Clone(), sliceNorms(w, axis)
}

// Linear is a weight-normalized affine layer applied over the last
// dimension of its input.
type Linear struct {
	In, Out int

	V    *tensor.Tensor // [Out, In] direction
	G    []float32      // per-output magnitude
	Bias []float32
	W    *tensor.Tensor // effective weight

	// tied marks W as an alias of the token embedding table; such layers
	// carry no weight-norm parameters of their own.
	tied bool
}

// NewLinear builds a weight-normalized linear layer. Weights are drawn from
// a zero-mean normal with std sqrt((1-dropout)/fanIn); the bias starts at
// zero.
func NewLinear(in, out int, dropout float32, rng *rand.Rand) *Linear {
	std := math.Sqrt(float64(1-dropout) / float64(in))
	w := tensor.New(out, in)
	for i := range w.Data {
		w.Data[i] = float32(rng.NormFloat64() * std)
	}
	v, g := decomposeWeightNorm(w, axisKernel)
	return &Linear{
		In:   in,
		Out:  out,
		V:    v,
		G:    g,
		Bias: make([]float32, out),
		W:    materializeWeightNorm(v, g, axisKernel),
	}
}

// TiedLinear builds a plain projection whose weight is the given embedding
// table itself. Mutating the table is observable through this layer.
func TiedLinear(weight *tensor.Tensor) *Linear {
	return &Linear{
		In:   weight.Shape[1],
		Out:  weight.Shape[0],
		Bias: make([]float32, weight.Shape[0]),
		W:    weight,
		tied: true,
	}
}

// Tied reports whether this layer shares its weight with an embedding table.
func (l *Linear) Tied() bool { return l.tied }

// Refresh recomputes the effective weight after V or G changed (e.g. after
// loading a checkpoint).
func (l *Linear) Refresh() {
	if l.tied {
		return
	}
	l.W = materializeWeightNorm(l.V, l.G, axisKernel)
}

// Forward applies the layer over the last dimension of x.
func (l *Linear) Forward(x *tensor.Tensor) *tensor.Tensor {
	last := len(x.Shape) - 1
	if x.Shape[last] != l.In {
		panic(fmt.Sprintf("model: linear expects %d input features, got %v", l.In, x.Shape))
	}
	shape := append([]int(nil), x.Shape...)
	shape[last] = l.Out
	out := tensor.New(shape...)
	rows := len(x.Data) / l.In
	for r := 0; r < rows; r++ {
		src := x.Data[r*l.In : (r+1)*l.In]
		dst := out.Data[r*l.Out : (r+1)*l.Out]
		copy(dst, l.Bias)
		for i := 0; i < l.Out; i++ {
			wrow := l.W.Data[i*l.In : (i+1)*l.In]
			var sum float32
			for j, wv := range wrow {
				sum += wv * src[j]
			}
			dst[i] += sum
		}
	}
	return out
}

// Conv is a weight-normalized time-major convolution with symmetric padding,
// used by the encoder.
type Conv struct {
	InChannels, OutChannels, Kernel, Pad int

	V    *tensor.Tensor // [K, Cin, Cout]
	G    []float32      // axis 0: one magnitude per kernel position
	Bias []float32
	W    *tensor.Tensor
}

// convInit draws convolution weights with std sqrt(4*(1-dropout)/(k*cin)).
// The factor 4 compensates the gated linear unit halving the effective
// output channels.
func convInit(k, cin, cout int, dropout float32, rng *rand.Rand) *tensor.Tensor {
	std := math.Sqrt(4 * float64(1-dropout) / float64(k*cin))
	w := tensor.New(k, cin, cout)
	for i := range w.Data {
		w.Data[i] = float32(rng.NormFloat64() * std)
	}
	return w
}

// NewConv builds an encoder convolution. cout includes the doubling for the
// gated linear unit.
func NewConv(cin, cout, kernel, pad int, dropout float32, rng *rand.Rand) *Conv {
	w := convInit(kernel, cin, cout, dropout, rng)
	v, g := decomposeWeightNorm(w, axisKernel)
	return &Conv{
		InChannels:  cin,
		OutChannels: cout,
		Kernel:      kernel,
		Pad:         pad,
		V:           v,
		G:           g,
		Bias:        make([]float32, cout),
		W:           materializeWeightNorm(v, g, axisKernel),
	}
}

// Refresh recomputes the effective weight from V and G.
func (c *Conv) Refresh() {
	c.W = materializeWeightNorm(c.V, c.G, axisKernel)
}

// Forward convolves a time-major [T, B, Cin] input.
func (c *Conv) Forward(x *tensor.Tensor) *tensor.Tensor {
	return tensor.ConvTBC(x, c.W, c.Bias, c.Pad)
}

// CausalConv is the weight-normalized decoder convolution. In full-sequence
// mode it pads by kernel-1 and trims the future timesteps afterwards; in
// incremental mode it consumes a per-layer history of the last kernel-1
// input steps instead.
type CausalConv struct {
	InChannels, OutChannels, Kernel int

	V    *tensor.Tensor // [K, Cin, Cout]
	G    []float32      // axis 2: one magnitude per output channel
	Bias []float32
	W    *tensor.Tensor
}

// NewCausalConv builds a decoder convolution. cout includes the doubling for
// the gated linear unit.
func NewCausalConv(cin, cout, kernel int, dropout float32, rng *rand.Rand) *CausalConv {
	w := convInit(kernel, cin, cout, dropout, rng)
	v, g := decomposeWeightNorm(w, axisOutChannel)
	return &CausalConv{
		InChannels:  cin,
		OutChannels: cout,
		Kernel:      kernel,
		V:           v,
		G:           g,
		Bias:        make([]float32, cout),
		W:           materializeWeightNorm(v, g, axisOutChannel),
	}
}

// Refresh recomputes the effective weight from V and G.
func (c *CausalConv) Refresh() {
	c.W = materializeWeightNorm(c.V, c.G, axisOutChannel)
}

// RederiveWeightNorm re-decomposes the weight-norm parameters along the
// output-channel axis for states persisted before that convention was fixed.
// The effective weight is unchanged, so the upgrade is idempotent.
func (c *CausalConv) RederiveWeightNorm(oldAxis int) {
	w := materializeWeightNorm(c.V, c.G, oldAxis)
	c.V, c.G = decomposeWeightNorm(w, axisOutChannel)
	c.W = materializeWeightNorm(c.V, c.G, axisOutChannel)
}

// Forward convolves a time-major [T, B, Cin] input causally: output t sees
// inputs up to and including t only.
func (c *CausalConv) Forward(x *tensor.Tensor) *tensor.Tensor {
	out := tensor.ConvTBC(x, c.W, c.Bias, c.Kernel-1)
	return tensor.RemoveFutureTimesteps(out, x.Shape[0])
}

// ForwardStep convolves a single new timestep. x is batch-major [B, 1, Cin]
// and history holds the previous kernel-1 input steps as [B, K-1, Cin],
// oldest first. The history is shifted and the new input appended, so the
// call both reads and advances the cache.
func (c *CausalConv) ForwardStep(x *tensor.Tensor, history *tensor.Tensor) *tensor.Tensor {
	b := x.Shape[0]
	cin, cout, k := c.InChannels, c.OutChannels, c.Kernel
	out := tensor.New(b, 1, cout)
	for bi := 0; bi < b; bi++ {
		dst := out.Data[bi*cout : (bi+1)*cout]
		copy(dst, c.Bias)
		for j := 0; j < k; j++ {
			var src []float32
			if j < k-1 {
				src = history.Data[(bi*(k-1)+j)*cin : (bi*(k-1)+j+1)*cin]
			} else {
				src = x.Data[bi*cin : (bi+1)*cin]
			}
			wj := c.W.Data[j*cin*cout : (j+1)*cin*cout]
			for ci, xv := range src {
				if xv == 0 {
					continue
				}
				wrow := wj[ci*cout : (ci+1)*cout]
				for o := range wrow {
					dst[o] += xv * wrow[o]
				}
			}
		}
	}
	if k > 1 {
		// shift left, append the new step
		for bi := 0; bi < b; bi++ {
			row := history.Data[bi*(k-1)*cin : (bi+1)*(k-1)*cin]
			copy(row, row[cin:])
			copy(row[(k-2)*cin:], x.Data[bi*cin:(bi+1)*cin])
		}
	}
	return out
}

package tensor

import (
	"fmt"
	"math"
	"math/rand"
)

// BMM computes a batched matrix multiply of a [B, M, K] by b [B, K, N],
// producing [B, M, N].
func BMM(a, b *Tensor) *Tensor {
	if len(a.Shape) != 3 || len(b.Shape) != 3 {
		panic("tensor: BMM requires rank-3 inputs")
	}
	if a.Shape[0] != b.Shape[0] || a.Shape[2] != b.Shape[1] {
		panic(fmt.Sprintf("tensor: BMM shape mismatch %v x %v", a.Shape, b.Shape))
	}
	bs, m, k, n := a.Shape[0], a.Shape[1], a.Shape[2], b.Shape[2]
	out := New(bs, m, n)
	for bi := 0; bi < bs; bi++ {
		ao := bi * m * k
		bo := bi * k * n
		oo := bi * m * n
		for i := 0; i < m; i++ {
			for kk := 0; kk < k; kk++ {
				av := a.Data[ao+i*k+kk]
				if av == 0 {
					continue
				}
				brow := b.Data[bo+kk*n : bo+kk*n+n]
				orow := out.Data[oo+i*n : oo+i*n+n]
				for j := range brow {
					orow[j] += av * brow[j]
				}
			}
		}
	}
	return out
}

// MatVec computes dst = w*x for a [out, in] weight, matching the layout used
// by linear layers. dst must have length out.
func MatVec(dst []float32, w *Tensor, x []float32) {
	out, in := w.Shape[0], w.Shape[1]
	for i := 0; i < out; i++ {
		row := w.Data[i*in : (i+1)*in]
		var sum float32
		for j, v := range row {
			sum += v * x[j]
		}
		dst[i] = sum
	}
}

// Softmax normalises the last dimension of t in place using the
// max-subtraction form so large scores do not overflow.
func Softmax(t *Tensor) {
	n := t.Shape[len(t.Shape)-1]
	for off := 0; off < len(t.Data); off += n {
		row := t.Data[off : off+n]
		maxv := row[0]
		for _, v := range row[1:] {
			if v > maxv {
				maxv = v
			}
		}
		var sum float64
		for i, v := range row {
			e := math.Exp(float64(v - maxv))
			row[i] = float32(e)
			sum += e
		}
		inv := float32(1 / sum)
		for i := range row {
			row[i] *= inv
		}
	}
}

// GLU applies a gated linear unit over the last dimension: the channel axis
// is split in half and the first half is gated by the sigmoid of the second.
func GLU(t *Tensor) *Tensor {
	n := t.Shape[len(t.Shape)-1]
	if n%2 != 0 {
		panic(fmt.Sprintf("tensor: GLU requires even channel count, got %d", n))
	}
	h := n / 2
	shape := append([]int(nil), t.Shape...)
	shape[len(shape)-1] = h
	out := New(shape...)
	rows := len(t.Data) / n
	for r := 0; r < rows; r++ {
		in := t.Data[r*n : (r+1)*n]
		dst := out.Data[r*h : (r+1)*h]
		for i := 0; i < h; i++ {
			gate := float32(1 / (1 + math.Exp(float64(-in[h+i]))))
			dst[i] = in[i] * gate
		}
	}
	return out
}

// Transpose01 swaps the first two dimensions of a rank-3 tensor, converting
// between batch-major [B, T, C] and time-major [T, B, C] layouts.
func Transpose01(t *Tensor) *Tensor {
	if len(t.Shape) != 3 {
		panic("tensor: Transpose01 requires rank-3 input")
	}
	d0, d1, c := t.Shape[0], t.Shape[1], t.Shape[2]
	out := New(d1, d0, c)
	for i := 0; i < d0; i++ {
		for j := 0; j < d1; j++ {
			copy(out.Data[(j*d0+i)*c:(j*d0+i+1)*c], t.Data[(i*d1+j)*c:(i*d1+j+1)*c])
		}
	}
	return out
}

// Transpose12 swaps the last two dimensions of a rank-3 tensor.
func Transpose12(t *Tensor) *Tensor {
	if len(t.Shape) != 3 {
		panic("tensor: Transpose12 requires rank-3 input")
	}
	b, d1, d2 := t.Shape[0], t.Shape[1], t.Shape[2]
	out := New(b, d2, d1)
	for bi := 0; bi < b; bi++ {
		for i := 0; i < d1; i++ {
			for j := 0; j < d2; j++ {
				out.Data[(bi*d2+j)*d1+i] = t.Data[(bi*d1+i)*d2+j]
			}
		}
	}
	return out
}

// Scale multiplies every element of t by s in place.
func Scale(t *Tensor, s float32) {
	for i := range t.Data {
		t.Data[i] *= s
	}
}

// Add adds src to dst element-wise in place.
func Add(dst, src *Tensor) {
	if len(dst.Data) != len(src.Data) {
		panic(fmt.Sprintf("tensor: Add size mismatch %v vs %v", dst.Shape, src.Shape))
	}
	for i, v := range src.Data {
		dst.Data[i] += v
	}
}

// Dropout zeroes elements of t with probability p and rescales the survivors
// by 1/(1-p) (inverted dropout). A nil rng or p <= 0 leaves t untouched, so
// inference paths can call it unconditionally.
func Dropout(t *Tensor, p float32, rng *rand.Rand) {
	if p <= 0 || rng == nil {
		return
	}
	scale := 1 / (1 - p)
	for i := range t.Data {
		if rng.Float32() < p {
			t.Data[i] = 0
		} else {
			t.Data[i] *= scale
		}
	}
}

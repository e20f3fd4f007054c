package tensor

import "fmt"

// ConvTBC computes a 1-D convolution over a time-major input.
//
// x is [T, B, Cin], w is [K, Cin, Cout] and pad is the number of implicit
// zero timesteps added on each side of the input. The output is
// [T + 2*pad - K + 1, B, Cout] with
//
//	out[t, b, o] = bias[o] + sum_j sum_ci w[j, ci, o] * x[t+j-pad, b, ci]
//
// where out-of-range input timesteps contribute zero. The time-major layout
// keeps each timestep's batch rows contiguous so one convolution call covers
// the whole batch.
func ConvTBC(x, w *Tensor, bias []float32, pad int) *Tensor {
	if len(x.Shape) != 3 || len(w.Shape) != 3 {
		panic("tensor: ConvTBC requires rank-3 input and weight")
	}
	tIn, b, cin := x.Shape[0], x.Shape[1], x.Shape[2]
	k, wcin, cout := w.Shape[0], w.Shape[1], w.Shape[2]
	if cin != wcin {
		panic(fmt.Sprintf("tensor: ConvTBC channel mismatch: input %d, weight %d", cin, wcin))
	}
	if len(bias) != cout {
		panic(fmt.Sprintf("tensor: ConvTBC bias length %d, want %d", len(bias), cout))
	}
	tOut := tIn + 2*pad - k + 1
	if tOut < 0 {
		tOut = 0
	}
	out := New(tOut, b, cout)
	for t := 0; t < tOut; t++ {
		for bi := 0; bi < b; bi++ {
			dst := out.Data[(t*b+bi)*cout : (t*b+bi+1)*cout]
			copy(dst, bias)
			for j := 0; j < k; j++ {
				ti := t + j - pad
				if ti < 0 || ti >= tIn {
					continue
				}
				src := x.Data[(ti*b+bi)*cin : (ti*b+bi+1)*cin]
				wj := w.Data[j*cin*cout : (j+1)*cin*cout]
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
	}
	return out
}

// RemoveFutureTimesteps trims the trailing timesteps a symmetrically padded
// causal convolution leaks past the sequence boundary, keeping the first
// keep timesteps. This is what turns a pad=K-1 convolution into a strictly
// causal one in full-sequence mode.
func RemoveFutureTimesteps(x *Tensor, keep int) *Tensor {
	if len(x.Shape) != 3 {
		panic("tensor: RemoveFutureTimesteps requires rank-3 input")
	}
	if x.Shape[0] == keep {
		return x
	}
	if x.Shape[0] < keep {
		panic(fmt.Sprintf("tensor: cannot keep %d of %d timesteps", keep, x.Shape[0]))
	}
	b, c := x.Shape[1], x.Shape[2]
	return FromData(x.Data[:keep*b*c], keep, b, c)
}

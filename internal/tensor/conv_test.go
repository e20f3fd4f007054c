package tensor

import "testing"

// convTBCReference is a direct transcription of the definition in the
// ConvTBC doc comment, with no zero-skip fast path.
func convTBCReference(x, w *Tensor, bias []float32, pad int) *Tensor {
	tIn, b, cin := x.Shape[0], x.Shape[1], x.Shape[2]
	k, cout := w.Shape[0], w.Shape[2]
	tOut := tIn + 2*pad - k + 1
	out := New(tOut, b, cout)
	for t := 0; t < tOut; t++ {
		for bi := 0; bi < b; bi++ {
			for o := 0; o < cout; o++ {
				sum := bias[o]
				for j := 0; j < k; j++ {
					ti := t + j - pad
					if ti < 0 || ti >= tIn {
						continue
					}
					for ci := 0; ci < cin; ci++ {
						sum += w.At3(j, ci, o) * x.At3(ti, bi, ci)
					}
				}
				out.Set3(t, bi, o, sum)
			}
		}
	}
	return out
}

func TestConvTBCMatchesReference(t *testing.T) {
	cases := []struct {
		name             string
		tIn, b, cin      int
		k, cout, pad     int
	}{
		{"same_pad", 5, 2, 3, 3, 4, 1},
		{"causal_pad", 4, 2, 3, 3, 4, 2},
		{"no_pad", 6, 1, 2, 3, 2, 0},
		{"kernel_one", 4, 3, 2, 1, 5, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			x := New(tc.tIn, tc.b, tc.cin)
			w := New(tc.k, tc.cin, tc.cout)
			bias := make([]float32, tc.cout)
			fillTestData(x.Data, 0.3)
			fillTestData(w.Data, 0.2)
			fillTestData(bias, 0.1)

			got := ConvTBC(x, w, bias, tc.pad)
			want := convTBCReference(x, w, bias, tc.pad)
			if !got.ShapeEquals(want.Shape...) {
				t.Fatalf("shape: got %v want %v", got.Shape, want.Shape)
			}
			compareSlices(t, got.Data, want.Data, 1e-5)
		})
	}
}

func TestConvTBCBiasOnly(t *testing.T) {
	x := New(3, 1, 2)
	w := New(1, 2, 2)
	got := ConvTBC(x, w, []float32{1.5, -2}, 0)
	for ti := 0; ti < 3; ti++ {
		if got.At3(ti, 0, 0) != 1.5 || got.At3(ti, 0, 1) != -2 {
			t.Fatalf("timestep %d: got %v", ti, got.Data)
		}
	}
}

func TestRemoveFutureTimesteps(t *testing.T) {
	x := New(5, 2, 3)
	fillTestData(x.Data, 1)

	got := RemoveFutureTimesteps(x, 3)
	if !got.ShapeEquals(3, 2, 3) {
		t.Fatalf("shape: got %v", got.Shape)
	}
	compareSlices(t, got.Data, x.Data[:3*2*3], 0)

	if same := RemoveFutureTimesteps(x, 5); same != x {
		t.Fatal("keeping all timesteps should return the input")
	}
}

func TestGradScale(t *testing.T) {
	g := GradScale{Scale: 0.25}

	x := FromData([]float32{1, 2, 3}, 3)
	if got := g.Forward(x); got != x {
		t.Fatal("forward must be the identity")
	}

	grad := FromData([]float32{4, 8, -2}, 3)
	g.Backward(grad)
	compareSlices(t, grad.Data, []float32{1, 2, -0.5}, 1e-6)
}

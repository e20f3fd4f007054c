// Package tensor provides the dense float32 array primitives the translation
// model is built from: batched matrix multiply, time-major 1-D convolution,
// gated linear units and the layout transposes between batch-major and
// time-major tensors.
//
// Tensors are row-major and do not carry stride metadata; every op produces
// contiguous output. Shape errors are programmer mistakes and panic, matching
// the behaviour of Go slice indexing.
package tensor

import "fmt"

// Tensor is a dense row-major N-dimensional array of float32 values.
type Tensor struct {
	Shape []int
	Data  []float32
}

// New allocates a zero-initialised tensor with the given shape.
func New(shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		if d < 0 {
			panic("tensor: negative dimension")
		}
		n *= d
	}
	return &Tensor{
		Shape: append([]int(nil), shape...),
		Data:  make([]float32, n),
	}
}

// FromData wraps an existing slice as a tensor. The data length must match
// the product of the shape.
func FromData(data []float32, shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if n != len(data) {
		panic(fmt.Sprintf("tensor: data length %d does not match shape %v", len(data), shape))
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: data}
}

// Size returns the total number of elements.
func (t *Tensor) Size() int { return len(t.Data) }

// Dim returns the size of the i-th dimension.
func (t *Tensor) Dim(i int) int { return t.Shape[i] }

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	c := New(t.Shape...)
	copy(c.Data, t.Data)
	return c
}

// At3 reads element (i, j, k) of a rank-3 tensor.
func (t *Tensor) At3(i, j, k int) float32 {
	return t.Data[(i*t.Shape[1]+j)*t.Shape[2]+k]
}

// Set3 writes element (i, j, k) of a rank-3 tensor.
func (t *Tensor) Set3(i, j, k int, v float32) {
	t.Data[(i*t.Shape[1]+j)*t.Shape[2]+k] = v
}

// Row returns a view of row i of a rank-2 tensor. Modifications write
// through to the tensor.
func (t *Tensor) Row(i int) []float32 {
	c := t.Shape[1]
	return t.Data[i*c : (i+1)*c]
}

// ShapeEquals reports whether the tensor has exactly the given shape.
func (t *Tensor) ShapeEquals(shape ...int) bool {
	if len(t.Shape) != len(shape) {
		return false
	}
	for i, d := range shape {
		if t.Shape[i] != d {
			return false
		}
	}
	return true
}

// Gather0 returns a new tensor whose slices along dimension 0 are taken from
// t in the given order: out[i] = t[order[i]]. Used to reorder the batch axis
// of cached decoding state. Indices out of range are an error, not a panic,
// because they originate from caller-supplied beam bookkeeping.
func (t *Tensor) Gather0(order []int) (*Tensor, error) {
	if len(t.Shape) == 0 {
		return nil, fmt.Errorf("tensor: gather on rank-0 tensor")
	}
	b := t.Shape[0]
	for _, idx := range order {
		if idx < 0 || idx >= b {
			return nil, fmt.Errorf("tensor: gather index %d out of range for batch size %d", idx, b)
		}
	}
	stride := 1
	for _, d := range t.Shape[1:] {
		stride *= d
	}
	shape := append([]int{len(order)}, t.Shape[1:]...)
	out := New(shape...)
	for i, idx := range order {
		copy(out.Data[i*stride:(i+1)*stride], t.Data[idx*stride:(idx+1)*stride])
	}
	return out, nil
}

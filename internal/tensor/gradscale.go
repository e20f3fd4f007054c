package tensor

// GradScale is a forward-identity, backward-multiply node. The forward pass
// returns its input unchanged; a training loop propagating gradients across
// the boundary applies Backward to rescale them.
//
// The encoder installs one of these at its output so that each
// attention-consuming decoder layer injects a bounded fraction of gradient
// back into the encoder stack.
type GradScale struct {
	Scale float32
}

// Forward returns x unchanged. The scale never affects forward values.
func (g GradScale) Forward(x *Tensor) *Tensor { return x }

// Backward multiplies a gradient flowing through this node in place.
func (g GradScale) Backward(grad *Tensor) {
	Scale(grad, g.Scale)
}

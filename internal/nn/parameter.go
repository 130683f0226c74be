package nn

import "github.com/captiva-ml/captiva/internal/tensor"

// Parameter represents a trainable parameter in a network.
//
// Parameters are tensors that receive gradients during training. They
// typically represent weights and biases of layers.
type Parameter[B tensor.Backend] struct {
	name   string
	tensor *tensor.Tensor[B]
	grad   *tensor.Tensor[B]
	frozen bool
}

// NewParameter creates a new trainable parameter. The gradient is
// allocated on the first backward pass.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[B]) *Parameter[B] {
	return &Parameter[B]{name: name, tensor: t}
}

// Name returns the parameter name.
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[B] {
	return p.tensor
}

// Grad returns the gradient tensor, or nil before the first backward pass.
func (p *Parameter[B]) Grad() *tensor.Tensor[B] {
	return p.grad
}

// SetGrad sets the gradient tensor. Called by the trainer after walking
// the tape.
func (p *Parameter[B]) SetGrad(grad *tensor.Tensor[B]) {
	p.grad = grad
}

// ZeroGrad clears the gradient. Call before each training iteration to
// avoid accumulating gradients across steps.
func (p *Parameter[B]) ZeroGrad() {
	p.grad = nil
}

// Freeze marks the parameter as non-trainable. Optimizers skip frozen
// parameters. Used when the encoder backbone is held fixed.
func (p *Parameter[B]) Freeze() {
	p.frozen = true
}

// Unfreeze marks the parameter as trainable again.
func (p *Parameter[B]) Unfreeze() {
	p.frozen = false
}

// Frozen reports whether the parameter is excluded from updates.
func (p *Parameter[B]) Frozen() bool {
	return p.frozen
}

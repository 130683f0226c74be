package ops

import "github.com/captiva-ml/captiva/internal/tensor"

// ReLUOp represents the rectified linear unit: output = max(0, x).
//
// Backward: the gradient passes through where the input was positive and
// is zero elsewhere.
type ReLUOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	slope  float32 // 0 for plain ReLU, negative-side slope for LeakyReLU
}

// NewReLUOp creates a plain ReLU operation.
func NewReLUOp(x, output *tensor.RawTensor) *ReLUOp {
	return &ReLUOp{input: x, output: output}
}

// NewLeakyReLUOp creates a LeakyReLU operation with the given
// negative-side slope.
func NewLeakyReLUOp(x, output *tensor.RawTensor, slope float32) *ReLUOp {
	return &ReLUOp{input: x, output: output, slope: slope}
}

// Inputs returns [x].
func (op *ReLUOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns the activated tensor.
func (op *ReLUOp) Output() *tensor.RawTensor { return op.output }

// Backward gates the output gradient by the activation region.
func (op *ReLUOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	grad := tensor.Empty(op.input.Shape())
	gd, od, xd := grad.Data(), outputGrad.Data(), op.input.Data()
	for i := range gd {
		if xd[i] > 0 {
			gd[i] = od[i]
		} else {
			gd[i] = od[i] * op.slope
		}
	}
	return []*tensor.RawTensor{grad}
}

// SigmoidOp represents the logistic function: output = 1 / (1 + exp(-x)).
//
// Backward: d(σ(x))/dx = σ(x) * (1 - σ(x)), using the cached output.
type SigmoidOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewSigmoidOp creates a new SigmoidOp.
func NewSigmoidOp(x, output *tensor.RawTensor) *SigmoidOp {
	return &SigmoidOp{input: x, output: output}
}

// Inputs returns [x].
func (op *SigmoidOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns σ(x).
func (op *SigmoidOp) Output() *tensor.RawTensor { return op.output }

// Backward computes outputGrad * σ(x) * (1 - σ(x)).
func (op *SigmoidOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	grad := tensor.Empty(op.input.Shape())
	gd, od, sd := grad.Data(), outputGrad.Data(), op.output.Data()
	for i := range gd {
		gd[i] = od[i] * sd[i] * (1 - sd[i])
	}
	return []*tensor.RawTensor{grad}
}

// TanhOp represents the hyperbolic tangent activation.
//
// Backward: d(tanh(x))/dx = 1 - tanh²(x), using the cached output.
type TanhOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewTanhOp creates a new TanhOp.
func NewTanhOp(x, output *tensor.RawTensor) *TanhOp {
	return &TanhOp{input: x, output: output}
}

// Inputs returns [x].
func (op *TanhOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns tanh(x).
func (op *TanhOp) Output() *tensor.RawTensor { return op.output }

// Backward computes outputGrad * (1 - tanh²(x)).
func (op *TanhOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	grad := tensor.Empty(op.input.Shape())
	gd, od, td := grad.Data(), outputGrad.Data(), op.output.Data()
	for i := range gd {
		gd[i] = od[i] * (1 - td[i]*td[i])
	}
	return []*tensor.RawTensor{grad}
}

// SoftmaxOp represents softmax along the last dimension.
//
// Backward uses the simplified Jacobian-vector product for each row:
//
//	∂L/∂x_j = s_j * (∂L/∂s_j - Σ_i ∂L/∂s_i * s_i)
type SoftmaxOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor // cached softmax output
}

// NewSoftmaxOp creates a new SoftmaxOp.
func NewSoftmaxOp(x, output *tensor.RawTensor) *SoftmaxOp {
	return &SoftmaxOp{input: x, output: output}
}

// Inputs returns [x].
func (op *SoftmaxOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns softmax(x).
func (op *SoftmaxOp) Output() *tensor.RawTensor { return op.output }

// Backward computes the softmax gradient row by row over the trailing
// axis, treating all leading dimensions as batch.
func (op *SoftmaxOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	shape := op.input.Shape()
	cols := shape[len(shape)-1]
	rows := op.input.NumElements() / cols

	grad := tensor.Empty(shape)
	gd, od, sd := grad.Data(), outputGrad.Data(), op.output.Data()

	for r := 0; r < rows; r++ {
		base := r * cols
		dot := float32(0)
		for j := 0; j < cols; j++ {
			dot += od[base+j] * sd[base+j]
		}
		for j := 0; j < cols; j++ {
			gd[base+j] = sd[base+j] * (od[base+j] - dot)
		}
	}
	return []*tensor.RawTensor{grad}
}

package ops

import "github.com/captiva-ml/captiva/internal/tensor"

// ReshapeOp represents a shape change with shared data.
//
// Backward: the gradient is viewed back under the input's shape.
type ReshapeOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewReshapeOp creates a new ReshapeOp.
func NewReshapeOp(x, output *tensor.RawTensor) *ReshapeOp {
	return &ReshapeOp{input: x, output: output}
}

// Inputs returns [x].
func (op *ReshapeOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns the reshaped view.
func (op *ReshapeOp) Output() *tensor.RawTensor { return op.output }

// Backward reshapes the output gradient back to the input shape.
func (op *ReshapeOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{outputGrad.View(op.input.Shape())}
}

// TransposeOp represents a dimension permutation.
//
// Backward: the gradient is permuted back through the inverse permutation.
type TransposeOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	axes   []int
}

// NewTransposeOp creates a new TransposeOp. axes must be the resolved
// permutation actually applied in the forward pass.
func NewTransposeOp(x, output *tensor.RawTensor, axes []int) *TransposeOp {
	return &TransposeOp{input: x, output: output, axes: axes}
}

// Inputs returns [x].
func (op *TransposeOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns the permuted tensor.
func (op *TransposeOp) Output() *tensor.RawTensor { return op.output }

// Backward applies the inverse permutation to the output gradient.
func (op *TransposeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inverse := make([]int, len(op.axes))
	for i, ax := range op.axes {
		inverse[ax] = i
	}
	return []*tensor.RawTensor{backend.Transpose(outputGrad, inverse...)}
}

// ExpandOp represents broadcasting to a larger shape.
//
// Backward: gradients from expanded positions are summed back into the
// original size-1 dimensions.
type ExpandOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewExpandOp creates a new ExpandOp.
func NewExpandOp(x, output *tensor.RawTensor) *ExpandOp {
	return &ExpandOp{input: x, output: output}
}

// Inputs returns [x].
func (op *ExpandOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns the expanded tensor.
func (op *ExpandOp) Output() *tensor.RawTensor { return op.output }

// Backward sums the output gradient over the broadcast dimensions.
func (op *ExpandOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{reduceGrad(outputGrad, op.input.Shape())}
}

// CatOp represents concatenation along a dimension.
//
// Backward: the output gradient is split along the same dimension, one
// slice per input.
type CatOp struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
	dim    int
}

// NewCatOp creates a new CatOp. dim must already be normalized.
func NewCatOp(inputs []*tensor.RawTensor, output *tensor.RawTensor, dim int) *CatOp {
	return &CatOp{inputs: inputs, output: output, dim: dim}
}

// Inputs returns the concatenated tensors in order.
func (op *CatOp) Inputs() []*tensor.RawTensor { return op.inputs }

// Output returns the concatenation.
func (op *CatOp) Output() *tensor.RawTensor { return op.output }

// Backward splits the output gradient back into per-input slices.
func (op *CatOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	outShape := op.output.Shape()
	outer := 1
	for d := 0; d < op.dim; d++ {
		outer *= outShape[d]
	}
	inner := 1
	for d := op.dim + 1; d < len(outShape); d++ {
		inner *= outShape[d]
	}
	outRow := outShape[op.dim] * inner

	gd := outputGrad.Data()
	grads := make([]*tensor.RawTensor, len(op.inputs))
	offset := 0
	for i, in := range op.inputs {
		grad := tensor.Empty(in.Shape())
		block := in.Shape()[op.dim] * inner
		igd := grad.Data()
		for o := 0; o < outer; o++ {
			copy(igd[o*block:(o+1)*block], gd[o*outRow+offset:o*outRow+offset+block])
		}
		grads[i] = grad
		offset += block
	}
	return grads
}

package ops

import "github.com/captiva-ml/captiva/internal/tensor"

// MatMulOp represents 2D matrix multiplication: output = a @ b.
//
// Backward:
//
//	gradA = outputGrad @ bᵀ
//	gradB = aᵀ @ outputGrad
type MatMulOp struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

// NewMatMulOp creates a new MatMulOp.
func NewMatMulOp(a, b, output *tensor.RawTensor) *MatMulOp {
	return &MatMulOp{inputs: []*tensor.RawTensor{a, b}, output: output}
}

// Inputs returns [a, b].
func (op *MatMulOp) Inputs() []*tensor.RawTensor { return op.inputs }

// Output returns a @ b.
func (op *MatMulOp) Output() *tensor.RawTensor { return op.output }

// Backward computes input gradients via transposed matmuls on the wrapped
// backend.
func (op *MatMulOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	gradA := backend.MatMul(outputGrad, backend.Transpose(b))
	gradB := backend.MatMul(backend.Transpose(a), outputGrad)
	return []*tensor.RawTensor{gradA, gradB}
}

// BatchMatMulOp represents batched matrix multiplication over 3D or 4D
// tensors, multiplying the trailing two dimensions.
type BatchMatMulOp struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

// NewBatchMatMulOp creates a new BatchMatMulOp.
func NewBatchMatMulOp(a, b, output *tensor.RawTensor) *BatchMatMulOp {
	return &BatchMatMulOp{inputs: []*tensor.RawTensor{a, b}, output: output}
}

// Inputs returns [a, b].
func (op *BatchMatMulOp) Inputs() []*tensor.RawTensor { return op.inputs }

// Output returns the batched product.
func (op *BatchMatMulOp) Output() *tensor.RawTensor { return op.output }

// Backward mirrors the 2D case per batch, transposing the trailing two
// dimensions.
func (op *BatchMatMulOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	gradA := backend.BatchMatMul(outputGrad, transposeLastTwo(b, backend))
	gradB := backend.BatchMatMul(transposeLastTwo(a, backend), outputGrad)
	return []*tensor.RawTensor{gradA, gradB}
}

// transposeLastTwo swaps the trailing two axes of a 3D or 4D tensor.
func transposeLastTwo(x *tensor.RawTensor, backend tensor.Backend) *tensor.RawTensor {
	nd := len(x.Shape())
	axes := make([]int, nd)
	for i := range axes {
		axes[i] = i
	}
	axes[nd-2], axes[nd-1] = axes[nd-1], axes[nd-2]
	return backend.Transpose(x, axes...)
}

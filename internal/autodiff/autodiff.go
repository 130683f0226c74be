// Package autodiff implements automatic differentiation using the decorator
// pattern.
//
// Backend wraps any tensor.Backend implementation and adds gradient
// tracking through a GradientTape.
//
// Architecture:
//   - Decorator pattern: Backend[B] wraps any tensor.Backend
//   - GradientTape: records operations during the forward pass
//   - Operation interface: each op implements its own backward pass
//   - Reverse-mode AD: gradients computed by walking the tape in reverse
//
// Usage:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	x := tensor.FromSlice([]float32{2.0}, tensor.Shape{1}, backend)
//	y := x.Mul(x) // y = x²
//	grads := autodiff.Backward(y, backend)
//	fmt.Println(grads[x.Raw()]) // dy/dx = 2x = 4.0
package autodiff

import (
	"github.com/captiva-ml/captiva/internal/autodiff/ops"
	"github.com/captiva-ml/captiva/internal/tensor"
)

// Backend wraps a tensor.Backend and adds automatic differentiation.
// It implements tensor.Backend itself, recording each operation on a
// GradientTape while delegating the forward computation to the wrapped
// backend.
type Backend[B tensor.Backend] struct {
	inner B
	tape  *GradientTape
}

// New creates a new autodiff Backend wrapping the given backend.
func New[B tensor.Backend](backend B) *Backend[B] {
	return &Backend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control: starting/stopping
// recording, clearing between iterations, inspecting recorded operations.
func (b *Backend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend for direct access.
func (b *Backend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *Backend[B]) Name() string {
	return "autodiff(" + b.inner.Name() + ")"
}

// Add performs element-wise addition and records the operation.
func (b *Backend[B]) Add(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Add(x, y)
	b.tape.Record(ops.NewAddOp(x, y, result))
	return result
}

// Sub performs element-wise subtraction and records the operation.
func (b *Backend[B]) Sub(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Sub(x, y)
	b.tape.Record(ops.NewSubOp(x, y, result))
	return result
}

// Mul performs element-wise multiplication and records the operation.
func (b *Backend[B]) Mul(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Mul(x, y)
	b.tape.Record(ops.NewMulOp(x, y, result))
	return result
}

// Div performs element-wise division and records the operation.
func (b *Backend[B]) Div(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Div(x, y)
	b.tape.Record(ops.NewDivOp(x, y, result))
	return result
}

// MatMul performs matrix multiplication and records the operation.
func (b *Backend[B]) MatMul(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.MatMul(x, y)
	b.tape.Record(ops.NewMatMulOp(x, y, result))
	return result
}

// BatchMatMul performs batched matrix multiplication and records the
// operation.
func (b *Backend[B]) BatchMatMul(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.BatchMatMul(x, y)
	b.tape.Record(ops.NewBatchMatMulOp(x, y, result))
	return result
}

// MulScalar multiplies by a constant and records the operation.
func (b *Backend[B]) MulScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	result := b.inner.MulScalar(x, scalar)
	b.tape.Record(ops.NewMulScalarOp(x, result, scalar))
	return result
}

// AddScalar adds a constant and records the operation.
func (b *Backend[B]) AddScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	result := b.inner.AddScalar(x, scalar)
	b.tape.Record(ops.NewAddScalarOp(x, result))
	return result
}

// Exp computes the element-wise exponential and records the operation.
func (b *Backend[B]) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Exp(x)
	b.tape.Record(ops.NewExpOp(x, result))
	return result
}

// Log computes the element-wise natural logarithm and records the
// operation. Input values must be positive.
func (b *Backend[B]) Log(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Log(x)
	b.tape.Record(ops.NewLogOp(x, result))
	return result
}

// Lgamma computes the element-wise log-gamma and records the operation.
func (b *Backend[B]) Lgamma(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Lgamma(x)
	b.tape.Record(ops.NewLgammaOp(x, result))
	return result
}

// ReLU applies the rectified linear unit and records the operation.
func (b *Backend[B]) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.ReLU(x)
	b.tape.Record(ops.NewReLUOp(x, result))
	return result
}

// LeakyReLU applies LeakyReLU and records the operation.
func (b *Backend[B]) LeakyReLU(x *tensor.RawTensor, slope float32) *tensor.RawTensor {
	result := b.inner.LeakyReLU(x, slope)
	b.tape.Record(ops.NewLeakyReLUOp(x, result, slope))
	return result
}

// Sigmoid applies the logistic function and records the operation.
func (b *Backend[B]) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Sigmoid(x)
	b.tape.Record(ops.NewSigmoidOp(x, result))
	return result
}

// Tanh applies the hyperbolic tangent and records the operation.
func (b *Backend[B]) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Tanh(x)
	b.tape.Record(ops.NewTanhOp(x, result))
	return result
}

// Softmax normalizes along the given dimension and records the operation.
func (b *Backend[B]) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	result := b.inner.Softmax(x, dim)
	b.tape.Record(ops.NewSoftmaxOp(x, result))
	return result
}

// Sum reduces the whole tensor to one element and records the operation.
func (b *Backend[B]) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Sum(x)
	b.tape.Record(ops.NewSumOp(x, result))
	return result
}

// SumDim sums along a dimension and records the operation.
func (b *Backend[B]) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	result := b.inner.SumDim(x, dim, keepDim)
	b.tape.Record(ops.NewSumDimOp(x, result, x.Shape().NormalizeDim(dim)))
	return result
}

// MeanDim averages along a dimension and records the operation.
func (b *Backend[B]) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	result := b.inner.MeanDim(x, dim, keepDim)
	b.tape.Record(ops.NewMeanDimOp(x, result, x.Shape().NormalizeDim(dim)))
	return result
}

// Reshape changes the shape and records the operation. Without recording,
// gradients would stop at the reshaped tensor instead of flowing back to
// the original parameter.
func (b *Backend[B]) Reshape(x *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	result := b.inner.Reshape(x, newShape)
	b.tape.Record(ops.NewReshapeOp(x, result))
	return result
}

// Transpose permutes dimensions and records the operation. The backend
// materializes a new tensor, so the op must be on the tape for gradients
// to reach the original.
func (b *Backend[B]) Transpose(x *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	nd := len(x.Shape())
	if len(axes) == 0 {
		axes = make([]int, nd)
		for i := range axes {
			axes[i] = nd - 1 - i
		}
	}
	result := b.inner.Transpose(x, axes...)
	b.tape.Record(ops.NewTransposeOp(x, result, axes))
	return result
}

// Expand broadcasts to a larger shape and records the operation.
func (b *Backend[B]) Expand(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	result := b.inner.Expand(x, shape)
	b.tape.Record(ops.NewExpandOp(x, result))
	return result
}

// Cat concatenates along a dimension and records the operation.
func (b *Backend[B]) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	result := b.inner.Cat(tensors, dim)
	b.tape.Record(ops.NewCatOp(tensors, result, tensors[0].Shape().NormalizeDim(dim)))
	return result
}

// Embedding gathers rows by index and records the operation.
func (b *Backend[B]) Embedding(weight *tensor.RawTensor, indices []int) *tensor.RawTensor {
	result := b.inner.Embedding(weight, indices)
	b.tape.Record(ops.NewEmbeddingOp(weight, result, indices))
	return result
}

// Conv2D performs 2D convolution and records the operation.
func (b *Backend[B]) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	result := b.inner.Conv2D(input, kernel, stride, padding)
	b.tape.Record(ops.NewConv2DOp(input, kernel, result, stride, padding))
	return result
}

// MaxPool2D performs 2D max pooling and records the operation. Gradients
// flow only to the positions that held the max.
func (b *Backend[B]) MaxPool2D(input *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	result := b.inner.MaxPool2D(input, kernelSize, stride)
	b.tape.Record(ops.NewMaxPool2DOp(input, result, kernelSize, stride))
	return result
}

// AvgPool2D performs adaptive average pooling and records the operation.
func (b *Backend[B]) AvgPool2D(input *tensor.RawTensor, outH, outW int) *tensor.RawTensor {
	result := b.inner.AvgPool2D(input, outH, outW)
	b.tape.Record(ops.NewAvgPool2DOp(input, result))
	return result
}

// CrossEntropy computes the classification loss and records the operation.
func (b *Backend[B]) CrossEntropy(logits *tensor.RawTensor, targets []int) *tensor.RawTensor {
	result := b.inner.CrossEntropy(logits, targets)
	b.tape.Record(ops.NewCrossEntropyOp(logits, result, targets))
	return result
}

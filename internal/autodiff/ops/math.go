package ops

import (
	"math"

	"github.com/captiva-ml/captiva/internal/tensor"
)

// MulScalarOp represents multiplication by a constant: output = x * s.
type MulScalarOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	scalar float32
}

// NewMulScalarOp creates a new MulScalarOp.
func NewMulScalarOp(x, output *tensor.RawTensor, scalar float32) *MulScalarOp {
	return &MulScalarOp{input: x, output: output, scalar: scalar}
}

// Inputs returns [x].
func (op *MulScalarOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns x * s.
func (op *MulScalarOp) Output() *tensor.RawTensor { return op.output }

// Backward scales the output gradient by the constant.
func (op *MulScalarOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	grad := tensor.Empty(op.input.Shape())
	gd, od := grad.Data(), outputGrad.Data()
	for i := range gd {
		gd[i] = od[i] * op.scalar
	}
	return []*tensor.RawTensor{grad}
}

// AddScalarOp represents addition of a constant: output = x + s.
// The constant contributes nothing to the gradient.
type AddScalarOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewAddScalarOp creates a new AddScalarOp.
func NewAddScalarOp(x, output *tensor.RawTensor) *AddScalarOp {
	return &AddScalarOp{input: x, output: output}
}

// Inputs returns [x].
func (op *AddScalarOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns x + s.
func (op *AddScalarOp) Output() *tensor.RawTensor { return op.output }

// Backward passes the output gradient through unchanged.
func (op *AddScalarOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{outputGrad}
}

// ExpOp represents the element-wise exponential: output = exp(x).
//
// Backward: d(exp(x))/dx = exp(x) = output (cached from the forward pass).
type ExpOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewExpOp creates a new ExpOp.
func NewExpOp(x, output *tensor.RawTensor) *ExpOp {
	return &ExpOp{input: x, output: output}
}

// Inputs returns [x].
func (op *ExpOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns exp(x).
func (op *ExpOp) Output() *tensor.RawTensor { return op.output }

// Backward computes outputGrad * exp(x).
func (op *ExpOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	grad := tensor.Empty(op.input.Shape())
	gd, od, xd := grad.Data(), outputGrad.Data(), op.output.Data()
	for i := range gd {
		gd[i] = od[i] * xd[i]
	}
	return []*tensor.RawTensor{grad}
}

// LogOp represents the element-wise natural logarithm: output = log(x).
//
// Backward: d(log(x))/dx = 1/x.
type LogOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewLogOp creates a new LogOp.
func NewLogOp(x, output *tensor.RawTensor) *LogOp {
	return &LogOp{input: x, output: output}
}

// Inputs returns [x].
func (op *LogOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns log(x).
func (op *LogOp) Output() *tensor.RawTensor { return op.output }

// Backward computes outputGrad / x.
func (op *LogOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	grad := tensor.Empty(op.input.Shape())
	gd, od, xd := grad.Data(), outputGrad.Data(), op.input.Data()
	for i := range gd {
		gd[i] = od[i] / xd[i]
	}
	return []*tensor.RawTensor{grad}
}

// LgammaOp represents the element-wise log-gamma function.
//
// Backward: d(lnΓ(x))/dx = ψ(x), the digamma function.
type LgammaOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewLgammaOp creates a new LgammaOp.
func NewLgammaOp(x, output *tensor.RawTensor) *LgammaOp {
	return &LgammaOp{input: x, output: output}
}

// Inputs returns [x].
func (op *LgammaOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns lnΓ(x).
func (op *LgammaOp) Output() *tensor.RawTensor { return op.output }

// Backward computes outputGrad * ψ(x).
func (op *LgammaOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	grad := tensor.Empty(op.input.Shape())
	gd, od, xd := grad.Data(), outputGrad.Data(), op.input.Data()
	for i := range gd {
		gd[i] = od[i] * float32(digamma(float64(xd[i])))
	}
	return []*tensor.RawTensor{grad}
}

// digamma evaluates ψ(x) for x > 0 using the recurrence
// ψ(x) = ψ(x+1) - 1/x to reach x >= 6, then the asymptotic expansion.
func digamma(x float64) float64 {
	result := 0.0
	for x < 6 {
		result -= 1 / x
		x++
	}
	inv := 1 / x
	inv2 := inv * inv
	result += math.Log(x) - inv/2 -
		inv2*(1.0/12-inv2*(1.0/120-inv2/252))
	return result
}

package ops

import "github.com/captiva-ml/captiva/internal/tensor"

// AddOp represents element-wise addition: output = a + b.
//
// Backward: both inputs receive the output gradient, reduced over any
// broadcast dimensions.
type AddOp struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

// NewAddOp creates a new AddOp.
func NewAddOp(a, b, output *tensor.RawTensor) *AddOp {
	return &AddOp{inputs: []*tensor.RawTensor{a, b}, output: output}
}

// Inputs returns [a, b].
func (op *AddOp) Inputs() []*tensor.RawTensor { return op.inputs }

// Output returns a + b.
func (op *AddOp) Output() *tensor.RawTensor { return op.output }

// Backward computes input gradients for addition.
func (op *AddOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{
		reduceGrad(outputGrad, op.inputs[0].Shape()),
		reduceGrad(outputGrad, op.inputs[1].Shape()),
	}
}

// SubOp represents element-wise subtraction: output = a - b.
type SubOp struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

// NewSubOp creates a new SubOp.
func NewSubOp(a, b, output *tensor.RawTensor) *SubOp {
	return &SubOp{inputs: []*tensor.RawTensor{a, b}, output: output}
}

// Inputs returns [a, b].
func (op *SubOp) Inputs() []*tensor.RawTensor { return op.inputs }

// Output returns a - b.
func (op *SubOp) Output() *tensor.RawTensor { return op.output }

// Backward computes input gradients for subtraction.
func (op *SubOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	negGrad := tensor.Empty(outputGrad.Shape())
	gd, nd := outputGrad.Data(), negGrad.Data()
	for i := range gd {
		nd[i] = -gd[i]
	}
	return []*tensor.RawTensor{
		reduceGrad(outputGrad, op.inputs[0].Shape()),
		reduceGrad(negGrad, op.inputs[1].Shape()),
	}
}

// MulOp represents element-wise multiplication: output = a * b.
//
// Backward: d(a*b)/da = outputGrad * b, d(a*b)/db = outputGrad * a, each
// accumulated back through any broadcasting.
type MulOp struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

// NewMulOp creates a new MulOp.
func NewMulOp(a, b, output *tensor.RawTensor) *MulOp {
	return &MulOp{inputs: []*tensor.RawTensor{a, b}, output: output}
}

// Inputs returns [a, b].
func (op *MulOp) Inputs() []*tensor.RawTensor { return op.inputs }

// Output returns a * b.
func (op *MulOp) Output() *tensor.RawTensor { return op.output }

// Backward computes input gradients for multiplication.
func (op *MulOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	gradA := tensor.Empty(a.Shape())
	gradB := tensor.Empty(b.Shape())

	bi := newBroadcastIndexer(a.Shape(), b.Shape(), op.output.Shape())
	gd, ad, bd := outputGrad.Data(), a.Data(), b.Data()
	gad, gbd := gradA.Data(), gradB.Data()
	for i, g := range gd {
		aIdx, bIdx := bi.locate(i)
		gad[aIdx] += g * bd[bIdx]
		gbd[bIdx] += g * ad[aIdx]
	}
	return []*tensor.RawTensor{gradA, gradB}
}

// DivOp represents element-wise division: output = a / b.
//
// Backward: d(a/b)/da = outputGrad / b, d(a/b)/db = -outputGrad * a / b².
type DivOp struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

// NewDivOp creates a new DivOp.
func NewDivOp(a, b, output *tensor.RawTensor) *DivOp {
	return &DivOp{inputs: []*tensor.RawTensor{a, b}, output: output}
}

// Inputs returns [a, b].
func (op *DivOp) Inputs() []*tensor.RawTensor { return op.inputs }

// Output returns a / b.
func (op *DivOp) Output() *tensor.RawTensor { return op.output }

// Backward computes input gradients for division.
func (op *DivOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	gradA := tensor.Empty(a.Shape())
	gradB := tensor.Empty(b.Shape())

	bi := newBroadcastIndexer(a.Shape(), b.Shape(), op.output.Shape())
	gd, ad, bd := outputGrad.Data(), a.Data(), b.Data()
	gad, gbd := gradA.Data(), gradB.Data()
	for i, g := range gd {
		aIdx, bIdx := bi.locate(i)
		gad[aIdx] += g / bd[bIdx]
		gbd[bIdx] += -g * ad[aIdx] / (bd[bIdx] * bd[bIdx])
	}
	return []*tensor.RawTensor{gradA, gradB}
}

package ops

import "github.com/captiva-ml/captiva/internal/tensor"

// SumOp represents full reduction to a single element.
//
// Backward: the scalar gradient is broadcast to every input element.
type SumOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewSumOp creates a new SumOp.
func NewSumOp(x, output *tensor.RawTensor) *SumOp {
	return &SumOp{input: x, output: output}
}

// Inputs returns [x].
func (op *SumOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns the scalar sum.
func (op *SumOp) Output() *tensor.RawTensor { return op.output }

// Backward fills the input gradient with the scalar output gradient.
func (op *SumOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	grad := tensor.Empty(op.input.Shape())
	g := outputGrad.Data()[0]
	gd := grad.Data()
	for i := range gd {
		gd[i] = g
	}
	return []*tensor.RawTensor{grad}
}

// SumDimOp represents a sum along one dimension, with MeanDim sharing the
// implementation via a divisor.
type SumDimOp struct {
	input   *tensor.RawTensor
	output  *tensor.RawTensor
	dim     int     // normalized
	divisor float32 // 1 for sum, size of dim for mean
}

// NewSumDimOp creates a sum-along-dimension operation. dim must already be
// normalized.
func NewSumDimOp(x, output *tensor.RawTensor, dim int) *SumDimOp {
	return &SumDimOp{input: x, output: output, dim: dim, divisor: 1}
}

// NewMeanDimOp creates a mean-along-dimension operation. dim must already
// be normalized.
func NewMeanDimOp(x, output *tensor.RawTensor, dim int) *SumDimOp {
	return &SumDimOp{input: x, output: output, dim: dim, divisor: float32(x.Shape()[dim])}
}

// Inputs returns [x].
func (op *SumDimOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns the reduced tensor.
func (op *SumDimOp) Output() *tensor.RawTensor { return op.output }

// Backward broadcasts the output gradient back along the reduced dimension,
// dividing by the element count for a mean.
func (op *SumDimOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	shape := op.input.Shape()
	outer := 1
	for d := 0; d < op.dim; d++ {
		outer *= shape[d]
	}
	size := shape[op.dim]
	inner := 1
	for d := op.dim + 1; d < len(shape); d++ {
		inner *= shape[d]
	}

	grad := tensor.Empty(shape)
	gd, od := grad.Data(), outputGrad.Data()
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			g := od[o*inner+i] / op.divisor
			base := o*size*inner + i
			for s := 0; s < size; s++ {
				gd[base+s*inner] = g
			}
		}
	}
	return []*tensor.RawTensor{grad}
}

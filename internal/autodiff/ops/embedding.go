package ops

import "github.com/captiva-ml/captiva/internal/tensor"

// EmbeddingOp represents a row lookup into a weight matrix [V, E].
//
// Backward: each output row's gradient is scatter-added into the weight
// row it was gathered from. Repeated indices accumulate.
type EmbeddingOp struct {
	weight  *tensor.RawTensor
	output  *tensor.RawTensor
	indices []int
}

// NewEmbeddingOp creates a new EmbeddingOp.
func NewEmbeddingOp(weight, output *tensor.RawTensor, indices []int) *EmbeddingOp {
	idx := make([]int, len(indices))
	copy(idx, indices)
	return &EmbeddingOp{weight: weight, output: output, indices: idx}
}

// Inputs returns [weight]. The indices are not differentiable.
func (op *EmbeddingOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.weight} }

// Output returns the gathered rows.
func (op *EmbeddingOp) Output() *tensor.RawTensor { return op.output }

// Backward scatter-adds row gradients into the weight gradient.
func (op *EmbeddingOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	dim := op.weight.Shape()[1]
	grad := tensor.Empty(op.weight.Shape())
	gd, od := grad.Data(), outputGrad.Data()
	for i, idx := range op.indices {
		dst := gd[idx*dim : (idx+1)*dim]
		src := od[i*dim : (i+1)*dim]
		for j := range dst {
			dst[j] += src[j]
		}
	}
	return []*tensor.RawTensor{grad}
}

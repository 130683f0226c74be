// Package ops defines the differentiable operations recorded on the
// gradient tape. Each operation keeps references to its input and output
// raw tensors and knows how to turn an output gradient into input
// gradients.
package ops

import "github.com/captiva-ml/captiva/internal/tensor"

// Operation is a single recorded step of the forward pass.
type Operation interface {
	// Inputs returns the tensors this operation differentiates with
	// respect to, in a fixed order matching Backward's result.
	Inputs() []*tensor.RawTensor

	// Output returns the tensor produced by the forward pass.
	Output() *tensor.RawTensor

	// Backward computes input gradients from the output gradient using
	// the chain rule. Entries may be nil for inputs without gradients.
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor
}

// reduceGrad sums grad over broadcast dimensions so it matches the target
// shape. When the shapes already match, grad is returned unchanged.
func reduceGrad(grad *tensor.RawTensor, target tensor.Shape) *tensor.RawTensor {
	gs := grad.Shape()
	if gs.Equal(target) {
		return grad
	}

	out := tensor.Empty(target)
	srcStrides := gs.ComputeStrides()
	dstStrides := broadcastStrides(target, gs)

	gd, od := grad.Data(), out.Data()
	for i := range gd {
		dstIdx := 0
		rem := i
		for d := range gs {
			pos := rem / srcStrides[d]
			rem %= srcStrides[d]
			dstIdx += pos * dstStrides[d]
		}
		od[dstIdx] += gd[i]
	}
	return out
}

// broadcastStrides returns strides for indexing a tensor of shape src as if
// it had shape out; broadcast dimensions get stride 0.
func broadcastStrides(src, out tensor.Shape) []int {
	srcStrides := src.ComputeStrides()
	strides := make([]int, len(out))
	offset := len(out) - len(src)
	for d := range out {
		s := d - offset
		if s < 0 || (src[s] == 1 && out[d] != 1) {
			strides[d] = 0
		} else {
			strides[d] = srcStrides[s]
		}
	}
	return strides
}

// broadcastIndexer maps flat indices in the broadcast output shape back to
// flat indices in each input. It is shared by the element-wise binary
// backward passes.
type broadcastIndexer struct {
	outStrides []int
	aStrides   []int
	bStrides   []int
	nd         int
}

func newBroadcastIndexer(a, b, out tensor.Shape) broadcastIndexer {
	return broadcastIndexer{
		outStrides: out.ComputeStrides(),
		aStrides:   broadcastStrides(a, out),
		bStrides:   broadcastStrides(b, out),
		nd:         len(out),
	}
}

func (bi broadcastIndexer) locate(i int) (aIdx, bIdx int) {
	rem := i
	for d := 0; d < bi.nd; d++ {
		pos := rem / bi.outStrides[d]
		rem %= bi.outStrides[d]
		aIdx += pos * bi.aStrides[d]
		bIdx += pos * bi.bStrides[d]
	}
	return aIdx, bIdx
}

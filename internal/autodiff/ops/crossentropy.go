package ops

import (
	"math"

	"github.com/captiva-ml/captiva/internal/tensor"
)

// CrossEntropyOp represents the mean negative log-likelihood of target
// classes under softmax(logits [n, classes]). Negative targets mark padded
// rows excluded from both the loss and the gradient.
//
// Backward uses the fused softmax-cross-entropy gradient:
//
//	∂L/∂logits[i,j] = (softmax(logits[i])[j] - 1{j == target_i}) / count
type CrossEntropyOp struct {
	logits  *tensor.RawTensor
	output  *tensor.RawTensor
	targets []int
}

// NewCrossEntropyOp creates a new CrossEntropyOp.
func NewCrossEntropyOp(logits, output *tensor.RawTensor, targets []int) *CrossEntropyOp {
	tg := make([]int, len(targets))
	copy(tg, targets)
	return &CrossEntropyOp{logits: logits, output: output, targets: tg}
}

// Inputs returns [logits].
func (op *CrossEntropyOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.logits} }

// Output returns the scalar loss.
func (op *CrossEntropyOp) Output() *tensor.RawTensor { return op.output }

// Backward computes the logit gradient, leaving padded rows at zero.
func (op *CrossEntropyOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	ls := op.logits.Shape()
	n, classes := ls[0], ls[1]

	count := 0
	for _, t := range op.targets {
		if t >= 0 {
			count++
		}
	}

	grad := tensor.Empty(ls)
	if count == 0 {
		return []*tensor.RawTensor{grad}
	}

	scale := outputGrad.Data()[0] / float32(count)
	ld, gd := op.logits.Data(), grad.Data()
	for i := 0; i < n; i++ {
		target := op.targets[i]
		if target < 0 {
			continue
		}
		row := ld[i*classes : (i+1)*classes]
		dst := gd[i*classes : (i+1)*classes]
		softmaxInto(row, dst)
		for j := range dst {
			dst[j] *= scale
		}
		dst[target] -= scale
	}
	return []*tensor.RawTensor{grad}
}

// softmaxInto writes a max-shifted softmax of src into dst.
func softmaxInto(src, dst []float32) {
	maxVal := src[0]
	for _, v := range src[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	sum := float32(0)
	for i, v := range src {
		e := float32(math.Exp(float64(v - maxVal)))
		dst[i] = e
		sum += e
	}
	for i := range dst {
		dst[i] /= sum
	}
}

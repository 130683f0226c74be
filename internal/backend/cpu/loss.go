package cpu

import (
	"fmt"
	"math"

	"github.com/captiva-ml/captiva/internal/tensor"
)

// CrossEntropy computes the mean negative log-likelihood of the target
// classes under softmax(logits), using the log-sum-exp trick.
//
// Shapes:
//   - logits:  [n, classes]
//   - targets: n class indices; a negative index marks a padded position
//     that contributes nothing to the loss
//
// Returns a single-element tensor holding the mean over non-padded rows.
func (b *Backend) CrossEntropy(logits *tensor.RawTensor, targets []int) *tensor.RawTensor {
	ls := logits.Shape()
	if len(ls) != 2 {
		panic(fmt.Sprintf("CrossEntropy: expected 2D logits [n, classes], got %v", ls))
	}
	n, classes := ls[0], ls[1]
	if len(targets) != n {
		panic(fmt.Sprintf("CrossEntropy: %d logit rows but %d targets", n, len(targets)))
	}

	ld := logits.Data()
	total := float64(0)
	count := 0
	for i, target := range targets {
		if target < 0 {
			continue
		}
		if target >= classes {
			panic(fmt.Sprintf("CrossEntropy: target %d out of range [0, %d)", target, classes))
		}
		row := ld[i*classes : (i+1)*classes]
		total += -logSoftmaxAt(row, target)
		count++
	}

	out := tensor.Empty(tensor.Shape{1})
	if count > 0 {
		out.Data()[0] = float32(total / float64(count))
	}
	return out
}

// logSoftmaxAt returns log softmax(row)[target] without materializing the
// full distribution.
func logSoftmaxAt(row []float32, target int) float64 {
	maxVal := row[0]
	for _, v := range row[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	sum := float64(0)
	for _, v := range row {
		sum += math.Exp(float64(v - maxVal))
	}
	return float64(row[target]-maxVal) - math.Log(sum)
}

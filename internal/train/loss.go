// Package train drives model optimization: the captioning loss, the
// epoch loop with scheduled-sampling updates and validation, and early
// stopping with checkpointing on improvement.
package train

import (
	"github.com/captiva-ml/captiva/internal/model"
	"github.com/captiva-ml/captiva/internal/tensor"
)

// LossConfig weights the loss terms.
type LossConfig struct {
	// AlphaC weights the doubly stochastic attention penalty, which
	// pushes per-position attention sums toward 1 across time steps.
	AlphaC float32
	// KLWeight scales the stochastic attention KL term.
	KLWeight float32
}

// Targets builds the flat [batch*steps] prediction targets for decoder
// scores: at step t the model predicts caption token t+1. Positions past
// a caption's end are -1 and excluded from the loss.
func Targets(captions [][]int, steps int) []int {
	targets := make([]int, len(captions)*steps)
	for b, row := range captions {
		for t := 0; t < steps; t++ {
			if t+1 < len(row) {
				targets[b*steps+t] = row[t+1]
			} else {
				targets[b*steps+t] = -1
			}
		}
	}
	return targets
}

// CaptionLoss composes the training loss from a decoder forward pass:
// mean cross-entropy over valid steps, plus the doubly stochastic
// penalty, plus the weighted KL term when present.
func CaptionLoss[B tensor.Backend](out *model.DecoderOutput[B], targets []int, cfg LossConfig) *tensor.Tensor[B] {
	scoreShape := out.Scores.Shape()
	batch, steps, vocab := scoreShape[0], scoreShape[1], scoreShape[2]

	loss := out.Scores.Reshape(batch*steps, vocab).CrossEntropy(targets)

	if cfg.AlphaC > 0 {
		l := out.Alphas.Shape()[2]
		attnSums := out.Alphas.SumDim(1, false) // [batch, L]
		diff := attnSums.MulScalar(-1).AddScalar(1)
		penalty := diff.Mul(diff).Sum().MulScalar(1 / float32(batch*l))
		loss = loss.Add(penalty.MulScalar(cfg.AlphaC))
	}

	if out.KL != nil && cfg.KLWeight > 0 {
		loss = loss.Add(out.KL.MulScalar(cfg.KLWeight))
	}
	return loss
}

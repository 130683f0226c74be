// Package optim implements the optimization algorithms used to train the
// captioning models.
//
// Optimizers consume the gradient map produced by autodiff.Backward and
// update parameters in place. Frozen parameters (a non-fine-tuned encoder
// backbone) are skipped.
//
// Example:
//
//	optimizer := optim.NewAdam(model.Parameters(), optim.AdamConfig{LR: 4e-4})
//
//	for batch := range batches {
//	    out, _ := model.Forward(images, captions, maxLen)
//	    loss := criterion(out)
//	    grads := autodiff.Backward(loss, backend)
//	    optimizer.Step(grads)
//	    backend.GetTape().Clear()
//	}
package optim

import (
	"github.com/captiva-ml/captiva/internal/nn"
	"github.com/captiva-ml/captiva/internal/tensor"
)

// Optimizer is the interface shared by all optimization algorithms.
type Optimizer interface {
	// Step applies one gradient update to all unfrozen parameters.
	// grads maps a parameter's raw tensor to its gradient; parameters
	// absent from the map did not participate in the forward pass and
	// are skipped.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// LR returns the current learning rate.
	LR() float32

	// SetLR updates the learning rate, for scheduling.
	SetLR(lr float32)
}

// gradientFor retrieves the gradient for a parameter, or nil when the
// parameter is frozen or took no part in the computation.
func gradientFor[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) *tensor.RawTensor {
	if param == nil || param.Frozen() {
		return nil
	}
	return grads[param.Tensor().Raw()]
}

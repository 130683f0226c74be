package autodiff

import "github.com/captiva-ml/captiva/internal/tensor"

// BackwardCapable is implemented by backends that carry a gradient tape.
type BackwardCapable interface {
	tensor.Backend
	GetTape() *GradientTape
}

// GetTape returns the gradient tape (implements BackwardCapable).
func (b *Backend[B]) GetTape() *GradientTape {
	return b.tape
}

// Backward computes gradients of t with respect to everything on the
// backend's tape, seeding the output gradient with ones.
//
// Returns a map from RawTensor to its gradient.
func Backward[B BackwardCapable](t *tensor.Tensor[B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	tape := backend.GetTape()
	if tape.NumOps() == 0 {
		panic("backward: no operations recorded (did you forget to call Tape().StartRecording()?)")
	}

	outputGrad := tensor.Empty(t.Shape())
	data := outputGrad.Data()
	for i := range data {
		data[i] = 1.0
	}
	return tape.Backward(outputGrad, backend)
}

package optim

import (
	"fmt"

	"github.com/captiva-ml/captiva/internal/nn"
	"github.com/captiva-ml/captiva/internal/tensor"
)

// SGD is stochastic gradient descent with optional momentum.
//
// Without momentum: param -= lr * grad.
// With momentum: velocity = momentum*velocity + grad; param -= lr * velocity.
type SGD[B tensor.Backend] struct {
	params     []*nn.Parameter[B]
	lr         float32
	momentum   float32
	velocities map[*nn.Parameter[B]][]float32
}

// SGDConfig holds SGD hyperparameters. Zero values take defaults:
// LR 0.01, Momentum 0.
type SGDConfig struct {
	LR       float32
	Momentum float32 // in [0, 1)
}

// NewSGD creates an SGD optimizer over the given parameters.
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], config SGDConfig) *SGD[B] {
	if config.LR == 0 {
		config.LR = 0.01
	}
	return &SGD[B]{
		params:     params,
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: make(map[*nn.Parameter[B]][]float32),
	}
}

// Step applies one descent update to every unfrozen parameter with a
// gradient.
func (s *SGD[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	for _, param := range s.params {
		grad := gradientFor(param, grads)
		if grad == nil {
			continue
		}

		gd := grad.Data()
		pd := param.Tensor().Data()

		if s.momentum == 0 {
			for i := range pd {
				pd[i] -= s.lr * gd[i]
			}
			continue
		}

		vel, ok := s.velocities[param]
		if !ok {
			vel = make([]float32, len(pd))
			s.velocities[param] = vel
		}
		for i := range pd {
			vel[i] = s.momentum*vel[i] + gd[i]
			pd[i] -= s.lr * vel[i]
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD[B]) ZeroGrad() {
	for _, param := range s.params {
		param.ZeroGrad()
	}
}

// LR returns the current learning rate.
func (s *SGD[B]) LR() float32 { return s.lr }

// SetLR updates the learning rate.
func (s *SGD[B]) SetLR(lr float32) { s.lr = lr }

// StateDict exports velocity buffers, keyed by parameter index. Empty
// without momentum.
func (s *SGD[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	if s.momentum == 0 {
		return sd
	}
	for i, param := range s.params {
		vel, ok := s.velocities[param]
		if !ok {
			continue
		}
		raw, err := tensor.NewRaw(param.Tensor().Shape(), vel)
		if err != nil {
			continue
		}
		sd[fmt.Sprintf("velocity.%d", i)] = raw
	}
	return sd
}

// LoadStateDict restores velocity buffers exported by StateDict.
func (s *SGD[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	if s.momentum == 0 {
		return nil
	}
	s.velocities = make(map[*nn.Parameter[B]][]float32)
	for i, param := range s.params {
		raw, ok := sd[fmt.Sprintf("velocity.%d", i)]
		if !ok {
			continue
		}
		if !raw.Shape().Equal(param.Tensor().Shape()) {
			return fmt.Errorf("velocity shape mismatch for parameter %d: expected %v, got %v",
				i, param.Tensor().Shape(), raw.Shape())
		}
		vel := make([]float32, raw.NumElements())
		copy(vel, raw.Data())
		s.velocities[param] = vel
	}
	return nil
}

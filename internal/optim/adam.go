package optim

import (
	"fmt"
	"math"

	"github.com/captiva-ml/captiva/internal/nn"
	"github.com/captiva-ml/captiva/internal/tensor"
)

// Adam implements adaptive moment estimation.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * grad
//	v_t = beta2 * v_{t-1} + (1-beta2) * grad²
//	m_hat = m_t / (1 - beta1^t)
//	v_hat = v_t / (1 - beta2^t)
//	param -= lr * m_hat / (sqrt(v_hat) + eps)
//
// Reference: "Adam: A Method for Stochastic Optimization"
// (Kingma & Ba, 2014).
type Adam[B tensor.Backend] struct {
	params []*nn.Parameter[B]
	lr     float32
	beta1  float32
	beta2  float32
	eps    float32
	t      int
	m      map[*nn.Parameter[B]][]float32
	v      map[*nn.Parameter[B]][]float32
}

// AdamConfig holds Adam hyperparameters. Zero values take defaults:
// LR 0.001, Betas [0.9, 0.999], Eps 1e-8.
type AdamConfig struct {
	LR    float32
	Betas [2]float32
	Eps   float32
}

// NewAdam creates an Adam optimizer over the given parameters.
func NewAdam[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig) *Adam[B] {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	return &Adam[B]{
		params: params,
		lr:     config.LR,
		beta1:  config.Betas[0],
		beta2:  config.Betas[1],
		eps:    config.Eps,
		m:      make(map[*nn.Parameter[B]][]float32),
		v:      make(map[*nn.Parameter[B]][]float32),
	}
}

// Step applies one Adam update to every unfrozen parameter with a
// gradient.
func (a *Adam[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	a.t++
	bc1 := float32(1 - math.Pow(float64(a.beta1), float64(a.t)))
	bc2 := float32(1 - math.Pow(float64(a.beta2), float64(a.t)))

	for _, param := range a.params {
		grad := gradientFor(param, grads)
		if grad == nil {
			continue
		}

		gd := grad.Data()
		pd := param.Tensor().Data()

		m, ok := a.m[param]
		if !ok {
			m = make([]float32, len(pd))
			a.m[param] = m
		}
		v, ok := a.v[param]
		if !ok {
			v = make([]float32, len(pd))
			a.v[param] = v
		}

		for i := range pd {
			g := gd[i]
			m[i] = a.beta1*m[i] + (1-a.beta1)*g
			v[i] = a.beta2*v[i] + (1-a.beta2)*g*g
			mHat := m[i] / bc1
			vHat := v[i] / bc2
			pd[i] -= a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (a *Adam[B]) ZeroGrad() {
	for _, param := range a.params {
		param.ZeroGrad()
	}
}

// LR returns the current learning rate.
func (a *Adam[B]) LR() float32 { return a.lr }

// SetLR updates the learning rate.
func (a *Adam[B]) SetLR(lr float32) { a.lr = lr }

// Timestep returns the number of Step calls, used for bias correction.
func (a *Adam[B]) Timestep() int { return a.t }

// StateDict exports moment buffers keyed by parameter index, plus the
// timestep under "t" as a one-element tensor.
func (a *Adam[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	for i, param := range a.params {
		shape := param.Tensor().Shape()
		if m, ok := a.m[param]; ok {
			if raw, err := tensor.NewRaw(shape, append([]float32(nil), m...)); err == nil {
				sd[fmt.Sprintf("m.%d", i)] = raw
			}
		}
		if v, ok := a.v[param]; ok {
			if raw, err := tensor.NewRaw(shape, append([]float32(nil), v...)); err == nil {
				sd[fmt.Sprintf("v.%d", i)] = raw
			}
		}
	}
	if raw, err := tensor.NewRaw(tensor.Shape{1}, []float32{float32(a.t)}); err == nil {
		sd["t"] = raw
	}
	return sd
}

// LoadStateDict restores moment buffers and the timestep.
func (a *Adam[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	a.m = make(map[*nn.Parameter[B]][]float32)
	a.v = make(map[*nn.Parameter[B]][]float32)
	for i, param := range a.params {
		want := param.Tensor().Shape()
		for _, moment := range []struct {
			key string
			dst map[*nn.Parameter[B]][]float32
		}{
			{fmt.Sprintf("m.%d", i), a.m},
			{fmt.Sprintf("v.%d", i), a.v},
		} {
			raw, ok := sd[moment.key]
			if !ok {
				continue
			}
			if !raw.Shape().Equal(want) {
				return fmt.Errorf("%s shape mismatch: expected %v, got %v", moment.key, want, raw.Shape())
			}
			buf := make([]float32, raw.NumElements())
			copy(buf, raw.Data())
			moment.dst[param] = buf
		}
	}
	if raw, ok := sd["t"]; ok && raw.NumElements() == 1 {
		a.t = int(raw.Data()[0])
	}
	return nil
}

package nn

import "github.com/captiva-ml/captiva/internal/tensor"

// LayerNorm normalizes over the last dimension:
//
//	y = gamma * (x - mean(x)) / sqrt(var(x) + eps) + beta
//
// Statistics are computed per position over the feature axis. Used after
// every attention layer to stabilize the residual stream.
type LayerNorm[B tensor.Backend] struct {
	Gamma   *Parameter[B] // learnable scale [dim]
	Beta    *Parameter[B] // learnable shift [dim]
	Epsilon float32
	backend B
}

// NewLayerNorm creates a LayerNorm over the given feature dimension.
// Gamma starts at ones, beta at zeros.
func NewLayerNorm[B tensor.Backend](dim int, epsilon float32, backend B) (*LayerNorm[B], error) {
	if dim <= 0 {
		return nil, NewConfigError("LayerNorm", "dimension must be positive, got %d", dim)
	}
	return &LayerNorm[B]{
		Gamma:   NewParameter("gamma", Ones(tensor.Shape{dim}, backend)),
		Beta:    NewParameter("beta", Zeros(tensor.Shape{dim}, backend)),
		Epsilon: epsilon,
		backend: backend,
	}, nil
}

// Forward normalizes [..., dim] over its trailing axis.
//
// The standard deviation is computed as exp(0.5*log(var+eps)) so the whole
// expression stays on differentiable backend ops.
func (l *LayerNorm[B]) Forward(x *tensor.Tensor[B]) *tensor.Tensor[B] {
	mean := x.MeanDim(-1, true)
	centered := x.Sub(mean)
	variance := centered.Mul(centered).MeanDim(-1, true)
	std := variance.AddScalar(l.Epsilon).Log().MulScalar(0.5).Exp()

	norm := centered.Div(std)
	return norm.Mul(l.Gamma.Tensor()).Add(l.Beta.Tensor())
}

// Parameters returns [gamma, beta].
func (l *LayerNorm[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{l.Gamma, l.Beta}
}

// StateDict returns parameter names mapped to raw tensors.
func (l *LayerNorm[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"gamma": l.Gamma.Tensor().Raw(),
		"beta":  l.Beta.Tensor().Raw(),
	}
}

// LoadStateDict copies parameters from a state dictionary.
func (l *LayerNorm[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	dim := l.Gamma.Tensor().Shape()
	if err := loadParam(sd, "gamma", l.Gamma, dim); err != nil {
		return err
	}
	return loadParam(sd, "beta", l.Beta, dim)
}

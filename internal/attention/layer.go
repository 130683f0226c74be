package attention

import (
	"github.com/captiva-ml/captiva/internal/nn"
	"github.com/captiva-ml/captiva/internal/tensor"
)

// Layer wraps an Attention module with the residual connection, dropout
// and layer normalization used between attention blocks:
//
//	out = LayerNorm(Dropout(Attention(q, k, v)) + q)
//
// The wrapped attention's KL divergence passes through unchanged.
type Layer[B tensor.Backend] struct {
	attention *Attention[B]
	dropout   *nn.Dropout[B]
	norm      *nn.LayerNorm[B]
}

// NewLayer creates a Layer around an Attention configured by cfg.
func NewLayer[B tensor.Backend](cfg Config, dropout float32, backend B) (*Layer[B], error) {
	att, err := New(cfg, backend)
	if err != nil {
		return nil, err
	}
	drop, err := nn.NewDropout(dropout, cfg.Seed, backend)
	if err != nil {
		return nil, err
	}
	norm, err := nn.NewLayerNorm(cfg.OutDim, 1e-5, backend)
	if err != nil {
		return nil, err
	}
	return &Layer[B]{attention: att, dropout: drop, norm: norm}, nil
}

// Train enables dropout and stochastic sampling.
func (l *Layer[B]) Train() {
	l.attention.Train()
	l.dropout.Train()
}

// Eval disables dropout and stochastic sampling.
func (l *Layer[B]) Eval() {
	l.attention.Eval()
	l.dropout.Eval()
}

// Attention returns the wrapped attention module.
func (l *Layer[B]) Attention() *Attention[B] { return l.attention }

// Forward applies attention, dropout, the residual connection and
// normalization. Returns the output, the attention weights and the KL
// divergence (nil when not stochastic or not training).
func (l *Layer[B]) Forward(queries, keys, values, mask, weights *tensor.Tensor[B]) (out, alpha, kl *tensor.Tensor[B], err error) {
	attended, alpha, kl, err := l.attention.Forward(queries, keys, values, mask, weights)
	if err != nil {
		return nil, nil, nil, err
	}
	out = l.norm.Forward(l.dropout.Forward(attended).Add(queries))
	return out, alpha, kl, nil
}

// Parameters returns the attention and normalization parameters.
func (l *Layer[B]) Parameters() []*nn.Parameter[B] {
	params := append([]*nn.Parameter[B]{}, l.attention.Parameters()...)
	return append(params, l.norm.Parameters()...)
}

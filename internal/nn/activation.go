package nn

import "github.com/captiva-ml/captiva/internal/tensor"

// ReLU is a stateless rectified linear unit module.
type ReLU[B tensor.Backend] struct{}

// NewReLU creates a ReLU module.
func NewReLU[B tensor.Backend]() *ReLU[B] { return &ReLU[B]{} }

// Forward applies max(0, x).
func (r *ReLU[B]) Forward(x *tensor.Tensor[B]) *tensor.Tensor[B] { return x.ReLU() }

// Parameters returns an empty slice.
func (r *ReLU[B]) Parameters() []*Parameter[B] { return nil }

// Sigmoid is a stateless logistic activation module.
type Sigmoid[B tensor.Backend] struct{}

// NewSigmoid creates a Sigmoid module.
func NewSigmoid[B tensor.Backend]() *Sigmoid[B] { return &Sigmoid[B]{} }

// Forward applies 1 / (1 + exp(-x)).
func (s *Sigmoid[B]) Forward(x *tensor.Tensor[B]) *tensor.Tensor[B] { return x.Sigmoid() }

// Parameters returns an empty slice.
func (s *Sigmoid[B]) Parameters() []*Parameter[B] { return nil }

// Tanh is a stateless hyperbolic tangent module.
type Tanh[B tensor.Backend] struct{}

// NewTanh creates a Tanh module.
func NewTanh[B tensor.Backend]() *Tanh[B] { return &Tanh[B]{} }

// Forward applies tanh(x).
func (t *Tanh[B]) Forward(x *tensor.Tensor[B]) *tensor.Tensor[B] { return x.Tanh() }

// Parameters returns an empty slice.
func (t *Tanh[B]) Parameters() []*Parameter[B] { return nil }

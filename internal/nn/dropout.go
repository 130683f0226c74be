package nn

import (
	"math/rand"

	"github.com/captiva-ml/captiva/internal/tensor"
)

// Dropout applies inverted dropout: during training each element is
// zeroed with probability p and survivors are scaled by 1/(1-p) so the
// expected activation is unchanged. At evaluation time it is the
// identity.
//
// The mask is applied with an element-wise multiply so gradients flow
// through surviving positions on the tape.
type Dropout[B tensor.Backend] struct {
	p        float32
	training bool
	rng      *rand.Rand
	backend  B
}

// NewDropout creates a Dropout layer in training mode with the given drop
// probability. seed fixes the mask sequence for reproducible runs.
func NewDropout[B tensor.Backend](p float32, seed int64, backend B) (*Dropout[B], error) {
	if p < 0 || p >= 1 {
		return nil, NewConfigError("Dropout", "probability must be in [0, 1), got %f", p)
	}
	return &Dropout[B]{
		p:        p,
		training: true,
		rng:      rand.New(rand.NewSource(seed)),
		backend:  backend,
	}, nil
}

// Train switches dropout on.
func (d *Dropout[B]) Train() { d.training = true }

// Eval switches dropout off.
func (d *Dropout[B]) Eval() { d.training = false }

// Training reports whether dropout is active.
func (d *Dropout[B]) Training() bool { return d.training }

// Forward masks the input during training and passes it through unchanged
// during evaluation or when p is zero.
func (d *Dropout[B]) Forward(x *tensor.Tensor[B]) *tensor.Tensor[B] {
	if !d.training || d.p == 0 {
		return x
	}

	mask := tensor.Zeros(x.Shape(), d.backend)
	scale := 1 / (1 - d.p)
	md := mask.Data()
	for i := range md {
		if d.rng.Float32() >= d.p {
			md[i] = scale
		}
	}
	return x.Mul(mask)
}

// Parameters returns an empty slice; dropout has no trainable state.
func (d *Dropout[B]) Parameters() []*Parameter[B] {
	return nil
}

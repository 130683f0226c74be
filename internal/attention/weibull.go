package attention

import (
	"math"
	"math/rand"

	"github.com/captiva-ml/captiva/internal/tensor"
)

// eps guards logs of probabilities that may be exactly zero after masking.
const eps = 1e-20

// eulerGamma is the Euler-Mascheroni constant appearing in Weibull moments.
const eulerGamma = 0.5772156649015329

// weibullSampler draws reparameterized Weibull attention weights and
// evaluates their KL divergence against a contextual Gamma prior.
//
// A Weibull(k, λ) sample is λ(-ln(1-u))^(1/k) for uniform u. Choosing
// ln λ = logprobs - lnΓ(1+1/k) makes the sample mean equal the softmax
// probability, so in expectation stochastic attention matches the
// deterministic weights.
type weibullSampler[B tensor.Backend] struct {
	k       float32
	rng     *rand.Rand
	backend B
}

func newWeibullSampler[B tensor.Backend](k float32, seed int64, backend B) *weibullSampler[B] {
	return &weibullSampler[B]{
		k:       k,
		rng:     rand.New(rand.NewSource(seed)),
		backend: backend,
	}
}

// Sample perturbs log attention probabilities with Weibull noise and
// renormalizes:
//
//	ln S = logprobs - lnΓ(1+1/k) + (1/k)·ln(-ln(1-u))
//	alpha = softmax(ln S)
//
// The noise tensor is a constant; gradients flow through logprobs only.
func (w *weibullSampler[B]) Sample(logprobs *tensor.Tensor[B]) *tensor.Tensor[B] {
	lgammaK, _ := math.Lgamma(1 + 1/float64(w.k))
	invK := 1 / float64(w.k)

	noise := tensor.Zeros(logprobs.Shape(), w.backend)
	nd := noise.Data()
	for i := range nd {
		u := w.rng.Float64()
		nd[i] = float32(invK*math.Log(-math.Log(1-u+eps)+eps) - lgammaK)
	}
	return logprobs.Add(noise).Softmax(-1)
}

// KL computes the mean closed-form KL divergence between the Weibull
// posterior implied by logprobs and a Gamma prior with shape alphaGamma
// and fixed rate 1:
//
//	KL = -( α·(logprobs - lnΓ(1+1/k)) - γ·α/k - exp(logprobs) - lnΓ(α+eps) )
//
// probs must equal exp(logprobs); alphaGamma broadcasts over the query
// axis. The α·ln(β) term vanishes because the rate β is fixed at 1.
// Additive constants that carry no gradient are dropped.
func (w *weibullSampler[B]) KL(logprobs, probs, alphaGamma *tensor.Tensor[B]) *tensor.Tensor[B] {
	lgammaK, _ := math.Lgamma(1 + 1/float64(w.k))

	inner := alphaGamma.Mul(logprobs.AddScalar(float32(-lgammaK))).
		Sub(alphaGamma.MulScalar(float32(eulerGamma) / w.k)).
		Sub(probs).
		Sub(alphaGamma.AddScalar(eps).Lgamma())

	n := float32(inner.NumElements())
	return inner.MulScalar(-1).Sum().MulScalar(1 / n)
}

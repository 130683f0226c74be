package attention

import (
	"github.com/captiva-ml/captiva/internal/nn"
	"github.com/captiva-ml/captiva/internal/tensor"
)

// SATConfig configures the decoder's single-head additive attention.
type SATConfig struct {
	EncoderDim   int // annotation vector dimension D
	HiddenDim    int // decoder hidden state dimension
	AttentionDim int // shared projection dimension

	// Stochastic enables Weibull-reparameterized weights during training,
	// giving the Bayesian decoder variant.
	Stochastic   bool
	WeibullShape float32
	Seed         int64
}

// SATAttention is the additive attention of the recurrent decoder: each
// step scores every annotation vector against the current hidden state
// and returns their weighted sum as the context vector.
type SATAttention[B tensor.Backend] struct {
	cfg     SATConfig
	backend B

	featureShaper *nn.Linear[B] // D -> attention dim
	hiddenShaper  *nn.Linear[B] // hidden -> attention dim
	scorer        *nn.Linear[B] // attention dim -> 1

	prior1  *nn.Linear[B] // nil unless stochastic
	prior2  *nn.Linear[B]
	sampler *weibullSampler[B]

	training bool
}

// NewSAT creates a SATAttention module from cfg.
func NewSAT[B tensor.Backend](cfg SATConfig, backend B) (*SATAttention[B], error) {
	if cfg.EncoderDim <= 0 || cfg.HiddenDim <= 0 || cfg.AttentionDim <= 0 {
		return nil, nn.NewConfigError("SATAttention", "dimensions must be positive, got encoder=%d hidden=%d attention=%d",
			cfg.EncoderDim, cfg.HiddenDim, cfg.AttentionDim)
	}
	if cfg.Stochastic && cfg.WeibullShape <= 0 {
		return nil, nn.NewConfigError("SATAttention", "stochastic attention requires a positive Weibull shape, got %f", cfg.WeibullShape)
	}

	a := &SATAttention[B]{cfg: cfg, backend: backend, training: true}
	var err error
	if a.featureShaper, err = nn.NewLinear(cfg.EncoderDim, cfg.AttentionDim, backend); err != nil {
		return nil, err
	}
	if a.hiddenShaper, err = nn.NewLinear(cfg.HiddenDim, cfg.AttentionDim, backend); err != nil {
		return nil, err
	}
	if a.scorer, err = nn.NewLinear(cfg.AttentionDim, 1, backend); err != nil {
		return nil, err
	}
	if cfg.Stochastic {
		if a.prior1, err = nn.NewLinear(cfg.EncoderDim, cfg.AttentionDim, backend); err != nil {
			return nil, err
		}
		if a.prior2, err = nn.NewLinear(cfg.AttentionDim, 1, backend); err != nil {
			return nil, err
		}
		a.sampler = newWeibullSampler(cfg.WeibullShape, cfg.Seed, backend)
	}
	return a, nil
}

// Train enables stochastic sampling when configured.
func (a *SATAttention[B]) Train() { a.training = true }

// Eval makes the module deterministic.
func (a *SATAttention[B]) Eval() { a.training = false }

// Training reports the current mode.
func (a *SATAttention[B]) Training() bool { return a.training }

// Forward scores annotations against the hidden state.
//
// Shapes:
//   - features: [batch, L, EncoderDim]
//   - hidden:   [batch, HiddenDim]
//
// Returns the context vector [batch, EncoderDim], the attention weights
// [batch, L], and the KL divergence as a one-element tensor when
// stochastic sampling was active (nil otherwise).
func (a *SATAttention[B]) Forward(features, hidden *tensor.Tensor[B]) (context, alpha, kl *tensor.Tensor[B], err error) {
	fs, hs := features.Shape(), hidden.Shape()
	if len(fs) != 3 || fs[2] != a.cfg.EncoderDim {
		return nil, nil, nil, nn.NewShapeError("SATAttention", "features must be [batch, L, %d], got %v", a.cfg.EncoderDim, fs)
	}
	if len(hs) != 2 || hs[1] != a.cfg.HiddenDim {
		return nil, nil, nil, nn.NewShapeError("SATAttention", "hidden must be [batch, %d], got %v", a.cfg.HiddenDim, hs)
	}
	if fs[0] != hs[0] {
		return nil, nil, nil, nn.NewShapeError("SATAttention", "batch sizes differ: features=%d hidden=%d", fs[0], hs[0])
	}
	batch, l := fs[0], fs[1]

	// e_i = w·ReLU(Wf·a_i + Wh·h), one score per annotation position.
	fv := a.featureShaper.Forward(features)                     // [batch, L, A]
	hv := a.hiddenShaper.Forward(hidden).Reshape(batch, 1, a.cfg.AttentionDim)
	e := a.scorer.Forward(fv.Add(hv).ReLU()).Reshape(batch, l) // [batch, L]

	if a.cfg.Stochastic && a.training {
		probs := e.Softmax(-1)
		logprobs := probs.AddScalar(eps).Log()
		alpha = a.sampler.Sample(logprobs)
		kl = a.sampler.KL(logprobs, probs, a.contextualPrior(features, batch, l))
	} else {
		alpha = e.Softmax(-1)
	}

	// z = Σ alpha_i a_i
	context = features.Mul(alpha.Reshape(batch, l, 1)).SumDim(1, false)
	return context, alpha, kl, nil
}

// contextualPrior projects annotation vectors to Gamma prior shapes over
// the L positions, shape [batch, L].
func (a *SATAttention[B]) contextualPrior(features *tensor.Tensor[B], batch, l int) *tensor.Tensor[B] {
	logits := a.prior2.Forward(a.prior1.Forward(features).LeakyReLU(0.01)).Reshape(batch, l)
	return logits.Softmax(-1)
}

// Parameters returns all trainable parameters.
func (a *SATAttention[B]) Parameters() []*nn.Parameter[B] {
	params := append([]*nn.Parameter[B]{}, a.featureShaper.Parameters()...)
	params = append(params, a.hiddenShaper.Parameters()...)
	params = append(params, a.scorer.Parameters()...)
	if a.prior1 != nil {
		params = append(params, a.prior1.Parameters()...)
		params = append(params, a.prior2.Parameters()...)
	}
	return params
}

// StateDict returns all parameters keyed by component.
func (a *SATAttention[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	for prefix, lin := range a.projections() {
		for k, v := range lin.StateDict() {
			sd[prefix+"."+k] = v
		}
	}
	return sd
}

// LoadStateDict restores all parameters from a state dictionary.
func (a *SATAttention[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	for prefix, lin := range a.projections() {
		sub := make(map[string]*tensor.RawTensor)
		for k, v := range sd {
			if len(k) > len(prefix) && k[:len(prefix)] == prefix && k[len(prefix)] == '.' {
				sub[k[len(prefix)+1:]] = v
			}
		}
		if err := lin.LoadStateDict(sub); err != nil {
			return err
		}
	}
	return nil
}

func (a *SATAttention[B]) projections() map[string]*nn.Linear[B] {
	m := map[string]*nn.Linear[B]{
		"feature_shaper": a.featureShaper,
		"hidden_shaper":  a.hiddenShaper,
		"scorer":         a.scorer,
	}
	if a.prior1 != nil {
		m["prior1"] = a.prior1
		m["prior2"] = a.prior2
	}
	return m
}

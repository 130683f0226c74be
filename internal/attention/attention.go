// Package attention implements the attention family of the captioning
// models: scaled multi-head dot-product attention with optional learned
// memory slots and optional Weibull-reparameterized stochastic weights,
// the additive single-head attention used by the recurrent decoder, and
// the residual/dropout/norm layer wrapper.
//
// Memory slots and stochastic sampling are independent capability flags
// on one module rather than an inheritance lattice; the KL divergence of
// the stochastic variant is an explicit return value, never hidden state.
package attention

import (
	"math"

	"github.com/captiva-ml/captiva/internal/nn"
	"github.com/captiva-ml/captiva/internal/tensor"
)

// maskFill is the additive penalty for masked score positions. Large
// enough that masked weights underflow to zero after softmax, finite so
// that weighting a masked score never produces NaN.
const maskFill = -1e9

// Config selects the capabilities of an Attention module.
type Config struct {
	OutDim   int // model dimension E of queries, keys, values and output
	KeyDim   int // per-head query/key dimension Dk
	ValueDim int // per-head value dimension Dv
	NumHeads int

	// MemorySlots is the number of learned key/value slot pairs appended
	// to every attention computation. 0 disables memory.
	MemorySlots int

	// Stochastic enables Weibull-reparameterized attention weights during
	// training, with a KL term against a contextual Gamma prior.
	Stochastic   bool
	WeibullShape float32 // Weibull shape k, required when Stochastic
	Seed         int64   // noise source seed for reproducible training
}

// Attention is scaled multi-head dot-product attention.
//
// Scores are q·kᵀ/√Dk per head. An optional multiplicative weighting is
// applied to scores before the additive mask, so masked positions end up
// at -inf regardless of weighting. Memory slots extend the key axis and
// are exempt from both masking and weighting.
type Attention[B tensor.Backend] struct {
	cfg     Config
	backend B

	querygen *nn.Linear[B]
	keygen   *nn.Linear[B]
	valuegen *nn.Linear[B]
	output   *nn.Linear[B]

	memKeys   *nn.Parameter[B] // [1, M, H*Dk], nil without memory
	memValues *nn.Parameter[B] // [1, M, H*Dv]

	prior1  *nn.Linear[B] // contextual prior projection, nil unless stochastic
	prior2  *nn.Linear[B]
	sampler *weibullSampler[B]

	training bool
}

// New creates an Attention module from cfg.
func New[B tensor.Backend](cfg Config, backend B) (*Attention[B], error) {
	if cfg.OutDim <= 0 || cfg.KeyDim <= 0 || cfg.ValueDim <= 0 {
		return nil, nn.NewConfigError("Attention", "dimensions must be positive, got out=%d key=%d value=%d",
			cfg.OutDim, cfg.KeyDim, cfg.ValueDim)
	}
	if cfg.NumHeads <= 0 {
		return nil, nn.NewConfigError("Attention", "head count must be positive, got %d", cfg.NumHeads)
	}
	if cfg.MemorySlots < 0 {
		return nil, nn.NewConfigError("Attention", "memory slot count must be non-negative, got %d", cfg.MemorySlots)
	}
	if cfg.Stochastic && cfg.WeibullShape <= 0 {
		return nil, nn.NewConfigError("Attention", "stochastic attention requires a positive Weibull shape, got %f", cfg.WeibullShape)
	}

	a := &Attention[B]{cfg: cfg, backend: backend, training: true}
	var err error
	if a.querygen, err = nn.NewLinear(cfg.OutDim, cfg.NumHeads*cfg.KeyDim, backend); err != nil {
		return nil, err
	}
	if a.keygen, err = nn.NewLinear(cfg.OutDim, cfg.NumHeads*cfg.KeyDim, backend); err != nil {
		return nil, err
	}
	if a.valuegen, err = nn.NewLinear(cfg.OutDim, cfg.NumHeads*cfg.ValueDim, backend); err != nil {
		return nil, err
	}
	if a.output, err = nn.NewLinear(cfg.NumHeads*cfg.ValueDim, cfg.OutDim, backend); err != nil {
		return nil, err
	}

	if cfg.MemorySlots > 0 {
		// Slot keys start at std √Dk and values at std 1/M; both are
		// rescaled by √Dk and √M respectively at use time.
		keyStd := float32(math.Sqrt(float64(cfg.KeyDim)))
		valStd := 1 / float32(cfg.MemorySlots)
		a.memKeys = nn.NewParameter("mem_keys",
			tensor.Randn(tensor.Shape{1, cfg.MemorySlots, cfg.NumHeads * cfg.KeyDim}, backend).MulScalar(keyStd))
		a.memValues = nn.NewParameter("mem_values",
			tensor.Randn(tensor.Shape{1, cfg.MemorySlots, cfg.NumHeads * cfg.ValueDim}, backend).MulScalar(valStd))
	}

	if cfg.Stochastic {
		if a.prior1, err = nn.NewLinear(cfg.KeyDim, cfg.OutDim, backend); err != nil {
			return nil, err
		}
		if a.prior2, err = nn.NewLinear(cfg.OutDim, 1, backend); err != nil {
			return nil, err
		}
		a.sampler = newWeibullSampler(cfg.WeibullShape, cfg.Seed, backend)
	}
	return a, nil
}

// Train enables training behavior (stochastic sampling when configured).
func (a *Attention[B]) Train() { a.training = true }

// Eval disables stochastic sampling; attention becomes deterministic
// softmax.
func (a *Attention[B]) Eval() { a.training = false }

// Training reports the current mode.
func (a *Attention[B]) Training() bool { return a.training }

// Config returns the module configuration.
func (a *Attention[B]) Config() Config { return a.cfg }

// Forward computes attention.
//
// Shapes:
//   - queries: [batch, Nq, OutDim]
//   - keys, values: [batch, Nk, OutDim]
//   - mask: nil or [batch, Nk]; a non-zero entry blocks that key position.
//     Memory slots are never blocked.
//   - weights: nil or [batch, Nk]; multiplies scores before masking.
//     Memory slot scores are never reweighted.
//
// Returns the attended output [batch, Nq, OutDim], the attention weights
// [batch, heads, Nq, Nk+M], and the KL divergence as a one-element tensor
// when stochastic sampling was active (nil otherwise).
func (a *Attention[B]) Forward(queries, keys, values, mask, weights *tensor.Tensor[B]) (out, alpha, kl *tensor.Tensor[B], err error) {
	if err := a.validate(queries, keys, values, mask, weights); err != nil {
		return nil, nil, nil, err
	}

	batch := queries.Shape()[0]
	nq := queries.Shape()[1]
	nk := keys.Shape()[1]
	nkTotal := nk + a.cfg.MemorySlots
	heads, dk, dv := a.cfg.NumHeads, a.cfg.KeyDim, a.cfg.ValueDim

	q := a.querygen.Forward(queries) // [batch, Nq, H*Dk]
	k := a.keygen.Forward(keys)      // [batch, Nk, H*Dk]
	v := a.valuegen.Forward(values)  // [batch, Nk, H*Dv]

	if a.cfg.MemorySlots > 0 {
		m := a.cfg.MemorySlots
		memK := a.memKeys.Tensor().
			MulScalar(float32(math.Sqrt(float64(dk)))).
			Expand(tensor.Shape{batch, m, heads * dk})
		memV := a.memValues.Tensor().
			MulScalar(float32(math.Sqrt(float64(m)))).
			Expand(tensor.Shape{batch, m, heads * dv})
		k = tensor.Cat([]*tensor.Tensor[B]{k, memK}, 1)
		v = tensor.Cat([]*tensor.Tensor[B]{v, memV}, 1)
	}

	// Split heads.
	qh := q.Reshape(batch, nq, heads, dk).Transpose(0, 2, 1, 3)      // [B, H, Nq, Dk]
	kh := k.Reshape(batch, nkTotal, heads, dk).Transpose(0, 2, 1, 3) // [B, H, NkT, Dk]
	vh := v.Reshape(batch, nkTotal, heads, dv).Transpose(0, 2, 1, 3) // [B, H, NkT, Dv]

	scale := 1 / float32(math.Sqrt(float64(dk)))
	scores := qh.BatchMatMul(kh.Transpose(0, 1, 3, 2)).MulScalar(scale) // [B, H, Nq, NkT]

	// Weighting first, masking second: a masked position stays at the
	// fill value no matter how it was weighted.
	if weights != nil {
		scores = scores.Mul(a.padWeights(weights, batch, nk))
	}
	var addMask *tensor.Tensor[B]
	if mask != nil {
		addMask = a.padMask(mask, batch, nk)
		scores = scores.Add(addMask)
	}

	if a.cfg.Stochastic && a.training {
		priorW := a.contextualPrior(kh, addMask)
		probs := scores.Softmax(-1)
		logprobs := probs.AddScalar(eps).Log()
		alpha = a.sampler.Sample(logprobs)
		kl = a.sampler.KL(logprobs, probs, priorW)
	} else {
		alpha = scores.Softmax(-1)
	}

	attended := alpha.BatchMatMul(vh). // [B, H, Nq, Dv]
						Transpose(0, 2, 1, 3).
						Reshape(batch, nq, heads*dv)
	out = a.output.Forward(attended)
	return out, alpha, kl, nil
}

// contextualPrior derives Gamma prior shape parameters from the keys via
// a two-layer projection, masked like the scores and normalized over the
// key axis. kh is [B, H, NkT, Dk]; the result is [B, H, 1, NkT] and
// broadcasts across queries.
func (a *Attention[B]) contextualPrior(kh, addMask *tensor.Tensor[B]) *tensor.Tensor[B] {
	sh := kh.Shape()
	batch, heads, nkTotal := sh[0], sh[1], sh[2]

	logits := a.prior2.Forward(a.prior1.Forward(kh).LeakyReLU(0.01)). // [B, H, NkT, 1]
										Reshape(batch, heads, 1, nkTotal)
	if addMask != nil {
		logits = logits.Add(addMask)
	}
	// The Gamma rate is fixed at 1, so the prior shape equals the
	// normalized weights.
	return logits.Softmax(-1)
}

// padWeights expands a [batch, Nk] weighting to [batch, 1, 1, Nk+M] with
// ones over the memory columns so slot scores pass through unscaled.
func (a *Attention[B]) padWeights(weights *tensor.Tensor[B], batch, nk int) *tensor.Tensor[B] {
	nkTotal := nk + a.cfg.MemorySlots
	padded := tensor.Ones(tensor.Shape{batch, 1, 1, nkTotal}, a.backend)
	pd, wd := padded.Data(), weights.Data()
	for b := 0; b < batch; b++ {
		copy(pd[b*nkTotal:b*nkTotal+nk], wd[b*nk:(b+1)*nk])
	}
	return padded
}

// padMask converts a [batch, Nk] blocking mask to an additive
// [batch, 1, 1, Nk+M] tensor: maskFill where blocked, zero elsewhere and
// over all memory columns.
func (a *Attention[B]) padMask(mask *tensor.Tensor[B], batch, nk int) *tensor.Tensor[B] {
	nkTotal := nk + a.cfg.MemorySlots
	padded := tensor.Zeros(tensor.Shape{batch, 1, 1, nkTotal}, a.backend)
	pd, md := padded.Data(), mask.Data()
	for b := 0; b < batch; b++ {
		for j := 0; j < nk; j++ {
			if md[b*nk+j] != 0 {
				pd[b*nkTotal+j] = maskFill
			}
		}
	}
	return padded
}

func (a *Attention[B]) validate(queries, keys, values, mask, weights *tensor.Tensor[B]) error {
	qs, ks, vs := queries.Shape(), keys.Shape(), values.Shape()
	if len(qs) != 3 || len(ks) != 3 || len(vs) != 3 {
		return nn.NewShapeError("Attention", "expected 3D [batch, seq, dim] inputs, got q=%v k=%v v=%v", qs, ks, vs)
	}
	if qs[2] != a.cfg.OutDim || ks[2] != a.cfg.OutDim || vs[2] != a.cfg.OutDim {
		return nn.NewShapeError("Attention", "expected feature dimension %d, got q=%d k=%d v=%d",
			a.cfg.OutDim, qs[2], ks[2], vs[2])
	}
	if qs[0] != ks[0] || ks[0] != vs[0] {
		return nn.NewShapeError("Attention", "batch sizes differ: q=%d k=%d v=%d", qs[0], ks[0], vs[0])
	}
	if ks[1] != vs[1] {
		return nn.NewShapeError("Attention", "key/value counts differ: %d vs %d", ks[1], vs[1])
	}
	want := tensor.Shape{ks[0], ks[1]}
	if mask != nil && !mask.Shape().Equal(want) {
		return nn.NewShapeError("Attention", "mask must be %v, got %v", want, mask.Shape())
	}
	if weights != nil && !weights.Shape().Equal(want) {
		return nn.NewShapeError("Attention", "weights must be %v, got %v", want, weights.Shape())
	}
	return nil
}

// Parameters returns all trainable parameters, including memory slots and
// prior projections when configured.
func (a *Attention[B]) Parameters() []*nn.Parameter[B] {
	params := append([]*nn.Parameter[B]{}, a.querygen.Parameters()...)
	params = append(params, a.keygen.Parameters()...)
	params = append(params, a.valuegen.Parameters()...)
	params = append(params, a.output.Parameters()...)
	if a.memKeys != nil {
		params = append(params, a.memKeys, a.memValues)
	}
	if a.prior1 != nil {
		params = append(params, a.prior1.Parameters()...)
		params = append(params, a.prior2.Parameters()...)
	}
	return params
}

// StateDict returns all parameters keyed by component.
func (a *Attention[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	for prefix, lin := range a.projections() {
		for k, v := range lin.StateDict() {
			sd[prefix+"."+k] = v
		}
	}
	if a.memKeys != nil {
		sd["mem_keys"] = a.memKeys.Tensor().Raw()
		sd["mem_values"] = a.memValues.Tensor().Raw()
	}
	return sd
}

// LoadStateDict restores all parameters from a state dictionary.
func (a *Attention[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
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
	if a.memKeys != nil {
		if err := loadRaw(sd, "mem_keys", a.memKeys); err != nil {
			return err
		}
		if err := loadRaw(sd, "mem_values", a.memValues); err != nil {
			return err
		}
	}
	return nil
}

func (a *Attention[B]) projections() map[string]*nn.Linear[B] {
	m := map[string]*nn.Linear[B]{
		"querygen": a.querygen,
		"keygen":   a.keygen,
		"valuegen": a.valuegen,
		"output":   a.output,
	}
	if a.prior1 != nil {
		m["prior1"] = a.prior1
		m["prior2"] = a.prior2
	}
	return m
}

func loadRaw[B tensor.Backend](sd map[string]*tensor.RawTensor, name string, p *nn.Parameter[B]) error {
	raw, ok := sd[name]
	if !ok {
		return nn.NewShapeError("Attention", "missing %s in state dict", name)
	}
	if !raw.Shape().Equal(p.Tensor().Shape()) {
		return nn.NewShapeError("Attention", "%s shape mismatch: expected %v, got %v",
			name, p.Tensor().Shape(), raw.Shape())
	}
	copy(p.Tensor().Data(), raw.Data())
	return nil
}

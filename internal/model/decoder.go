package model

import (
	"math/rand"

	"github.com/captiva-ml/captiva/internal/attention"
	"github.com/captiva-ml/captiva/internal/nn"
	"github.com/captiva-ml/captiva/internal/tensor"
)

// DecoderConfig configures the recurrent captioning decoder.
type DecoderConfig struct {
	VocabSize    int
	EmbedDim     int
	EncoderDim   int // annotation vector dimension D
	HiddenDim    int
	AttentionDim int
	Dropout      float32

	StartToken int // fed at step 0 when no caption is supplied

	// Stochastic selects the Bayesian decoder: attention weights are
	// Weibull samples during training and the forward pass reports a KL
	// term for the loss.
	Stochastic   bool
	WeibullShape float32
	Seed         int64
}

// DecoderOutput is one forward pass over a batch.
type DecoderOutput[B tensor.Backend] struct {
	// Scores is [batch, maxLen, vocab]. Steps skipped by the
	// teacher-forcing early exit are zero rows.
	Scores *tensor.Tensor[B]
	// Alphas is [batch, maxLen, L], the per-step attention weights kept
	// for the doubly stochastic penalty.
	Alphas *tensor.Tensor[B]
	// KL is the summed attention KL over executed steps; nil unless the
	// decoder is stochastic and training.
	KL *tensor.Tensor[B]
	// Steps is the number of steps actually executed.
	Steps int
}

// Decoder generates captions auto-regressively. Each step attends over
// the annotation vectors, gates the context with a learned sigmoid,
// feeds [embedded previous token ‖ gated context] through an LSTM cell
// and projects the hidden state to vocabulary scores.
//
// Scheduled sampling: every step uses teacher forcing with probability
// equal to the current rate. The rate starts at 1 and is decremented by
// the caller via UpdateScheduledSampling, clamping at 0; at 0 the
// decoder never applies teacher forcing.
type Decoder[B tensor.Backend] struct {
	cfg     DecoderConfig
	backend B

	embedding  *nn.Embedding[B]
	att        *attention.SATAttention[B]
	initHidden *nn.Linear[B] // D -> hidden
	initCell   *nn.Linear[B]
	gate       *nn.Linear[B] // hidden -> D, sigmoid context gate
	cell       *nn.LSTMCell[B]
	dropout    *nn.Dropout[B]
	output     *nn.Linear[B] // hidden -> vocab

	ssRate   float32
	rng      *rand.Rand
	training bool
}

// NewDecoder creates a Decoder from cfg.
func NewDecoder[B tensor.Backend](cfg DecoderConfig, backend B) (*Decoder[B], error) {
	if cfg.VocabSize <= 0 || cfg.EmbedDim <= 0 || cfg.EncoderDim <= 0 || cfg.HiddenDim <= 0 || cfg.AttentionDim <= 0 {
		return nil, nn.NewConfigError("Decoder",
			"dimensions must be positive, got vocab=%d embed=%d encoder=%d hidden=%d attention=%d",
			cfg.VocabSize, cfg.EmbedDim, cfg.EncoderDim, cfg.HiddenDim, cfg.AttentionDim)
	}
	if cfg.StartToken < 0 || cfg.StartToken >= cfg.VocabSize {
		return nil, nn.NewConfigError("Decoder", "start token %d outside vocabulary of size %d", cfg.StartToken, cfg.VocabSize)
	}

	d := &Decoder[B]{
		cfg:      cfg,
		backend:  backend,
		ssRate:   1,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		training: true,
	}
	var err error
	if d.embedding, err = nn.NewEmbedding(cfg.VocabSize, cfg.EmbedDim, backend); err != nil {
		return nil, err
	}
	if d.att, err = attention.NewSAT(attention.SATConfig{
		EncoderDim:   cfg.EncoderDim,
		HiddenDim:    cfg.HiddenDim,
		AttentionDim: cfg.AttentionDim,
		Stochastic:   cfg.Stochastic,
		WeibullShape: cfg.WeibullShape,
		Seed:         cfg.Seed,
	}, backend); err != nil {
		return nil, err
	}
	if d.initHidden, err = nn.NewLinear(cfg.EncoderDim, cfg.HiddenDim, backend); err != nil {
		return nil, err
	}
	if d.initCell, err = nn.NewLinear(cfg.EncoderDim, cfg.HiddenDim, backend); err != nil {
		return nil, err
	}
	if d.gate, err = nn.NewLinear(cfg.HiddenDim, cfg.EncoderDim, backend); err != nil {
		return nil, err
	}
	if d.cell, err = nn.NewLSTMCell(cfg.EmbedDim+cfg.EncoderDim, cfg.HiddenDim, backend); err != nil {
		return nil, err
	}
	if d.dropout, err = nn.NewDropout(cfg.Dropout, cfg.Seed, backend); err != nil {
		return nil, err
	}
	if d.output, err = nn.NewLinear(cfg.HiddenDim, cfg.VocabSize, backend); err != nil {
		return nil, err
	}
	return d, nil
}

// Train enables dropout, stochastic attention and scheduled sampling.
func (d *Decoder[B]) Train() {
	d.training = true
	d.att.Train()
	d.dropout.Train()
}

// Eval makes the decoder deterministic: no dropout, no sampling, no
// teacher forcing.
func (d *Decoder[B]) Eval() {
	d.training = false
	d.att.Eval()
	d.dropout.Eval()
}

// Training reports the current mode.
func (d *Decoder[B]) Training() bool { return d.training }

// TeacherForcingRate returns the current scheduled-sampling rate.
func (d *Decoder[B]) TeacherForcingRate() float32 { return d.ssRate }

// UpdateScheduledSampling decrements the teacher-forcing rate by the
// convergence rate, clamping at 0. Called once per scheduling unit,
// typically an epoch.
func (d *Decoder[B]) UpdateScheduledSampling(convergenceRate float32) {
	d.ssRate -= convergenceRate
	if d.ssRate < 0 {
		d.ssRate = 0
	}
}

// Forward decodes maxLen steps over a batch of annotation sets.
//
// features is [batch, L, EncoderDim]. captions, when non-nil, holds the
// ground-truth token sequence per batch row (start token first); it is
// the teacher-forcing source. A nil captions means the decoder always
// feeds its own predictions.
//
// Scores are always [batch, maxLen, vocab] and alphas [batch, maxLen, L]
// regardless of caption lengths: steps cut off by the teacher-forcing
// early exit remain zero.
func (d *Decoder[B]) Forward(features *tensor.Tensor[B], captions [][]int, maxLen int) (*DecoderOutput[B], error) {
	fs := features.Shape()
	if len(fs) != 3 || fs[2] != d.cfg.EncoderDim {
		return nil, nn.NewShapeError("Decoder", "features must be [batch, L, %d], got %v", d.cfg.EncoderDim, fs)
	}
	if maxLen <= 0 {
		return nil, nn.NewShapeError("Decoder", "max caption length must be positive, got %d", maxLen)
	}
	batch, l := fs[0], fs[1]

	maxCaptionLen := 0
	if captions != nil {
		if len(captions) != batch {
			return nil, nn.NewShapeError("Decoder", "captions batch %d does not match features batch %d", len(captions), batch)
		}
		for i, row := range captions {
			if len(row) == 0 {
				return nil, nn.NewShapeError("Decoder", "caption %d is empty", i)
			}
			for _, tok := range row {
				if tok < 0 || tok >= d.cfg.VocabSize {
					return nil, nn.NewShapeError("Decoder", "caption %d holds token %d outside vocabulary of size %d", i, tok, d.cfg.VocabSize)
				}
			}
			if len(row) > maxCaptionLen {
				maxCaptionLen = len(row)
			}
		}
	}

	// h0, c0 from the mean annotation vector.
	meanFeat := features.MeanDim(1, false) // [batch, D]
	h := d.initHidden.Forward(meanFeat).ReLU()
	c := d.initCell.Forward(meanFeat).ReLU()

	prev := make([]int, batch)
	for i := range prev {
		if captions != nil {
			prev[i] = captions[i][0]
		} else {
			prev[i] = d.cfg.StartToken
		}
	}

	stepScores := make([]*tensor.Tensor[B], 0, maxLen)
	stepAlphas := make([]*tensor.Tensor[B], 0, maxLen)
	var kl *tensor.Tensor[B]

	steps := 0
	for t := 0; t < maxLen; t++ {
		useTeacher := captions != nil && d.training && d.ssRate > 0 && d.rng.Float32() < d.ssRate
		if useTeacher {
			if t >= maxCaptionLen {
				break
			}
			for i, row := range captions {
				if t < len(row) {
					prev[i] = row[t]
				}
			}
		}

		embedded := d.embedding.Forward(prev) // [batch, E]

		context, alpha, stepKL, err := d.att.Forward(features, h)
		if err != nil {
			return nil, err
		}
		context = context.Mul(d.gate.Forward(h).Sigmoid())

		h, c = d.cell.Forward(tensor.Cat([]*tensor.Tensor[B]{embedded, context}, 1), h, c)

		preds := d.output.Forward(d.dropout.Forward(h)) // [batch, vocab]
		stepScores = append(stepScores, preds.Reshape(batch, 1, d.cfg.VocabSize))
		stepAlphas = append(stepAlphas, alpha.Reshape(batch, 1, l))
		if stepKL != nil {
			if kl == nil {
				kl = stepKL
			} else {
				kl = kl.Add(stepKL)
			}
		}

		steps++
		if !useTeacher {
			copy(prev, preds.Argmax())
		}
	}

	// Pad early-exited steps with zeros so the output shape is stable.
	for t := steps; t < maxLen; t++ {
		stepScores = append(stepScores, tensor.Zeros(tensor.Shape{batch, 1, d.cfg.VocabSize}, d.backend))
		stepAlphas = append(stepAlphas, tensor.Zeros(tensor.Shape{batch, 1, l}, d.backend))
	}

	return &DecoderOutput[B]{
		Scores: tensor.Cat(stepScores, 1),
		Alphas: tensor.Cat(stepAlphas, 1),
		KL:     kl,
		Steps:  steps,
	}, nil
}

// Generate greedily decodes token ids for a batch of annotation sets,
// stopping each row at endToken or after maxLen steps. The decoder
// should be in Eval mode for deterministic captions.
func (d *Decoder[B]) Generate(features *tensor.Tensor[B], endToken, maxLen int) ([][]int, error) {
	out, err := d.Forward(features, nil, maxLen)
	if err != nil {
		return nil, err
	}

	batch := features.Shape()[0]
	sd := out.Scores.Data()
	v := d.cfg.VocabSize
	result := make([][]int, batch)
	for b := 0; b < batch; b++ {
		for t := 0; t < out.Steps; t++ {
			base := (b*maxLen + t) * v
			best, bestTok := sd[base], 0
			for j := 1; j < v; j++ {
				if sd[base+j] > best {
					best, bestTok = sd[base+j], j
				}
			}
			if bestTok == endToken {
				break
			}
			result[b] = append(result[b], bestTok)
		}
	}
	return result, nil
}

// Parameters returns all trainable parameters.
func (d *Decoder[B]) Parameters() []*nn.Parameter[B] {
	params := append([]*nn.Parameter[B]{}, d.embedding.Parameters()...)
	params = append(params, d.att.Parameters()...)
	params = append(params, d.initHidden.Parameters()...)
	params = append(params, d.initCell.Parameters()...)
	params = append(params, d.gate.Parameters()...)
	params = append(params, d.cell.Parameters()...)
	params = append(params, d.output.Parameters()...)
	return params
}

// StateDict returns all parameters keyed by component.
func (d *Decoder[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	for prefix, m := range d.components() {
		for k, v := range m.StateDict() {
			sd[prefix+"."+k] = v
		}
	}
	return sd
}

// LoadStateDict restores all parameters from a state dictionary.
func (d *Decoder[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	for prefix, m := range d.components() {
		sub := make(map[string]*tensor.RawTensor)
		for k, v := range sd {
			if len(k) > len(prefix) && k[:len(prefix)] == prefix && k[len(prefix)] == '.' {
				sub[k[len(prefix)+1:]] = v
			}
		}
		if err := m.LoadStateDict(sub); err != nil {
			return err
		}
	}
	return nil
}

// stateful is the subset of module behavior the decoder needs for
// checkpointing.
type stateful interface {
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(map[string]*tensor.RawTensor) error
}

func (d *Decoder[B]) components() map[string]stateful {
	return map[string]stateful{
		"embedding": d.embedding,
		"attention": d.att,
		"init_h":    d.initHidden,
		"init_c":    d.initCell,
		"f_beta":    d.gate,
		"lstm":      d.cell,
		"output":    d.output,
	}
}

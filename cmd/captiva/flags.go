package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/captiva-ml/captiva/internal/autodiff"
	"github.com/captiva-ml/captiva/internal/backend/cpu"
	"github.com/captiva-ml/captiva/internal/checkpoint"
	"github.com/captiva-ml/captiva/internal/dataset"
	"github.com/captiva-ml/captiva/internal/model"
)

// captionBackend is the CPU backend with gradient recording.
type captionBackend = *autodiff.Backend[*cpu.Backend]

func newBackend() captionBackend { return autodiff.New(cpu.New()) }

// modelFlags holds the architecture hyperparameters. Evaluate and
// caption must be invoked with the same values the model was trained
// with; checkpoints store tensor shapes, so a mismatch fails at load.
type modelFlags struct {
	channels     []int
	gridSize     int
	embedDim     int
	hiddenDim    int
	attentionDim int
	dropout      float32
	stochastic   bool
	weibullShape float32
	seed         int64
}

func (f *modelFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.IntSliceVar(&f.channels, "channels", []int{32, 64, 128}, "Encoder conv block channels")
	flags.IntVar(&f.gridSize, "grid-size", 7, "Encoder annotation grid side G (L = G*G)")
	flags.IntVar(&f.embedDim, "embed-dim", 256, "Word embedding dimension")
	flags.IntVar(&f.hiddenDim, "hidden-dim", 512, "LSTM hidden dimension")
	flags.IntVar(&f.attentionDim, "attention-dim", 256, "Attention projection dimension")
	flags.Float32Var(&f.dropout, "dropout", 0.5, "Dropout before the output projection")
	flags.BoolVar(&f.stochastic, "stochastic", false, "Use Bayesian stochastic attention")
	flags.Float32Var(&f.weibullShape, "weibull-shape", 5, "Weibull shape for stochastic attention")
	flags.Int64Var(&f.seed, "seed", 42, "Random seed")
}

func (f *modelFlags) build(vocabSize int, backend captionBackend) (*model.CaptionModel[captionBackend], error) {
	return model.NewCaptionModel(
		model.EncoderConfig{
			InChannels: 3,
			Channels:   f.channels,
			GridSize:   f.gridSize,
		},
		model.DecoderConfig{
			VocabSize:    vocabSize,
			EmbedDim:     f.embedDim,
			EncoderDim:   f.channels[len(f.channels)-1],
			HiddenDim:    f.hiddenDim,
			AttentionDim: f.attentionDim,
			Dropout:      f.dropout,
			StartToken:   dataset.StartToken,
			Stochastic:   f.stochastic,
			WeibullShape: f.weibullShape,
			Seed:         f.seed,
		},
		backend,
	)
}

// loadModel restores a trained model from a vocabulary file and a
// checkpoint.
func loadModel(f *modelFlags, vocabPath, checkpointPath string, backend captionBackend) (*model.CaptionModel[captionBackend], *dataset.Vocab, error) {
	vocab, err := dataset.LoadVocab(vocabPath)
	if err != nil {
		return nil, nil, err
	}
	m, err := f.build(vocab.Size(), backend)
	if err != nil {
		return nil, nil, err
	}
	sd, _, err := checkpoint.Load(checkpointPath)
	if err != nil {
		return nil, nil, err
	}
	if err := m.LoadStateDict(sd); err != nil {
		return nil, nil, fmt.Errorf("restore model: %w", err)
	}
	return m, vocab, nil
}

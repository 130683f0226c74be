package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/captiva-ml/captiva/internal/dataset"
	"github.com/captiva-ml/captiva/internal/optim"
	"github.com/captiva-ml/captiva/internal/train"
)

func newTrainCmd() *cobra.Command {
	var mf modelFlags
	var (
		imageDir    string
		captions    string
		valCaptions string
		vocabPath   string
		ckptPath    string

		imageSize   int
		minWordFreq int
		maxWorkers  int
		augment     bool

		epochs      int
		batchSize   int
		lr          float32
		alphaC      float32
		klWeight    float32
		convergence float32
		patience    int
		minDelta    float64
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a captioning model on an image/captions dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend := newBackend()

			trainData, err := dataset.Load(dataset.Config{
				ImageDir:     imageDir,
				CaptionsFile: captions,
				MinWordFreq:  minWordFreq,
				ImageSize:    imageSize,
				MaxWorkers:   maxWorkers,
				Augment:      augment,
				Seed:         mf.seed,
			})
			if err != nil {
				return err
			}
			if err := trainData.Vocab().Save(vocabPath); err != nil {
				return fmt.Errorf("save vocabulary: %w", err)
			}

			var valData *dataset.Dataset
			if valCaptions != "" {
				valData, err = dataset.LoadWithVocab(dataset.Config{
					ImageDir:     imageDir,
					CaptionsFile: valCaptions,
					ImageSize:    imageSize,
					MaxWorkers:   maxWorkers,
					Seed:         mf.seed,
				}, trainData.Vocab())
				if err != nil {
					return err
				}
			}

			m, err := mf.build(trainData.Vocab().Size(), backend)
			if err != nil {
				return err
			}

			trainer, err := train.New(
				m,
				optim.NewAdam(m.Parameters(), optim.AdamConfig{LR: lr}),
				trainData, valData,
				train.Config{
					Epochs:          epochs,
					BatchSize:       batchSize,
					Loss:            train.LossConfig{AlphaC: alphaC, KLWeight: klWeight},
					ConvergenceRate: convergence,
					CheckpointPath:  ckptPath,
					Patience:        patience,
					MinDelta:        minDelta,
				},
				backend,
				slog.Default(),
			)
			if err != nil {
				return err
			}
			return trainer.Run(cmd.Context())
		},
	}

	mf.register(cmd)
	flags := cmd.Flags()
	flags.StringVar(&imageDir, "image-dir", "", "Directory holding the dataset images")
	flags.StringVar(&captions, "captions", "", "Training captions file (image.jpg#n<TAB>caption)")
	flags.StringVar(&valCaptions, "val-captions", "", "Validation captions file (optional)")
	flags.StringVar(&vocabPath, "vocab", "vocab.json", "Vocabulary output path")
	flags.StringVar(&ckptPath, "checkpoint", "best.cap", "Checkpoint written on improvement")
	flags.IntVar(&imageSize, "image-size", 224, "Square side images are resized to")
	flags.IntVar(&minWordFreq, "min-word-freq", 5, "Vocabulary frequency cutoff")
	flags.IntVar(&maxWorkers, "workers", 0, "Parallel image loaders (0 = default)")
	flags.BoolVar(&augment, "augment", true, "Random flips and crops during training")
	flags.IntVar(&epochs, "epochs", 30, "Training epochs")
	flags.IntVar(&batchSize, "batch-size", 32, "Batch size")
	flags.Float32Var(&lr, "lr", 4e-4, "Adam learning rate")
	flags.Float32Var(&alphaC, "alpha-c", 1.0, "Doubly stochastic attention penalty weight")
	flags.Float32Var(&klWeight, "kl-weight", 0.001, "Stochastic attention KL weight")
	flags.Float32Var(&convergence, "convergence-rate", 0.05, "Teacher-forcing decay per epoch")
	flags.IntVar(&patience, "patience", 5, "Early-stopping patience in epochs")
	flags.Float64Var(&minDelta, "min-delta", 0, "Minimum improvement for early stopping")
	cobra.CheckErr(cmd.MarkFlagRequired("image-dir"))
	cobra.CheckErr(cmd.MarkFlagRequired("captions"))
	return cmd
}

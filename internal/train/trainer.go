package train

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/captiva-ml/captiva/internal/autodiff"
	"github.com/captiva-ml/captiva/internal/checkpoint"
	"github.com/captiva-ml/captiva/internal/dataset"
	"github.com/captiva-ml/captiva/internal/metrics"
	"github.com/captiva-ml/captiva/internal/model"
	"github.com/captiva-ml/captiva/internal/optim"
)

// Config controls a training run.
type Config struct {
	Epochs    int
	BatchSize int

	Loss            LossConfig
	ConvergenceRate float32 // scheduled-sampling decrement per epoch

	CheckpointPath string // checkpoint written on validation improvement
	Patience       int    // early-stopping patience in epochs
	MinDelta       float64
}

// Trainer runs the epoch loop over a captioning model.
type Trainer[B autodiff.BackwardCapable] struct {
	model     *model.CaptionModel[B]
	optimizer optim.Optimizer
	trainData *dataset.Dataset
	valData   *dataset.Dataset // nil disables validation
	backend   B
	cfg       Config
	logger    *slog.Logger
}

// New creates a Trainer. valData may be nil; early stopping and
// checkpointing then follow the training loss.
func New[B autodiff.BackwardCapable](
	m *model.CaptionModel[B],
	optimizer optim.Optimizer,
	trainData, valData *dataset.Dataset,
	cfg Config,
	backend B,
	logger *slog.Logger,
) (*Trainer[B], error) {
	if m == nil || optimizer == nil || trainData == nil {
		return nil, fmt.Errorf("trainer requires a model, an optimizer and training data")
	}
	if cfg.Epochs <= 0 || cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("epochs and batch size must be positive, got %d and %d", cfg.Epochs, cfg.BatchSize)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer[B]{
		model:     m,
		optimizer: optimizer,
		trainData: trainData,
		valData:   valData,
		backend:   backend,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Run executes the training loop until the epoch count, early stopping
// or context cancellation ends it.
func (t *Trainer[B]) Run(ctx context.Context) error {
	tape := t.backend.GetTape()
	tape.StartRecording()
	defer tape.StopRecording()

	stopper := NewEarlyStopping(max(t.cfg.Patience, 1), t.cfg.MinDelta, MinMode)

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		trainLoss, err := t.runEpoch(ctx, epoch)
		if err != nil {
			return err
		}

		t.model.Decoder.UpdateScheduledSampling(t.cfg.ConvergenceRate)

		metric := trainLoss
		if t.valData != nil {
			valLoss, acc, err := t.validate(ctx)
			if err != nil {
				return err
			}
			metric = valLoss
			t.logger.Info("validation",
				"epoch", epoch,
				"loss", valLoss,
				"top5_accuracy", acc)
		}

		if stopper.Step(metric) && t.cfg.CheckpointPath != "" {
			meta := &checkpoint.TrainingMeta{
				Epoch:              epoch,
				Loss:               metric,
				TeacherForcingRate: t.model.Decoder.TeacherForcingRate(),
				Optimizer:          fmt.Sprintf("%T", t.optimizer),
			}
			if err := checkpoint.Save(t.cfg.CheckpointPath, t.model.StateDict(), meta); err != nil {
				return fmt.Errorf("save checkpoint: %w", err)
			}
			t.logger.Info("checkpoint saved", "path", t.cfg.CheckpointPath, "epoch", epoch)
		}
		if stopper.ShouldStop() {
			t.logger.Info("early stopping", "epoch", epoch, "best", stopper.Best())
			return nil
		}
	}
	return nil
}

func (t *Trainer[B]) runEpoch(ctx context.Context, epoch int) (float64, error) {
	t.model.Train()
	t.trainData.Shuffle()
	tape := t.backend.GetTape()

	var meter metrics.AverageMeter
	n := t.trainData.Len()
	for start := 0; start < n; start += t.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		end := min(start+t.cfg.BatchSize, n)

		batch, err := dataset.LoadBatch(t.trainData, start, end, t.backend)
		if err != nil {
			return 0, err
		}
		steps := batch.MaxLen - 1

		out, err := t.model.Forward(batch.Images, batch.Captions, steps)
		if err != nil {
			return 0, err
		}
		loss := CaptionLoss(out, Targets(batch.Captions, steps), t.cfg.Loss)

		grads := autodiff.Backward(loss, t.backend)
		t.optimizer.Step(grads)
		tape.Clear()

		meter.Update(float64(loss.Item()), end-start)
	}

	t.logger.Info("epoch complete",
		"epoch", epoch,
		"loss", meter.Average(),
		"teacher_forcing_rate", t.model.Decoder.TeacherForcingRate(),
		"lr", t.optimizer.LR())
	return meter.Average(), nil
}

// validate computes loss and top-5 word accuracy over the validation set
// without recording gradients.
func (t *Trainer[B]) validate(ctx context.Context) (loss, accuracy float64, err error) {
	t.model.Eval()
	defer t.model.Train()

	tape := t.backend.GetTape()
	tape.StopRecording()
	defer tape.StartRecording()

	var lossMeter, accMeter metrics.AverageMeter
	n := t.valData.Len()
	for start := 0; start < n; start += t.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		end := min(start+t.cfg.BatchSize, n)

		batch, err := dataset.LoadBatch(t.valData, start, end, t.backend)
		if err != nil {
			return 0, 0, err
		}
		steps := batch.MaxLen - 1

		out, err := t.model.Forward(batch.Images, batch.Captions, steps)
		if err != nil {
			return 0, 0, err
		}
		targets := Targets(batch.Captions, steps)
		l := CaptionLoss(out, targets, t.cfg.Loss)

		shape := out.Scores.Shape()
		flat := out.Scores.Reshape(shape[0]*shape[1], shape[2])
		acc := metrics.TopKAccuracy(flat.Raw(), targets, 5)

		lossMeter.Update(float64(l.Item()), end-start)
		accMeter.Update(acc, end-start)
	}
	return lossMeter.Average(), accMeter.Average(), nil
}

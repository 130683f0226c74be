package train

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captiva-ml/captiva/internal/autodiff"
	"github.com/captiva-ml/captiva/internal/backend/cpu"
	"github.com/captiva-ml/captiva/internal/checkpoint"
	"github.com/captiva-ml/captiva/internal/dataset"
	"github.com/captiva-ml/captiva/internal/model"
	"github.com/captiva-ml/captiva/internal/optim"
	"github.com/captiva-ml/captiva/internal/tensor"
)

type testBackend = *autodiff.Backend[*cpu.Backend]

func TestTargets(t *testing.T) {
	captions := [][]int{
		{1, 5, 6, 2}, // start, w, w, end
		{1, 7, 2},
	}
	targets := Targets(captions, 3)
	assert.Equal(t, []int{5, 6, 2, 7, 2, -1}, targets)
}

func TestEarlyStopping_MinMode(t *testing.T) {
	es := NewEarlyStopping(2, 0.01, MinMode)

	assert.True(t, es.Step(1.0), "first value is always an improvement")
	assert.True(t, es.Step(0.8))
	assert.False(t, es.Step(0.795), "within delta is not an improvement")
	assert.False(t, es.ShouldStop())
	assert.False(t, es.Step(0.9))
	assert.True(t, es.ShouldStop())
	assert.InDelta(t, 0.8, es.Best(), 1e-9)
}

func TestEarlyStopping_MaxMode(t *testing.T) {
	es := NewEarlyStopping(1, 0, MaxMode)
	assert.True(t, es.Step(0.2))
	assert.True(t, es.Step(0.3))
	assert.False(t, es.Step(0.25))
	assert.True(t, es.ShouldStop())
}

func TestCaptionLoss_Composition(t *testing.T) {
	backend := autodiff.New(cpu.New())

	scores := tensor.Randn(tensor.Shape{2, 3, 5}, backend)
	alphas := tensor.Rand(tensor.Shape{2, 3, 4}, backend)
	out := &model.DecoderOutput[testBackend]{Scores: scores, Alphas: alphas, Steps: 3}
	targets := []int{1, 2, 3, 4, 0, -1}

	base := CaptionLoss(out, targets, LossConfig{})
	withPenalty := CaptionLoss(out, targets, LossConfig{AlphaC: 1})
	assert.Greater(t, withPenalty.Item(), base.Item(), "doubly stochastic penalty adds to the loss")

	kl, _ := tensor.FromSlice([]float32{0.25}, tensor.Shape{1}, backend)
	out.KL = kl
	withKL := CaptionLoss(out, targets, LossConfig{KLWeight: 2})
	assert.InDelta(t, float64(base.Item())+0.5, float64(withKL.Item()), 1e-5)
}

func writeTrainImage(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			img.Set(x, y, color.RGBA{R: uint8(13 * x), G: uint8(7 * y), B: 50, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func testDataset(t *testing.T, dir string) *dataset.Dataset {
	t.Helper()
	imageDir := filepath.Join(dir, "images")
	require.NoError(t, os.MkdirAll(imageDir, 0o755))
	writeTrainImage(t, filepath.Join(imageDir, "a.jpg"))
	writeTrainImage(t, filepath.Join(imageDir, "b.jpg"))

	captionsPath := filepath.Join(dir, "captions.txt")
	content := "a.jpg#0\tA dog runs .\n" +
		"b.jpg#0\tA cat sleeps on the mat .\n"
	require.NoError(t, os.WriteFile(captionsPath, []byte(content), 0o644))

	ds, err := dataset.Load(dataset.Config{
		ImageDir:     imageDir,
		CaptionsFile: captionsPath,
		ImageSize:    16,
		Seed:         1,
	})
	require.NoError(t, err)
	return ds
}

func TestTrainer_RunsOneEpoch(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}

	backend := autodiff.New(cpu.New())
	dir := t.TempDir()
	ds := testDataset(t, dir)

	m, err := model.NewCaptionModel(
		model.EncoderConfig{InChannels: 3, Channels: []int{4, 8}, GridSize: 2},
		model.DecoderConfig{
			VocabSize:    ds.Vocab().Size(),
			EmbedDim:     6,
			EncoderDim:   8,
			HiddenDim:    10,
			AttentionDim: 4,
			StartToken:   dataset.StartToken,
			Seed:         2,
		},
		backend,
	)
	require.NoError(t, err)

	ckptPath := filepath.Join(dir, "best.cap")
	trainer, err := New(
		m,
		optim.NewAdam(m.Parameters(), optim.AdamConfig{LR: 0.01}),
		ds, nil,
		Config{
			Epochs:          1,
			BatchSize:       2,
			Loss:            LossConfig{AlphaC: 1},
			ConvergenceRate: 0.1,
			CheckpointPath:  ckptPath,
		},
		backend,
		slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	)
	require.NoError(t, err)

	require.NoError(t, trainer.Run(context.Background()))

	// One epoch decays the teacher-forcing rate once.
	assert.InDelta(t, 0.9, m.Decoder.TeacherForcingRate(), 1e-6)

	// The improvement checkpoint must load back.
	sd, header, err := checkpoint.Load(ckptPath)
	require.NoError(t, err)
	require.NotNil(t, header.Training)
	assert.Equal(t, 1, header.Training.Epoch)
	require.NoError(t, m.LoadStateDict(sd))
}

func TestTrainer_InvalidConfig(t *testing.T) {
	backend := autodiff.New(cpu.New())
	_, err := New[testBackend](nil, nil, nil, nil, Config{}, backend, nil)
	assert.Error(t, err)
}

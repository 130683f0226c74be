package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captiva-ml/captiva/internal/tensor"
)

func testStateDict(t *testing.T) map[string]*tensor.RawTensor {
	t.Helper()
	w, err := tensor.NewRaw(tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	b, err := tensor.NewRaw(tensor.Shape{3}, []float32{-0.5, 0, 0.5})
	require.NoError(t, err)
	return map[string]*tensor.RawTensor{"layer.weight": w, "layer.bias": b}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.cap")
	sd := testStateDict(t)

	training := &TrainingMeta{Epoch: 7, Loss: 2.31, TeacherForcingRate: 0.55, Optimizer: "adam"}
	require.NoError(t, Save(path, sd, training))

	loaded, header, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	for name, want := range sd {
		got, ok := loaded[name]
		require.True(t, ok, "missing tensor %s", name)
		assert.Equal(t, want.Shape(), got.Shape())
		assert.Equal(t, want.Data(), got.Data())
	}

	require.NotNil(t, header.Training)
	assert.Equal(t, 7, header.Training.Epoch)
	assert.InDelta(t, 2.31, header.Training.Loss, 1e-9)
	assert.InDelta(t, 0.55, header.Training.TeacherForcingRate, 1e-6)
	assert.Equal(t, "adam", header.Training.Optimizer)
	assert.Equal(t, FormatVersion, header.FormatVersion)
}

func TestSaveLoad_NoTrainingMeta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.cap")
	require.NoError(t, Save(path, testStateDict(t), nil))

	_, header, err := Load(path)
	require.NoError(t, err)
	assert.Nil(t, header.Training)
}

func TestLoad_RejectsCorruptedData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.cap")
	require.NoError(t, Save(path, testStateDict(t), nil))

	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	blob[len(blob)-1] ^= 0xFF // flip a data byte
	require.NoError(t, os.WriteFile(path, blob, 0o644))

	_, _, err = Load(path)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestLoad_RejectsWrongMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.cap")
	require.NoError(t, Save(path, testStateDict(t), nil))

	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	copy(blob, "NOPE")
	require.NoError(t, os.WriteFile(path, blob, 0o644))

	_, _, err = Load(path)
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestLoad_RejectsFutureVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.cap")
	require.NoError(t, Save(path, testStateDict(t), nil))

	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	blob[4] = 99
	require.NoError(t, os.WriteFile(path, blob, 0o644))

	_, _, err = Load(path)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestSave_EmptyStateDict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.cap")
	require.NoError(t, Save(path, map[string]*tensor.RawTensor{}, nil))

	loaded, _, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

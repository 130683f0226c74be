package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captiva-ml/captiva/internal/tensor"
)

func encoderConfig() EncoderConfig {
	return EncoderConfig{InChannels: 3, Channels: []int{4, 8}, GridSize: 2}
}

func TestEncoder_OutputShape(t *testing.T) {
	backend := newTestBackend()
	enc, err := NewEncoder(encoderConfig(), backend)
	require.NoError(t, err)

	assert.Equal(t, 8, enc.EncoderDim())
	assert.Equal(t, 4, enc.NumAnnotations())

	images := tensor.Randn(tensor.Shape{2, 3, 16, 16}, backend)
	features, err := enc.Forward(images)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 4, 8}, features.Shape())
}

func TestEncoder_Freeze(t *testing.T) {
	backend := newTestBackend()
	enc, err := NewEncoder(encoderConfig(), backend)
	require.NoError(t, err)

	assert.Len(t, enc.Parameters(), 4)

	enc.Freeze()
	assert.True(t, enc.Frozen())
	assert.Empty(t, enc.Parameters())

	enc.Unfreeze()
	assert.Len(t, enc.Parameters(), 4)
}

func TestEncoder_Validation(t *testing.T) {
	backend := newTestBackend()
	enc, err := NewEncoder(encoderConfig(), backend)
	require.NoError(t, err)

	// Wrong channel count.
	gray := tensor.Randn(tensor.Shape{1, 1, 16, 16}, backend)
	_, err = enc.Forward(gray)
	assert.Error(t, err)

	// Too small to survive two pooling stages.
	tiny := tensor.Randn(tensor.Shape{1, 3, 2, 2}, backend)
	_, err = enc.Forward(tiny)
	assert.Error(t, err)

	_, err = NewEncoder(EncoderConfig{InChannels: 3, GridSize: 2}, backend)
	assert.Error(t, err)
}

func TestEncoder_StateDictRoundTrip(t *testing.T) {
	backend := newTestBackend()
	a, err := NewEncoder(encoderConfig(), backend)
	require.NoError(t, err)
	b, err := NewEncoder(encoderConfig(), backend)
	require.NoError(t, err)

	require.NoError(t, b.LoadStateDict(a.StateDict()))

	images := tensor.Randn(tensor.Shape{1, 3, 16, 16}, backend)
	fA, err := a.Forward(images)
	require.NoError(t, err)
	fB, err := b.Forward(images)
	require.NoError(t, err)
	assert.Equal(t, fA.Data(), fB.Data())
}

func TestCaptionModel_EndToEnd(t *testing.T) {
	backend := newTestBackend()
	dec := decoderConfig()
	m, err := NewCaptionModel(encoderConfig(), dec, backend)
	require.NoError(t, err)
	m.Eval()

	images := tensor.Randn(tensor.Shape{2, 3, 16, 16}, backend)
	out, err := m.Forward(images, nil, 4)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 4, 10}, out.Scores.Shape())
	assert.Equal(t, tensor.Shape{2, 4, 4}, out.Alphas.Shape())

	caps, err := m.Generate(images, 2, 4)
	require.NoError(t, err)
	assert.Len(t, caps, 2)
}

func TestCaptionModel_DimensionMismatch(t *testing.T) {
	backend := newTestBackend()
	dec := decoderConfig()
	dec.EncoderDim = 16 // encoder produces 8
	_, err := NewCaptionModel(encoderConfig(), dec, backend)
	assert.Error(t, err)
}

package attention

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captiva-ml/captiva/internal/tensor"
)

func satConfig() SATConfig {
	return SATConfig{EncoderDim: 8, HiddenDim: 6, AttentionDim: 4, Seed: 11}
}

func TestSATAttention_Shapes(t *testing.T) {
	backend := newTestBackend()
	att, err := NewSAT(satConfig(), backend)
	require.NoError(t, err)

	features := tensor.Randn(tensor.Shape{2, 5, 8}, backend)
	hidden := tensor.Randn(tensor.Shape{2, 6}, backend)

	context, alpha, kl, err := att.Forward(features, hidden)
	require.NoError(t, err)
	assert.Nil(t, kl)
	assert.Equal(t, tensor.Shape{2, 8}, context.Shape())
	assert.Equal(t, tensor.Shape{2, 5}, alpha.Shape())
}

func TestSATAttention_WeightsSumToOne(t *testing.T) {
	backend := newTestBackend()
	att, err := NewSAT(satConfig(), backend)
	require.NoError(t, err)

	features := tensor.Randn(tensor.Shape{3, 7, 8}, backend)
	hidden := tensor.Randn(tensor.Shape{3, 6}, backend)

	_, alpha, _, err := att.Forward(features, hidden)
	require.NoError(t, err)

	ad := alpha.Data()
	for b := 0; b < 3; b++ {
		sum := float32(0)
		for j := 0; j < 7; j++ {
			sum += ad[b*7+j]
		}
		assert.InDelta(t, 1.0, sum, 1e-5)
	}
}

func TestSATAttention_ContextIsWeightedSum(t *testing.T) {
	backend := newTestBackend()
	att, err := NewSAT(satConfig(), backend)
	require.NoError(t, err)

	features := tensor.Randn(tensor.Shape{1, 4, 8}, backend)
	hidden := tensor.Randn(tensor.Shape{1, 6}, backend)

	context, alpha, _, err := att.Forward(features, hidden)
	require.NoError(t, err)

	fd, ad, cd := features.Data(), alpha.Data(), context.Data()
	for d := 0; d < 8; d++ {
		want := float32(0)
		for j := 0; j < 4; j++ {
			want += ad[j] * fd[j*8+d]
		}
		assert.InDelta(t, want, cd[d], 1e-5)
	}
}

func TestSATAttention_StochasticKL(t *testing.T) {
	backend := newTestBackend()
	cfg := satConfig()
	cfg.Stochastic = true
	cfg.WeibullShape = 40
	att, err := NewSAT(cfg, backend)
	require.NoError(t, err)

	features := tensor.Randn(tensor.Shape{2, 5, 8}, backend)
	hidden := tensor.Randn(tensor.Shape{2, 6}, backend)

	_, alpha, kl, err := att.Forward(features, hidden)
	require.NoError(t, err)
	require.NotNil(t, kl)

	v := float64(kl.Data()[0])
	assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	assert.GreaterOrEqual(t, v, 0.0)

	// Sampled weights stay normalized.
	ad := alpha.Data()
	for b := 0; b < 2; b++ {
		sum := float32(0)
		for j := 0; j < 5; j++ {
			sum += ad[b*5+j]
		}
		assert.InDelta(t, 1.0, sum, 1e-4)
	}

	// Eval mode is deterministic and reports no KL.
	att.Eval()
	c1, a1, kl1, err := att.Forward(features, hidden)
	require.NoError(t, err)
	c2, a2, kl2, err := att.Forward(features, hidden)
	require.NoError(t, err)
	assert.Nil(t, kl1)
	assert.Nil(t, kl2)
	assert.Equal(t, c1.Data(), c2.Data())
	assert.Equal(t, a1.Data(), a2.Data())
}

func TestSATAttention_ShapeValidation(t *testing.T) {
	backend := newTestBackend()
	att, err := NewSAT(satConfig(), backend)
	require.NoError(t, err)

	features := tensor.Randn(tensor.Shape{2, 5, 8}, backend)
	hidden := tensor.Randn(tensor.Shape{2, 6}, backend)

	badFeatures := tensor.Randn(tensor.Shape{2, 5, 4}, backend)
	_, _, _, err = att.Forward(badFeatures, hidden)
	assert.Error(t, err)

	badHidden := tensor.Randn(tensor.Shape{2, 3}, backend)
	_, _, _, err = att.Forward(features, badHidden)
	assert.Error(t, err)

	otherBatch := tensor.Randn(tensor.Shape{3, 6}, backend)
	_, _, _, err = att.Forward(features, otherBatch)
	assert.Error(t, err)
}

func TestSATAttention_StateDictRoundTrip(t *testing.T) {
	backend := newTestBackend()
	a, err := NewSAT(satConfig(), backend)
	require.NoError(t, err)
	b, err := NewSAT(satConfig(), backend)
	require.NoError(t, err)

	require.NoError(t, b.LoadStateDict(a.StateDict()))

	features := tensor.Randn(tensor.Shape{1, 3, 8}, backend)
	hidden := tensor.Randn(tensor.Shape{1, 6}, backend)

	cA, _, _, err := a.Forward(features, hidden)
	require.NoError(t, err)
	cB, _, _, err := b.Forward(features, hidden)
	require.NoError(t, err)
	assert.Equal(t, cA.Data(), cB.Data())
}

func TestLayer_ResidualShapeAndKL(t *testing.T) {
	backend := newTestBackend()
	cfg := baseConfig()
	cfg.Stochastic = true
	cfg.WeibullShape = 50
	layer, err := NewLayer(cfg, 0, backend)
	require.NoError(t, err)

	q := tensor.Randn(tensor.Shape{2, 3, 8}, backend)
	kv := tensor.Randn(tensor.Shape{2, 5, 8}, backend)

	out, alpha, kl, err := layer.Forward(q, kv, kv, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3, 8}, out.Shape())
	assert.Equal(t, tensor.Shape{2, 2, 3, 5}, alpha.Shape())
	require.NotNil(t, kl, "KL must pass through the layer wrapper")

	layer.Eval()
	_, _, kl, err = layer.Forward(q, kv, kv, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, kl)
}

func TestLayer_ParameterCount(t *testing.T) {
	backend := newTestBackend()
	layer, err := NewLayer(baseConfig(), 0.1, backend)
	require.NoError(t, err)

	// 4 projections with weight+bias, plus layer norm gamma and beta.
	assert.Len(t, layer.Parameters(), 10)
}

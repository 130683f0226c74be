package attention

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captiva-ml/captiva/internal/autodiff"
	"github.com/captiva-ml/captiva/internal/backend/cpu"
	"github.com/captiva-ml/captiva/internal/tensor"
)

type testBackend = *autodiff.Backend[*cpu.Backend]

func newTestBackend() testBackend {
	return autodiff.New(cpu.New())
}

func baseConfig() Config {
	return Config{OutDim: 8, KeyDim: 4, ValueDim: 4, NumHeads: 2, Seed: 7}
}

// alphaRow extracts one [batch, head, query] row of attention weights.
func alphaRow(alpha *tensor.Tensor[testBackend], b, h, q int) []float32 {
	sh := alpha.Shape()
	heads, nq, nk := sh[1], sh[2], sh[3]
	base := ((b*heads+h)*nq + q) * nk
	return alpha.Data()[base : base+nk]
}

func TestAttention_WeightsSumToOne(t *testing.T) {
	backend := newTestBackend()
	att, err := New(baseConfig(), backend)
	require.NoError(t, err)

	q := tensor.Randn(tensor.Shape{2, 3, 8}, backend)
	kv := tensor.Randn(tensor.Shape{2, 5, 8}, backend)

	_, alpha, kl, err := att.Forward(q, kv, kv, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, kl)
	require.Equal(t, tensor.Shape{2, 2, 3, 5}, alpha.Shape())

	for b := 0; b < 2; b++ {
		for h := 0; h < 2; h++ {
			for i := 0; i < 3; i++ {
				sum := float32(0)
				for _, v := range alphaRow(alpha, b, h, i) {
					sum += v
				}
				assert.InDelta(t, 1.0, sum, 1e-5)
			}
		}
	}
}

func TestAttention_OutputShape(t *testing.T) {
	backend := newTestBackend()
	att, err := New(baseConfig(), backend)
	require.NoError(t, err)

	q := tensor.Randn(tensor.Shape{3, 4, 8}, backend)
	kv := tensor.Randn(tensor.Shape{3, 6, 8}, backend)

	out, _, _, err := att.Forward(q, kv, kv, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 4, 8}, out.Shape())
}

func TestAttention_MaskedPositionsGetZeroWeight(t *testing.T) {
	backend := newTestBackend()
	att, err := New(baseConfig(), backend)
	require.NoError(t, err)

	q := tensor.Randn(tensor.Shape{1, 2, 8}, backend)
	kv := tensor.Randn(tensor.Shape{1, 4, 8}, backend)
	// Blow up the masked position's values; it must still contribute
	// nothing.
	for i := 2 * 8; i < 3*8; i++ {
		kv.Data()[i] = 1e4
	}

	mask, _ := tensor.FromSlice([]float32{0, 0, 1, 0}, tensor.Shape{1, 4}, backend)
	_, alpha, _, err := att.Forward(q, kv, kv, mask, nil)
	require.NoError(t, err)

	for h := 0; h < 2; h++ {
		for i := 0; i < 2; i++ {
			row := alphaRow(alpha, 0, h, i)
			assert.InDelta(t, 0.0, row[2], 1e-6, "masked position must get ~0 weight")

			sum := float32(0)
			for _, v := range row {
				sum += v
			}
			assert.InDelta(t, 1.0, sum, 1e-5)
		}
	}
}

func TestAttention_WeightingAppliedBeforeMask(t *testing.T) {
	backend := newTestBackend()
	att, err := New(baseConfig(), backend)
	require.NoError(t, err)

	q := tensor.Randn(tensor.Shape{1, 1, 8}, backend)
	kv := tensor.Randn(tensor.Shape{1, 3, 8}, backend)

	// Heavily upweight position 1 and simultaneously mask it: the mask
	// must win.
	weights, _ := tensor.FromSlice([]float32{1, 1e6, 1}, tensor.Shape{1, 3}, backend)
	mask, _ := tensor.FromSlice([]float32{0, 1, 0}, tensor.Shape{1, 3}, backend)

	_, alpha, _, err := att.Forward(q, kv, kv, mask, weights)
	require.NoError(t, err)

	for h := 0; h < 2; h++ {
		assert.InDelta(t, 0.0, alphaRow(alpha, 0, h, 0)[1], 1e-6)
	}
}

func TestAttention_MemorySlotsExtendKeyAxis(t *testing.T) {
	backend := newTestBackend()
	cfg := baseConfig()
	cfg.MemorySlots = 3
	att, err := New(cfg, backend)
	require.NoError(t, err)

	q := tensor.Randn(tensor.Shape{2, 4, 8}, backend)
	kv := tensor.Randn(tensor.Shape{2, 5, 8}, backend)

	out, alpha, _, err := att.Forward(q, kv, kv, nil, nil)
	require.NoError(t, err)

	// Scoring runs over 5 input keys plus 3 slots.
	assert.Equal(t, tensor.Shape{2, 2, 4, 8}, alpha.Shape())
	assert.Equal(t, tensor.Shape{2, 4, 8}, out.Shape())
}

func TestAttention_MemorySlotsNeverMasked(t *testing.T) {
	backend := newTestBackend()
	cfg := baseConfig()
	cfg.MemorySlots = 2
	att, err := New(cfg, backend)
	require.NoError(t, err)

	q := tensor.Randn(tensor.Shape{1, 2, 8}, backend)
	kv := tensor.Randn(tensor.Shape{1, 3, 8}, backend)

	// Mask out every real key: all weight must move to the slots.
	mask, _ := tensor.FromSlice([]float32{1, 1, 1}, tensor.Shape{1, 3}, backend)
	_, alpha, _, err := att.Forward(q, kv, kv, mask, nil)
	require.NoError(t, err)

	for h := 0; h < 2; h++ {
		for i := 0; i < 2; i++ {
			row := alphaRow(alpha, 0, h, i)
			for j := 0; j < 3; j++ {
				assert.InDelta(t, 0.0, row[j], 1e-6)
			}
			memSum := row[3] + row[4]
			assert.InDelta(t, 1.0, memSum, 1e-5, "memory slots must absorb all weight")
		}
	}
}

func TestAttention_StochasticDeterministicAtEval(t *testing.T) {
	backend := newTestBackend()
	cfg := baseConfig()
	cfg.Stochastic = true
	cfg.WeibullShape = 50
	att, err := New(cfg, backend)
	require.NoError(t, err)
	att.Eval()

	q := tensor.Randn(tensor.Shape{1, 2, 8}, backend)
	kv := tensor.Randn(tensor.Shape{1, 4, 8}, backend)

	out1, alpha1, kl1, err := att.Forward(q, kv, kv, nil, nil)
	require.NoError(t, err)
	out2, alpha2, kl2, err := att.Forward(q, kv, kv, nil, nil)
	require.NoError(t, err)

	assert.Nil(t, kl1)
	assert.Nil(t, kl2)
	assert.Equal(t, out1.Data(), out2.Data())
	assert.Equal(t, alpha1.Data(), alpha2.Data())
}

func TestAttention_StochasticTrainingVariesBySeed(t *testing.T) {
	backend := newTestBackend()

	newStochastic := func(seed int64) *Attention[testBackend] {
		cfg := baseConfig()
		cfg.Stochastic = true
		cfg.WeibullShape = 50
		cfg.Seed = seed
		att, err := New(cfg, backend)
		require.NoError(t, err)
		return att
	}

	attA := newStochastic(1)
	attB := newStochastic(2)
	// Identical weights; only the noise seed differs.
	require.NoError(t, attB.LoadStateDict(attA.StateDict()))

	q := tensor.Ones(tensor.Shape{1, 2, 8}, backend)
	kv := tensor.Ones(tensor.Shape{1, 4, 8}, backend)

	_, alphaA, klA, err := attA.Forward(q, kv, kv, nil, nil)
	require.NoError(t, err)
	_, alphaB, klB, err := attB.Forward(q, kv, kv, nil, nil)
	require.NoError(t, err)

	assert.NotEqual(t, alphaA.Data(), alphaB.Data(), "different seeds must sample different weights")

	for _, kl := range []*tensor.Tensor[testBackend]{klA, klB} {
		require.NotNil(t, kl)
		v := float64(kl.Data()[0])
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "KL must be finite")
		assert.GreaterOrEqual(t, v, 0.0, "KL must be non-negative")
	}
}

func TestAttention_StochasticWeightsStillNormalized(t *testing.T) {
	backend := newTestBackend()
	cfg := baseConfig()
	cfg.Stochastic = true
	cfg.WeibullShape = 30
	att, err := New(cfg, backend)
	require.NoError(t, err)

	q := tensor.Randn(tensor.Shape{2, 2, 8}, backend)
	kv := tensor.Randn(tensor.Shape{2, 4, 8}, backend)

	_, alpha, kl, err := att.Forward(q, kv, kv, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, kl)

	for b := 0; b < 2; b++ {
		for h := 0; h < 2; h++ {
			for i := 0; i < 2; i++ {
				sum := float32(0)
				for _, v := range alphaRow(alpha, b, h, i) {
					sum += v
				}
				assert.InDelta(t, 1.0, sum, 1e-4)
			}
		}
	}
}

func TestAttention_ShapeValidation(t *testing.T) {
	backend := newTestBackend()
	att, err := New(baseConfig(), backend)
	require.NoError(t, err)

	q := tensor.Randn(tensor.Shape{2, 3, 8}, backend)
	kv := tensor.Randn(tensor.Shape{2, 5, 8}, backend)

	// Wrong feature dimension.
	bad := tensor.Randn(tensor.Shape{2, 3, 4}, backend)
	_, _, _, err = att.Forward(bad, kv, kv, nil, nil)
	assert.Error(t, err)

	// Mismatched batch.
	other := tensor.Randn(tensor.Shape{3, 5, 8}, backend)
	_, _, _, err = att.Forward(q, other, other, nil, nil)
	assert.Error(t, err)

	// Wrong mask shape.
	mask := tensor.Zeros(tensor.Shape{2, 4}, backend)
	_, _, _, err = att.Forward(q, kv, kv, mask, nil)
	assert.Error(t, err)
}

func TestAttention_InvalidConfig(t *testing.T) {
	backend := newTestBackend()

	cfg := baseConfig()
	cfg.NumHeads = 0
	_, err := New(cfg, backend)
	assert.Error(t, err)

	cfg = baseConfig()
	cfg.Stochastic = true // missing WeibullShape
	_, err = New(cfg, backend)
	assert.Error(t, err)

	cfg = baseConfig()
	cfg.MemorySlots = -1
	_, err = New(cfg, backend)
	assert.Error(t, err)
}

func TestAttention_StateDictRoundTrip(t *testing.T) {
	backend := newTestBackend()
	cfg := baseConfig()
	cfg.MemorySlots = 2
	a, err := New(cfg, backend)
	require.NoError(t, err)
	b, err := New(cfg, backend)
	require.NoError(t, err)

	require.NoError(t, b.LoadStateDict(a.StateDict()))

	q := tensor.Randn(tensor.Shape{1, 2, 8}, backend)
	kv := tensor.Randn(tensor.Shape{1, 3, 8}, backend)

	outA, _, _, err := a.Forward(q, kv, kv, nil, nil)
	require.NoError(t, err)
	outB, _, _, err := b.Forward(q, kv, kv, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, outA.Data(), outB.Data())
}

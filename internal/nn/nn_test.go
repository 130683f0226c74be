package nn

import (
	"errors"
	"math"
	"testing"

	"github.com/captiva-ml/captiva/internal/autodiff"
	"github.com/captiva-ml/captiva/internal/backend/cpu"
	"github.com/captiva-ml/captiva/internal/tensor"
)

type testBackend = *autodiff.Backend[*cpu.Backend]

func newTestBackend() testBackend {
	return autodiff.New(cpu.New())
}

func TestLinear_Forward(t *testing.T) {
	backend := newTestBackend()
	layer, err := NewLinear[testBackend](3, 2, backend)
	if err != nil {
		t.Fatalf("NewLinear: %v", err)
	}

	// Fix weights for a deterministic check: y = x @ Wᵀ + b.
	copy(layer.Weight().Tensor().Data(), []float32{
		1, 0, 0,
		0, 1, 1,
	})
	copy(layer.Bias().Tensor().Data(), []float32{10, 20})

	input, _ := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{1, 3}, backend)
	output := layer.Forward(input)

	want := []float32{11, 25}
	for i, w := range want {
		if got := output.Data()[i]; got != w {
			t.Errorf("output[%d] = %f, want %f", i, got, w)
		}
	}
}

func TestLinear_Forward3D(t *testing.T) {
	backend := newTestBackend()
	layer, err := NewLinear[testBackend](4, 6, backend)
	if err != nil {
		t.Fatalf("NewLinear: %v", err)
	}

	input := tensor.Randn(tensor.Shape{2, 5, 4}, backend)
	output := layer.Forward(input)

	if !output.Shape().Equal(tensor.Shape{2, 5, 6}) {
		t.Errorf("output shape = %v, want [2 5 6]", output.Shape())
	}
}

func TestLinear_InvalidConfig(t *testing.T) {
	backend := newTestBackend()
	if _, err := NewLinear[testBackend](0, 2, backend); err == nil {
		t.Error("expected error for zero input features")
	}
	_, err := NewLinear[testBackend](-1, 2, backend)
	if err == nil {
		t.Fatal("expected error for negative input features")
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("expected *ConfigError, got %T", err)
	}
}

func TestLayerNorm_NormalizesRows(t *testing.T) {
	backend := newTestBackend()
	ln, err := NewLayerNorm[testBackend](3, 1e-5, backend)
	if err != nil {
		t.Fatalf("NewLayerNorm: %v", err)
	}

	input, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)
	output := ln.Forward(input)

	// First row [1,2,3]: mean 2, var 2/3, normalized ±1.2247.
	want := []float32{-1.2247, 0, 1.2247}
	for i, w := range want {
		if got := output.Data()[i]; math.Abs(float64(got-w)) > 0.01 {
			t.Errorf("output[%d] = %f, want %f", i, got, w)
		}
	}
	if !output.Shape().Equal(input.Shape()) {
		t.Errorf("shape changed: %v -> %v", input.Shape(), output.Shape())
	}
}

func TestLayerNorm_GammaBeta(t *testing.T) {
	backend := newTestBackend()
	ln, _ := NewLayerNorm[testBackend](2, 1e-5, backend)
	copy(ln.Gamma.Tensor().Data(), []float32{2, 3})
	copy(ln.Beta.Tensor().Data(), []float32{0.5, 1})

	input, _ := tensor.FromSlice([]float32{2, 4}, tensor.Shape{1, 2}, backend)
	output := ln.Forward(input)

	// Normalized to [-1, 1], then scaled and shifted.
	want := []float32{-1.5, 4}
	for i, w := range want {
		if got := output.Data()[i]; math.Abs(float64(got-w)) > 0.01 {
			t.Errorf("output[%d] = %f, want %f", i, got, w)
		}
	}
}

func TestEmbedding_Lookup(t *testing.T) {
	backend := newTestBackend()
	emb, err := NewEmbedding[testBackend](4, 2, backend)
	if err != nil {
		t.Fatalf("NewEmbedding: %v", err)
	}
	copy(emb.Weight().Tensor().Data(), []float32{
		0, 0,
		1, 1,
		2, 2,
		3, 3,
	})

	out := emb.Forward([]int{2, 0, 3})
	want := []float32{2, 2, 0, 0, 3, 3}
	for i, w := range want {
		if got := out.Data()[i]; got != w {
			t.Errorf("out[%d] = %f, want %f", i, got, w)
		}
	}
}

func TestEmbedding_ForwardSeq(t *testing.T) {
	backend := newTestBackend()
	emb, _ := NewEmbedding[testBackend](5, 3, backend)

	out := emb.ForwardSeq([][]int{{1, 2}, {3, 4}})
	if !out.Shape().Equal(tensor.Shape{2, 2, 3}) {
		t.Errorf("shape = %v, want [2 2 3]", out.Shape())
	}
}

func TestDropout_EvalIdentity(t *testing.T) {
	backend := newTestBackend()
	d, err := NewDropout[testBackend](0.5, 1, backend)
	if err != nil {
		t.Fatalf("NewDropout: %v", err)
	}
	d.Eval()

	input := tensor.Randn(tensor.Shape{4, 4}, backend)
	output := d.Forward(input)
	for i, v := range input.Data() {
		if output.Data()[i] != v {
			t.Fatalf("eval mode must be identity, element %d changed", i)
		}
	}
}

func TestDropout_TrainMasksAndScales(t *testing.T) {
	backend := newTestBackend()
	d, _ := NewDropout[testBackend](0.5, 42, backend)

	input := tensor.Ones(tensor.Shape{1000}, backend)
	output := d.Forward(input)

	zeros := 0
	for _, v := range output.Data() {
		switch v {
		case 0:
			zeros++
		case 2: // survivors scaled by 1/(1-0.5)
		default:
			t.Fatalf("unexpected value %f, want 0 or 2", v)
		}
	}
	if zeros < 400 || zeros > 600 {
		t.Errorf("dropped %d of 1000 at p=0.5, outside [400, 600]", zeros)
	}
}

func TestDropout_InvalidProbability(t *testing.T) {
	backend := newTestBackend()
	if _, err := NewDropout[testBackend](1, 1, backend); err == nil {
		t.Error("expected error for p=1")
	}
	if _, err := NewDropout[testBackend](-0.1, 1, backend); err == nil {
		t.Error("expected error for negative p")
	}
}

func TestLSTMCell_Shapes(t *testing.T) {
	backend := newTestBackend()
	cell, err := NewLSTMCell[testBackend](4, 6, backend)
	if err != nil {
		t.Fatalf("NewLSTMCell: %v", err)
	}

	x := tensor.Randn(tensor.Shape{3, 4}, backend)
	h := tensor.Zeros(tensor.Shape{3, 6}, backend)
	c := tensor.Zeros(tensor.Shape{3, 6}, backend)

	hNext, cNext := cell.Forward(x, h, c)
	if !hNext.Shape().Equal(tensor.Shape{3, 6}) {
		t.Errorf("hidden shape = %v, want [3 6]", hNext.Shape())
	}
	if !cNext.Shape().Equal(tensor.Shape{3, 6}) {
		t.Errorf("cell shape = %v, want [3 6]", cNext.Shape())
	}

	// States are bounded by the tanh and sigmoid gates.
	for i, v := range hNext.Data() {
		if v < -1 || v > 1 {
			t.Errorf("hidden[%d] = %f outside [-1, 1]", i, v)
		}
	}
}

func TestLSTMCell_StateDictRoundTrip(t *testing.T) {
	backend := newTestBackend()
	a, _ := NewLSTMCell[testBackend](3, 5, backend)
	b, _ := NewLSTMCell[testBackend](3, 5, backend)

	if err := b.LoadStateDict(a.StateDict()); err != nil {
		t.Fatalf("LoadStateDict: %v", err)
	}

	x := tensor.Randn(tensor.Shape{2, 3}, backend)
	h := tensor.Zeros(tensor.Shape{2, 5}, backend)
	c := tensor.Zeros(tensor.Shape{2, 5}, backend)

	ha, _ := a.Forward(x, h, c)
	hb, _ := b.Forward(x, h, c)
	for i := range ha.Data() {
		if ha.Data()[i] != hb.Data()[i] {
			t.Fatalf("outputs diverge at %d after state dict copy", i)
		}
	}
}

func TestLSTMCell_ParameterCount(t *testing.T) {
	backend := newTestBackend()
	cell, _ := NewLSTMCell[testBackend](3, 5, backend)

	// 4 gates x (weight+bias input side, weight hidden side) = 12.
	if got := len(cell.Parameters()); got != 12 {
		t.Errorf("parameter count = %d, want 12", got)
	}
}

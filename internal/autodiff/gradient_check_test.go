package autodiff_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/captiva-ml/captiva/internal/autodiff"
	"github.com/captiva-ml/captiva/internal/backend/cpu"
	"github.com/captiva-ml/captiva/internal/tensor"
)

type adTensor = tensor.Tensor[*autodiff.Backend[*cpu.Backend]]

// checkGradient compares the analytic gradient of sum(f(x)) with central
// finite differences at each element of x.
func checkGradient(t *testing.T, shape tensor.Shape, f func(x *adTensor) *adTensor, tol float64) {
	t.Helper()

	rng := rand.New(rand.NewSource(42))
	data := make([]float32, shape.NumElements())
	for i := range data {
		data[i] = float32(rng.Float64()*2 - 1)
	}

	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, err := tensor.FromSlice(data, shape, backend)
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}
	y := f(x)
	grads := autodiff.Backward(y, backend)
	analytic, ok := grads[x.Raw()]
	if !ok {
		t.Fatal("no gradient for input")
	}

	// Finite differences run with the tape stopped so probes stay off it.
	eval := func(vals []float32) float64 {
		backend.Tape().StopRecording()
		defer backend.Tape().StartRecording()
		xi, _ := tensor.FromSlice(vals, shape, backend)
		out := f(xi)
		sum := float64(0)
		for _, v := range out.Data() {
			sum += float64(v)
		}
		return sum
	}

	const eps = 1e-3
	for i := range data {
		orig := data[i]
		data[i] = orig + eps
		plus := eval(data)
		data[i] = orig - eps
		minus := eval(data)
		data[i] = orig

		numeric := (plus - minus) / (2 * eps)
		got := float64(analytic.Data()[i])
		if math.Abs(got-numeric) > tol*(1+math.Abs(numeric)) {
			t.Errorf("grad[%d]: analytic %f, numeric %f", i, got, numeric)
		}
	}
}

func TestGradientCheck_Mul(t *testing.T) {
	checkGradient(t, tensor.Shape{2, 3}, func(x *adTensor) *adTensor {
		return x.Mul(x).AddScalar(1)
	}, 1e-2)
}

func TestGradientCheck_Sigmoid(t *testing.T) {
	checkGradient(t, tensor.Shape{4}, func(x *adTensor) *adTensor {
		return x.Sigmoid()
	}, 1e-2)
}

func TestGradientCheck_Tanh(t *testing.T) {
	checkGradient(t, tensor.Shape{4}, func(x *adTensor) *adTensor {
		return x.Tanh()
	}, 1e-2)
}

func TestGradientCheck_Softmax(t *testing.T) {
	checkGradient(t, tensor.Shape{2, 4}, func(x *adTensor) *adTensor {
		// Weight the softmax output so the gradient is non-trivial; the sum
		// of an unweighted softmax is constant.
		s := x.Softmax(-1)
		return s.Mul(s)
	}, 1e-2)
}

func TestGradientCheck_SumDim(t *testing.T) {
	checkGradient(t, tensor.Shape{2, 3}, func(x *adTensor) *adTensor {
		return x.SumDim(1, false).Mul(x.SumDim(1, false))
	}, 1e-2)
}

func TestGradientCheck_MeanDim(t *testing.T) {
	checkGradient(t, tensor.Shape{3, 2}, func(x *adTensor) *adTensor {
		m := x.MeanDim(0, false)
		return m.Mul(m)
	}, 1e-2)
}

package autodiff_test

import (
	"math"
	"testing"

	"github.com/captiva-ml/captiva/internal/autodiff"
	"github.com/captiva-ml/captiva/internal/backend/cpu"
	"github.com/captiva-ml/captiva/internal/tensor"
)

func TestBackend_Name(t *testing.T) {
	backend := autodiff.New(cpu.New())
	expected := "autodiff(cpu)"
	if backend.Name() != expected {
		t.Errorf("Name() = %s, want %s", backend.Name(), expected)
	}
}

func TestTape_Recording(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tape := backend.Tape()

	if tape.IsRecording() {
		t.Error("tape should not be recording initially")
	}

	tape.StartRecording()
	if !tape.IsRecording() {
		t.Error("tape should be recording after StartRecording()")
	}

	tape.StopRecording()
	if tape.IsRecording() {
		t.Error("tape should not be recording after StopRecording()")
	}
}

func TestTape_Clear(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tape := backend.Tape()
	tape.StartRecording()

	a, _ := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2}, backend)
	b, _ := tensor.FromSlice([]float32{3, 4}, tensor.Shape{2}, backend)
	backend.Add(a.Raw(), b.Raw())

	if tape.NumOps() == 0 {
		t.Error("tape should have recorded operations")
	}

	tape.Clear()
	if tape.NumOps() != 0 {
		t.Errorf("tape should be empty after Clear(), got %d ops", tape.NumOps())
	}
	// Clear preserves recording state so the tape can be reset between
	// training iterations.
	if !tape.IsRecording() {
		t.Error("tape should still be recording after Clear()")
	}
}

func TestTape_NotRecordingSkipsOps(t *testing.T) {
	backend := autodiff.New(cpu.New())

	a, _ := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2}, backend)
	b, _ := tensor.FromSlice([]float32{3, 4}, tensor.Shape{2}, backend)
	backend.Add(a.Raw(), b.Raw())

	if backend.Tape().NumOps() != 0 {
		t.Errorf("expected no recorded ops while stopped, got %d", backend.Tape().NumOps())
	}
}

func TestBackward_Square(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, _ := tensor.FromSlice([]float32{2, 3}, tensor.Shape{2}, backend)
	y := x.Mul(x) // y = x²

	grads := autodiff.Backward(y, backend)
	grad, ok := grads[x.Raw()]
	if !ok {
		t.Fatal("no gradient for x")
	}

	// dy/dx = 2x
	expected := []float32{4, 6}
	for i, want := range expected {
		if got := grad.Data()[i]; got != want {
			t.Errorf("grad[%d] = %f, want %f", i, got, want)
		}
	}
}

func TestBackward_GradientAccumulation(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	// y = x + x uses x twice, gradients must accumulate to 2.
	x, _ := tensor.FromSlice([]float32{5}, tensor.Shape{1}, backend)
	y := x.Add(x)

	grads := autodiff.Backward(y, backend)
	if got := grads[x.Raw()].Data()[0]; got != 2 {
		t.Errorf("accumulated grad = %f, want 2", got)
	}
}

func TestBackward_BroadcastReduces(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	// [2, 3] + [3] broadcasts the bias across rows; its gradient must sum
	// over the batch dimension back to shape [3].
	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)
	bias, _ := tensor.FromSlice([]float32{10, 20, 30}, tensor.Shape{3}, backend)
	y := x.Add(bias)

	grads := autodiff.Backward(y, backend)
	biasGrad := grads[bias.Raw()]
	if !biasGrad.Shape().Equal(tensor.Shape{3}) {
		t.Fatalf("bias grad shape = %v, want [3]", biasGrad.Shape())
	}
	for i, g := range biasGrad.Data() {
		if g != 2 {
			t.Errorf("bias grad[%d] = %f, want 2", i, g)
		}
	}
}

func TestBackward_MatMul(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	a, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2}, backend)
	b, _ := tensor.FromSlice([]float32{5, 6, 7, 8}, tensor.Shape{2, 2}, backend)
	y := a.MatMul(b)

	grads := autodiff.Backward(y, backend)

	// With outputGrad = ones: gradA = ones @ bᵀ, gradB = aᵀ @ ones.
	wantA := []float32{11, 15, 11, 15}
	wantB := []float32{4, 4, 6, 6}
	for i, want := range wantA {
		if got := grads[a.Raw()].Data()[i]; got != want {
			t.Errorf("gradA[%d] = %f, want %f", i, got, want)
		}
	}
	for i, want := range wantB {
		if got := grads[b.Raw()].Data()[i]; got != want {
			t.Errorf("gradB[%d] = %f, want %f", i, got, want)
		}
	}
}

func TestBackward_Chain(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	// z = sigmoid(2x) at x=0: dz/dx = 2 * σ'(0) = 2 * 0.25 = 0.5
	x, _ := tensor.FromSlice([]float32{0}, tensor.Shape{1}, backend)
	z := x.MulScalar(2).Sigmoid()

	grads := autodiff.Backward(z, backend)
	got := float64(grads[x.Raw()].Data()[0])
	if math.Abs(got-0.5) > 1e-6 {
		t.Errorf("dz/dx = %f, want 0.5", got)
	}
}

func TestBackward_Embedding(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	weight, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{3, 2}, backend)
	out := tensor.New(backend.Embedding(weight.Raw(), []int{1, 1, 2}), backend)

	grads := autodiff.Backward(out, backend)
	grad := grads[weight.Raw()]

	// Row 1 gathered twice, row 2 once, row 0 never.
	want := []float32{0, 0, 2, 2, 1, 1}
	for i, w := range want {
		if got := grad.Data()[i]; got != w {
			t.Errorf("weight grad[%d] = %f, want %f", i, got, w)
		}
	}
}

func TestBackward_CrossEntropyPaddingSkipped(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	logits, _ := tensor.FromSlice([]float32{
		1, 2, 3,
		3, 2, 1,
	}, tensor.Shape{2, 3}, backend)
	loss := tensor.New(backend.CrossEntropy(logits.Raw(), []int{2, -1}), backend)

	grads := autodiff.Backward(loss, backend)
	grad := grads[logits.Raw()]

	// Padded row contributes nothing.
	for j := 3; j < 6; j++ {
		if grad.Data()[j] != 0 {
			t.Errorf("padded row grad[%d] = %f, want 0", j, grad.Data()[j])
		}
	}
	// Non-padded row: softmax - onehot, gradient sums to zero.
	sum := float32(0)
	for j := 0; j < 3; j++ {
		sum += grad.Data()[j]
	}
	if math.Abs(float64(sum)) > 1e-6 {
		t.Errorf("logit grad row sum = %f, want 0", sum)
	}
}

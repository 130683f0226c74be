// Package cpu implements the tensor.Backend interface in pure Go.
// It is the reference backend for all model computation in this repository.
package cpu

import (
	"fmt"
	"math"

	"github.com/captiva-ml/captiva/internal/tensor"
)

// Backend is the pure-Go CPU compute backend.
type Backend struct{}

// New creates a CPU backend.
func New() *Backend {
	return &Backend{}
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "cpu"
}

// binaryOp applies op element-wise with NumPy-style broadcasting.
func binaryOp(a, c *tensor.RawTensor, name string, op func(x, y float32) float32) *tensor.RawTensor {
	// Fast path: identical shapes.
	if a.Shape().Equal(c.Shape()) {
		out := tensor.Empty(a.Shape())
		ad, cd, od := a.Data(), c.Data(), out.Data()
		for i := range od {
			od[i] = op(ad[i], cd[i])
		}
		return out
	}

	outShape, err := tensor.BroadcastShapes(a.Shape(), c.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}
	out := tensor.Empty(outShape)

	aStrides := broadcastStrides(a.Shape(), outShape)
	cStrides := broadcastStrides(c.Shape(), outShape)
	outStrides := outShape.ComputeStrides()

	ad, cd, od := a.Data(), c.Data(), out.Data()
	for i := range od {
		aIdx, cIdx := 0, 0
		rem := i
		for d := 0; d < len(outShape); d++ {
			pos := rem / outStrides[d]
			rem %= outStrides[d]
			aIdx += pos * aStrides[d]
			cIdx += pos * cStrides[d]
		}
		od[i] = op(ad[aIdx], cd[cIdx])
	}
	return out
}

// broadcastStrides returns strides for indexing src as if it had shape out:
// broadcast dimensions get stride 0.
func broadcastStrides(src, out tensor.Shape) []int {
	srcStrides := src.ComputeStrides()
	strides := make([]int, len(out))
	offset := len(out) - len(src)
	for d := range out {
		s := d - offset
		if s < 0 || src[s] == 1 && out[d] != 1 {
			strides[d] = 0
		} else {
			strides[d] = srcStrides[s]
		}
	}
	return strides
}

// Add performs element-wise addition.
func (b *Backend) Add(a, c *tensor.RawTensor) *tensor.RawTensor {
	return binaryOp(a, c, "Add", func(x, y float32) float32 { return x + y })
}

// Sub performs element-wise subtraction.
func (b *Backend) Sub(a, c *tensor.RawTensor) *tensor.RawTensor {
	return binaryOp(a, c, "Sub", func(x, y float32) float32 { return x - y })
}

// Mul performs element-wise multiplication.
func (b *Backend) Mul(a, c *tensor.RawTensor) *tensor.RawTensor {
	return binaryOp(a, c, "Mul", func(x, y float32) float32 { return x * y })
}

// Div performs element-wise division.
func (b *Backend) Div(a, c *tensor.RawTensor) *tensor.RawTensor {
	return binaryOp(a, c, "Div", func(x, y float32) float32 { return x / y })
}

func unaryOp(x *tensor.RawTensor, op func(v float32) float32) *tensor.RawTensor {
	out := tensor.Empty(x.Shape())
	xd, od := x.Data(), out.Data()
	for i := range od {
		od[i] = op(xd[i])
	}
	return out
}

// MulScalar multiplies every element by a scalar.
func (b *Backend) MulScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	return unaryOp(x, func(v float32) float32 { return v * s })
}

// AddScalar adds a scalar to every element.
func (b *Backend) AddScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	return unaryOp(x, func(v float32) float32 { return v + s })
}

// Exp computes the element-wise exponential.
func (b *Backend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	return unaryOp(x, func(v float32) float32 { return float32(math.Exp(float64(v))) })
}

// Log computes the element-wise natural logarithm.
func (b *Backend) Log(x *tensor.RawTensor) *tensor.RawTensor {
	return unaryOp(x, func(v float32) float32 { return float32(math.Log(float64(v))) })
}

// Lgamma computes the element-wise log-gamma function. Used by the
// stochastic attention KL term.
func (b *Backend) Lgamma(x *tensor.RawTensor) *tensor.RawTensor {
	return unaryOp(x, func(v float32) float32 {
		lg, _ := math.Lgamma(float64(v))
		return float32(lg)
	})
}

// ReLU applies max(0, x).
func (b *Backend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	return unaryOp(x, func(v float32) float32 {
		if v > 0 {
			return v
		}
		return 0
	})
}

// LeakyReLU applies x for x > 0 and slope*x otherwise.
func (b *Backend) LeakyReLU(x *tensor.RawTensor, slope float32) *tensor.RawTensor {
	return unaryOp(x, func(v float32) float32 {
		if v > 0 {
			return v
		}
		return slope * v
	})
}

// Sigmoid applies the logistic function.
func (b *Backend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	return unaryOp(x, func(v float32) float32 {
		return float32(1.0 / (1.0 + math.Exp(float64(-v))))
	})
}

// Tanh applies the hyperbolic tangent.
func (b *Backend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	return unaryOp(x, func(v float32) float32 { return float32(math.Tanh(float64(v))) })
}

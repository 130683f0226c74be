package nn

import (
	"math"
	"math/rand"

	"github.com/captiva-ml/captiva/internal/tensor"
)

// Xavier initializes weights with values drawn from the Glorot uniform
// distribution U(-sqrt(6/(fanIn+fanOut)), sqrt(6/(fanIn+fanOut))),
// which keeps activation variance stable across layers.
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, backend B) *tensor.Tensor[B] {
	bound := float32(math.Sqrt(6.0 / float64(fanIn+fanOut)))
	return tensor.Uniform(shape, -bound, bound, backend)
}

// XavierFrom is Xavier with an explicit random source for reproducible
// initialization.
func XavierFrom[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, backend B, rng *rand.Rand) *tensor.Tensor[B] {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	t := tensor.Zeros(shape, backend)
	data := t.Data()
	for i := range data {
		data[i] = float32((rng.Float64()*2 - 1) * bound)
	}
	return t
}

// Zeros creates a zero-filled tensor. Commonly used for bias
// initialization.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[B] {
	return tensor.Zeros(shape, backend)
}

// Ones creates a tensor filled with ones.
func Ones[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[B] {
	return tensor.Ones(shape, backend)
}

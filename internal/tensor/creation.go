package tensor

import (
	"math"
	"math/rand"
)

// Zeros creates a tensor filled with zeros.
func Zeros[B Backend](shape Shape, b B) *Tensor[B] {
	return New(Empty(shape), b)
}

// Ones creates a tensor filled with ones.
func Ones[B Backend](shape Shape, b B) *Tensor[B] {
	return Full(shape, 1, b)
}

// Full creates a tensor filled with the given value.
func Full[B Backend](shape Shape, value float32, b B) *Tensor[B] {
	t := Zeros(shape, b)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// Randn creates a tensor with values drawn from the standard normal
// distribution, using the Box-Muller transform.
func Randn[B Backend](shape Shape, b B) *Tensor[B] {
	return RandnFrom(shape, b, nil)
}

// RandnFrom is Randn with an explicit random source; a nil source falls
// back to the shared math/rand source. Components that need reproducible
// sampling (stochastic attention, dropout) pass their own source.
func RandnFrom[B Backend](shape Shape, b B, rng *rand.Rand) *Tensor[B] {
	t := Zeros(shape, b)
	data := t.Data()
	for i := 0; i < len(data); i += 2 {
		u1 := uniform(rng)
		u2 := uniform(rng)
		r := math.Sqrt(-2.0 * math.Log(u1+1e-12))
		data[i] = float32(r * math.Cos(2.0*math.Pi*u2))
		if i+1 < len(data) {
			data[i+1] = float32(r * math.Sin(2.0*math.Pi*u2))
		}
	}
	return t
}

// Rand creates a tensor with values uniformly distributed in [0, 1).
func Rand[B Backend](shape Shape, b B) *Tensor[B] {
	return RandFrom(shape, b, nil)
}

// RandFrom is Rand with an explicit random source; a nil source falls back
// to the shared math/rand source.
func RandFrom[B Backend](shape Shape, b B, rng *rand.Rand) *Tensor[B] {
	t := Zeros(shape, b)
	data := t.Data()
	for i := range data {
		data[i] = float32(uniform(rng))
	}
	return t
}

// Uniform creates a tensor with values uniformly distributed in [lo, hi).
func Uniform[B Backend](shape Shape, lo, hi float32, b B) *Tensor[B] {
	t := Zeros(shape, b)
	data := t.Data()
	span := float64(hi - lo)
	for i := range data {
		data[i] = lo + float32(uniform(nil)*span)
	}
	return t
}

func uniform(rng *rand.Rand) float64 {
	if rng != nil {
		return rng.Float64()
	}
	return rand.Float64() //nolint:gosec // reproducible ML sampling, not crypto
}

package cpu

import (
	"fmt"
	"math"

	"github.com/captiva-ml/captiva/internal/tensor"
)

// Softmax normalizes along the given dimension. Only the last dimension is
// supported; every attention and vocabulary distribution in this codebase
// normalizes over its trailing axis.
func (b *Backend) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	dim = shape.NormalizeDim(dim)
	if dim != len(shape)-1 {
		panic(fmt.Sprintf("Softmax: only the last dimension is supported, got dim=%d for shape %v", dim, shape))
	}

	cols := shape[len(shape)-1]
	rows := x.NumElements() / cols
	out := tensor.Empty(shape)
	xd, od := x.Data(), out.Data()

	for r := 0; r < rows; r++ {
		row := xd[r*cols : (r+1)*cols]
		dst := od[r*cols : (r+1)*cols]
		softmaxRow(row, dst)
	}
	return out
}

// softmaxRow computes a max-shifted softmax of src into dst.
// Rows that are entirely -inf (fully masked) normalize to all zeros
// instead of NaN.
func softmaxRow(src, dst []float32) {
	maxVal := float32(math.Inf(-1))
	for _, v := range src {
		if v > maxVal {
			maxVal = v
		}
	}
	if math.IsInf(float64(maxVal), -1) {
		for i := range dst {
			dst[i] = 0
		}
		return
	}

	sum := float32(0)
	for i, v := range src {
		e := float32(math.Exp(float64(v - maxVal)))
		dst[i] = e
		sum += e
	}
	for i := range dst {
		dst[i] /= sum
	}
}

// Sum reduces the whole tensor to a single-element tensor of shape {1}.
func (b *Backend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	total := float32(0)
	for _, v := range x.Data() {
		total += v
	}
	out := tensor.Empty(tensor.Shape{1})
	out.Data()[0] = total
	return out
}

// SumDim sums along a dimension.
func (b *Backend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return reduceDim(x, dim, keepDim, false)
}

// MeanDim averages along a dimension.
func (b *Backend) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return reduceDim(x, dim, keepDim, true)
}

func reduceDim(x *tensor.RawTensor, dim int, keepDim, mean bool) *tensor.RawTensor {
	shape := x.Shape()
	dim = shape.NormalizeDim(dim)

	outer := 1
	for d := 0; d < dim; d++ {
		outer *= shape[d]
	}
	size := shape[dim]
	inner := 1
	for d := dim + 1; d < len(shape); d++ {
		inner *= shape[d]
	}

	out := tensor.Empty(reducedShape(shape, dim, keepDim))
	xd, od := x.Data(), out.Data()

	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			sum := float32(0)
			base := o*size*inner + i
			for s := 0; s < size; s++ {
				sum += xd[base+s*inner]
			}
			if mean {
				sum /= float32(size)
			}
			od[o*inner+i] = sum
		}
	}
	return out
}

func reducedShape(shape tensor.Shape, dim int, keepDim bool) tensor.Shape {
	out := make(tensor.Shape, 0, len(shape))
	for d, size := range shape {
		switch {
		case d != dim:
			out = append(out, size)
		case keepDim:
			out = append(out, 1)
		}
	}
	if len(out) == 0 {
		out = tensor.Shape{1}
	}
	return out
}

package cpu

import (
	"fmt"

	"github.com/captiva-ml/captiva/internal/tensor"
)

// Reshape returns a view of x under a new shape. Data is shared, so the
// autodiff decorator can treat it as a distinct tape node without copying.
func (b *Backend) Reshape(x *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	return x.View(newShape)
}

// Transpose permutes dimensions and materializes the result. With no axes
// given, all dimensions are reversed.
func (b *Backend) Transpose(x *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := x.Shape()
	nd := len(shape)
	if len(axes) == 0 {
		axes = make([]int, nd)
		for i := range axes {
			axes[i] = nd - 1 - i
		}
	}
	if len(axes) != nd {
		panic(fmt.Sprintf("Transpose: expected %d axes for shape %v, got %d", nd, shape, len(axes)))
	}

	outShape := make(tensor.Shape, nd)
	for i, ax := range axes {
		outShape[i] = shape[ax]
	}
	out := tensor.Empty(outShape)

	srcStrides := shape.ComputeStrides()
	dstStrides := outShape.ComputeStrides()
	xd, od := x.Data(), out.Data()

	for i := range od {
		// Decompose output index, map through the permutation.
		srcIdx := 0
		rem := i
		for d := 0; d < nd; d++ {
			pos := rem / dstStrides[d]
			rem %= dstStrides[d]
			srcIdx += pos * srcStrides[axes[d]]
		}
		od[i] = xd[srcIdx]
	}
	return out
}

// Expand broadcasts x to a larger shape. Dimensions of size 1 may grow;
// all other dimensions must match.
func (b *Backend) Expand(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	src := x.Shape()
	if len(src) != len(shape) {
		panic(fmt.Sprintf("Expand: rank mismatch: %v -> %v", src, shape))
	}
	for d := range src {
		if src[d] != shape[d] && src[d] != 1 {
			panic(fmt.Sprintf("Expand: cannot expand dimension %d from %d to %d", d, src[d], shape[d]))
		}
	}

	out := tensor.Empty(shape)
	srcStrides := broadcastStrides(src, shape)
	dstStrides := shape.ComputeStrides()
	xd, od := x.Data(), out.Data()

	for i := range od {
		srcIdx := 0
		rem := i
		for d := range shape {
			pos := rem / dstStrides[d]
			rem %= dstStrides[d]
			srcIdx += pos * srcStrides[d]
		}
		od[i] = xd[srcIdx]
	}
	return out
}

// Cat concatenates tensors along a dimension. All tensors must share every
// other dimension.
func (b *Backend) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(tensors) == 0 {
		panic("Cat: empty tensor list")
	}
	first := tensors[0].Shape()
	dim = first.NormalizeDim(dim)

	catSize := 0
	for _, t := range tensors {
		s := t.Shape()
		if len(s) != len(first) {
			panic(fmt.Sprintf("Cat: rank mismatch: %v vs %v", first, s))
		}
		for d := range s {
			if d != dim && s[d] != first[d] {
				panic(fmt.Sprintf("Cat: shapes differ outside dim %d: %v vs %v", dim, first, s))
			}
		}
		catSize += s[dim]
	}

	outShape := first.Clone()
	outShape[dim] = catSize
	out := tensor.Empty(outShape)

	outer := 1
	for d := 0; d < dim; d++ {
		outer *= first[d]
	}
	inner := 1
	for d := dim + 1; d < len(first); d++ {
		inner *= first[d]
	}

	od := out.Data()
	outRow := catSize * inner
	offset := 0
	for _, t := range tensors {
		size := t.Shape()[dim]
		td := t.Data()
		block := size * inner
		for o := 0; o < outer; o++ {
			copy(od[o*outRow+offset:o*outRow+offset+block], td[o*block:(o+1)*block])
		}
		offset += block
	}
	return out
}

// Embedding looks up rows of weight [V, E] by index, producing
// [len(indices), E].
func (b *Backend) Embedding(weight *tensor.RawTensor, indices []int) *tensor.RawTensor {
	ws := weight.Shape()
	if len(ws) != 2 {
		panic(fmt.Sprintf("Embedding: expected 2D weight [vocab, dim], got %v", ws))
	}
	vocab, dim := ws[0], ws[1]

	out := tensor.Empty(tensor.Shape{len(indices), dim})
	wd, od := weight.Data(), out.Data()
	for i, idx := range indices {
		if idx < 0 || idx >= vocab {
			panic(fmt.Sprintf("Embedding: index %d out of range [0, %d)", idx, vocab))
		}
		copy(od[i*dim:(i+1)*dim], wd[idx*dim:(idx+1)*dim])
	}
	return out
}

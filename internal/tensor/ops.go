package tensor

// Arithmetic, activation and shape operations delegating to the backend.
// Every method returns a new tensor bound to the same backend, so chained
// expressions stay on one tape when an autodiff backend is in use.

// Add performs element-wise addition with broadcasting.
func (t *Tensor[B]) Add(other *Tensor[B]) *Tensor[B] {
	return New(t.backend.Add(t.raw, other.raw), t.backend)
}

// Sub performs element-wise subtraction with broadcasting.
func (t *Tensor[B]) Sub(other *Tensor[B]) *Tensor[B] {
	return New(t.backend.Sub(t.raw, other.raw), t.backend)
}

// Mul performs element-wise multiplication with broadcasting.
func (t *Tensor[B]) Mul(other *Tensor[B]) *Tensor[B] {
	return New(t.backend.Mul(t.raw, other.raw), t.backend)
}

// Div performs element-wise division with broadcasting.
func (t *Tensor[B]) Div(other *Tensor[B]) *Tensor[B] {
	return New(t.backend.Div(t.raw, other.raw), t.backend)
}

// MatMul performs 2D matrix multiplication: [M, K] @ [K, N] -> [M, N].
func (t *Tensor[B]) MatMul(other *Tensor[B]) *Tensor[B] {
	return New(t.backend.MatMul(t.raw, other.raw), t.backend)
}

// BatchMatMul performs batched matrix multiplication over the leading
// dimensions of 3D or 4D tensors.
func (t *Tensor[B]) BatchMatMul(other *Tensor[B]) *Tensor[B] {
	return New(t.backend.BatchMatMul(t.raw, other.raw), t.backend)
}

// MulScalar multiplies every element by a scalar.
func (t *Tensor[B]) MulScalar(s float32) *Tensor[B] {
	return New(t.backend.MulScalar(t.raw, s), t.backend)
}

// AddScalar adds a scalar to every element.
func (t *Tensor[B]) AddScalar(s float32) *Tensor[B] {
	return New(t.backend.AddScalar(t.raw, s), t.backend)
}

// Exp computes the element-wise exponential.
func (t *Tensor[B]) Exp() *Tensor[B] {
	return New(t.backend.Exp(t.raw), t.backend)
}

// Log computes the element-wise natural logarithm.
func (t *Tensor[B]) Log() *Tensor[B] {
	return New(t.backend.Log(t.raw), t.backend)
}

// Lgamma computes the element-wise log-gamma function.
func (t *Tensor[B]) Lgamma() *Tensor[B] {
	return New(t.backend.Lgamma(t.raw), t.backend)
}

// ReLU applies max(0, x) element-wise.
func (t *Tensor[B]) ReLU() *Tensor[B] {
	return New(t.backend.ReLU(t.raw), t.backend)
}

// LeakyReLU applies x for x > 0 and slope*x otherwise.
func (t *Tensor[B]) LeakyReLU(slope float32) *Tensor[B] {
	return New(t.backend.LeakyReLU(t.raw, slope), t.backend)
}

// Sigmoid applies the logistic function element-wise.
func (t *Tensor[B]) Sigmoid() *Tensor[B] {
	return New(t.backend.Sigmoid(t.raw), t.backend)
}

// Tanh applies the hyperbolic tangent element-wise.
func (t *Tensor[B]) Tanh() *Tensor[B] {
	return New(t.backend.Tanh(t.raw), t.backend)
}

// Softmax normalizes along the given dimension (negative dims count from
// the end). Only the last dimension is supported by the CPU backend.
func (t *Tensor[B]) Softmax(dim int) *Tensor[B] {
	return New(t.backend.Softmax(t.raw, dim), t.backend)
}

// Sum reduces the whole tensor to a single-element tensor.
func (t *Tensor[B]) Sum() *Tensor[B] {
	return New(t.backend.Sum(t.raw), t.backend)
}

// SumDim sums along a dimension, optionally keeping it with size 1.
func (t *Tensor[B]) SumDim(dim int, keepDim bool) *Tensor[B] {
	return New(t.backend.SumDim(t.raw, dim, keepDim), t.backend)
}

// MeanDim averages along a dimension, optionally keeping it with size 1.
func (t *Tensor[B]) MeanDim(dim int, keepDim bool) *Tensor[B] {
	return New(t.backend.MeanDim(t.raw, dim, keepDim), t.backend)
}

// Reshape returns a tensor with the same data and a new shape.
func (t *Tensor[B]) Reshape(newShape ...int) *Tensor[B] {
	return New(t.backend.Reshape(t.raw, Shape(newShape)), t.backend)
}

// Transpose permutes dimensions. With no arguments all dimensions are
// reversed.
func (t *Tensor[B]) Transpose(axes ...int) *Tensor[B] {
	return New(t.backend.Transpose(t.raw, axes...), t.backend)
}

// Expand broadcasts the tensor to a larger shape. Dimensions of size 1 may
// grow; others must match.
func (t *Tensor[B]) Expand(shape Shape) *Tensor[B] {
	return New(t.backend.Expand(t.raw, shape), t.backend)
}

// Unsqueeze inserts a dimension of size 1 at the given position.
func (t *Tensor[B]) Unsqueeze(dim int) *Tensor[B] {
	shape := t.Shape()
	if dim < 0 {
		dim += len(shape) + 1
	}
	newShape := make(Shape, 0, len(shape)+1)
	newShape = append(newShape, shape[:dim]...)
	newShape = append(newShape, 1)
	newShape = append(newShape, shape[dim:]...)
	return New(t.backend.Reshape(t.raw, newShape), t.backend)
}

// Squeeze removes a dimension of size 1 at the given position.
func (t *Tensor[B]) Squeeze(dim int) *Tensor[B] {
	shape := t.Shape()
	dim = shape.NormalizeDim(dim)
	if shape[dim] != 1 {
		return t
	}
	newShape := make(Shape, 0, len(shape)-1)
	newShape = append(newShape, shape[:dim]...)
	newShape = append(newShape, shape[dim+1:]...)
	return New(t.backend.Reshape(t.raw, newShape), t.backend)
}

// Cat concatenates tensors along a dimension.
func Cat[B Backend](tensors []*Tensor[B], dim int) *Tensor[B] {
	if len(tensors) == 0 {
		panic("Cat: empty tensor list")
	}
	raws := make([]*RawTensor, len(tensors))
	for i, t := range tensors {
		raws[i] = t.raw
	}
	b := tensors[0].backend
	return New(b.Cat(raws, dim), b)
}

// Conv2D convolves a [batch, inC, H, W] input with a
// [outC, inC, kH, kW] kernel.
func (t *Tensor[B]) Conv2D(kernel *Tensor[B], stride, padding int) *Tensor[B] {
	return New(t.backend.Conv2D(t.raw, kernel.raw, stride, padding), t.backend)
}

// MaxPool2D max-pools a [batch, C, H, W] input.
func (t *Tensor[B]) MaxPool2D(kernelSize, stride int) *Tensor[B] {
	return New(t.backend.MaxPool2D(t.raw, kernelSize, stride), t.backend)
}

// AvgPool2D adaptively average-pools a [batch, C, H, W] input to the
// given output grid.
func (t *Tensor[B]) AvgPool2D(outH, outW int) *Tensor[B] {
	return New(t.backend.AvgPool2D(t.raw, outH, outW), t.backend)
}

// CrossEntropy computes the mean softmax cross-entropy of [N, classes]
// logits against target class indices. Targets of -1 are padding and do
// not contribute.
func (t *Tensor[B]) CrossEntropy(targets []int) *Tensor[B] {
	return New(t.backend.CrossEntropy(t.raw, targets), t.backend)
}

// Argmax returns, for a 2D tensor [rows, cols], the column index of the
// maximum value in each row. It does not participate in gradient
// computation; the decoder uses it to pick the next token.
func (t *Tensor[B]) Argmax() []int {
	shape := t.Shape()
	if len(shape) != 2 {
		panic("Argmax: expected 2D tensor [rows, cols]")
	}
	rows, cols := shape[0], shape[1]
	data := t.Data()
	out := make([]int, rows)
	for r := 0; r < rows; r++ {
		best, bestIdx := data[r*cols], 0
		for c := 1; c < cols; c++ {
			if v := data[r*cols+c]; v > best {
				best, bestIdx = v, c
			}
		}
		out[r] = bestIdx
	}
	return out
}

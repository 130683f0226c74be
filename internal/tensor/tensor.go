package tensor

import "fmt"

// Tensor is a float32 tensor bound to a compute backend B.
//
// Example:
//
//	backend := cpu.New()
//	t := tensor.Zeros(tensor.Shape{3, 4}, backend)
//	result := t.Add(t)
type Tensor[B Backend] struct {
	raw          *RawTensor
	backend      B
	grad         *Tensor[B] // Gradient tensor, populated by autodiff
	requiresGrad bool
}

// New creates a Tensor from a RawTensor and backend.
func New[B Backend](raw *RawTensor, b B) *Tensor[B] {
	return &Tensor[B]{raw: raw, backend: b}
}

// FromSlice creates a tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromSlice[B Backend](data []float32, shape Shape, b B) (*Tensor[B], error) {
	buf := make([]float32, len(data))
	copy(buf, data)
	raw, err := NewRaw(shape, buf)
	if err != nil {
		return nil, err
	}
	return New(raw, b), nil
}

// Shape returns the tensor's shape.
func (t *Tensor[B]) Shape() Shape {
	return t.raw.Shape()
}

// NumElements returns the total number of elements.
func (t *Tensor[B]) NumElements() int {
	return t.raw.NumElements()
}

// Raw returns the underlying RawTensor.
func (t *Tensor[B]) Raw() *RawTensor {
	return t.raw
}

// Backend returns the computation backend.
func (t *Tensor[B]) Backend() B {
	return t.backend
}

// Data returns the tensor's float32 buffer (zero-copy).
//
// WARNING: modifications to the returned slice modify the tensor.
func (t *Tensor[B]) Data() []float32 {
	return t.raw.Data()
}

// Grad returns the gradient tensor (if computed by autodiff).
func (t *Tensor[B]) Grad() *Tensor[B] {
	return t.grad
}

// SetGrad sets the gradient tensor.
func (t *Tensor[B]) SetGrad(grad *Tensor[B]) {
	t.grad = grad
}

// RequireGrad marks this tensor for gradient computation and returns the
// tensor for chaining.
func (t *Tensor[B]) RequireGrad() *Tensor[B] {
	t.requiresGrad = true
	return t
}

// RequiresGrad reports whether this tensor requires gradient computation.
func (t *Tensor[B]) RequiresGrad() bool {
	return t.requiresGrad
}

// Detach returns a new tensor sharing the same data with no gradient
// tracking. Operations on the detached tensor still run through the
// backend but the result carries no link to this tensor's gradient.
func (t *Tensor[B]) Detach() *Tensor[B] {
	return &Tensor[B]{raw: t.raw, backend: t.backend}
}

// Clone creates a deep copy of the tensor. The gradient is not cloned.
func (t *Tensor[B]) Clone() *Tensor[B] {
	return &Tensor[B]{raw: t.raw.Clone(), backend: t.backend}
}

// Item returns the scalar value of a single-element tensor.
// Panics if the tensor holds more than one element.
func (t *Tensor[B]) Item() float32 {
	if t.NumElements() != 1 {
		panic(fmt.Sprintf("Item() only works for scalar tensors, got shape %v", t.Shape()))
	}
	return t.Data()[0]
}

// At returns the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor[B]) At(indices ...int) float32 {
	return t.Data()[t.flatIndex(indices)]
}

// Set sets the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor[B]) Set(value float32, indices ...int) {
	t.Data()[t.flatIndex(indices)] = value
}

func (t *Tensor[B]) flatIndex(indices []int) int {
	shape := t.Shape()
	if len(indices) != len(shape) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(shape), len(indices)))
	}
	offset := 0
	strides := t.raw.Strides()
	for i, idx := range indices {
		if idx < 0 || idx >= shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", idx, i, shape[i]))
		}
		offset += idx * strides[i]
	}
	return offset
}

// String returns a human-readable representation of the tensor.
func (t *Tensor[B]) String() string {
	return fmt.Sprintf("Tensor%v on %s", t.Shape(), t.backend.Name())
}

// Package tensor provides the float32 tensor core used by the captioning
// models: shapes, raw buffers, the Backend compute interface and a typed
// Tensor wrapper with optional gradient tracking.
//
// All model arithmetic in this repository is single-precision and runs on
// the CPU backend; the Backend interface exists so the autodiff decorator
// can record operations transparently.
package tensor

import "fmt"

// RawTensor is the low-level tensor representation: a contiguous row-major
// float32 buffer plus its shape. Backends and autodiff operations work on
// RawTensors; user code works with the typed Tensor wrapper.
type RawTensor struct {
	shape Shape
	data  []float32
}

// NewRaw creates a RawTensor for the given shape. If data is nil a
// zero-filled buffer is allocated; otherwise data is used directly and its
// length must match the shape.
func NewRaw(shape Shape, data []float32) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	n := shape.NumElements()
	if data == nil {
		data = make([]float32, n)
	} else if len(data) != n {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, n, len(data))
	}
	return &RawTensor{shape: shape.Clone(), data: data}, nil
}

// Empty allocates a zero-filled RawTensor. It panics on an invalid shape;
// backends use it for result allocation where shapes are already validated.
func Empty(shape Shape) *RawTensor {
	raw, err := NewRaw(shape, nil)
	if err != nil {
		panic(err)
	}
	return raw
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Data returns the underlying float32 buffer (zero-copy).
func (r *RawTensor) Data() []float32 {
	return r.data
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return len(r.data)
}

// Strides returns the row-major strides for the tensor's shape.
func (r *RawTensor) Strides() []int {
	return r.shape.ComputeStrides()
}

// Clone creates a deep copy of the raw tensor.
func (r *RawTensor) Clone() *RawTensor {
	data := make([]float32, len(r.data))
	copy(data, r.data)
	return &RawTensor{shape: r.shape.Clone(), data: data}
}

// View returns a RawTensor sharing this tensor's buffer under a new shape.
// The element counts must match.
func (r *RawTensor) View(shape Shape) *RawTensor {
	if shape.NumElements() != len(r.data) {
		panic(fmt.Sprintf("cannot view shape %v as %v: element count differs", r.shape, shape))
	}
	return &RawTensor{shape: shape.Clone(), data: r.data}
}

// String returns a human-readable representation of the raw tensor.
func (r *RawTensor) String() string {
	return fmt.Sprintf("RawTensor%v (%d elements)", r.shape, len(r.data))
}

package nn

import (
	"fmt"

	"github.com/captiva-ml/captiva/internal/tensor"
)

// Linear implements a fully connected layer: y = x @ Wᵀ + b.
//
// Shapes:
//   - weight: [outFeatures, inFeatures], Xavier initialized
//   - bias:   [outFeatures], zero initialized (nil when disabled)
//   - input:  [..., inFeatures]; leading dimensions are treated as batch
//   - output: [..., outFeatures]
type Linear[B tensor.Backend] struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter[B]
	bias        *Parameter[B]
	backend     B
}

// NewLinear creates a Linear layer with a bias term.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, backend B) (*Linear[B], error) {
	return newLinear(inFeatures, outFeatures, true, backend)
}

// NewLinearNoBias creates a Linear layer without a bias term.
func NewLinearNoBias[B tensor.Backend](inFeatures, outFeatures int, backend B) (*Linear[B], error) {
	return newLinear(inFeatures, outFeatures, false, backend)
}

func newLinear[B tensor.Backend](inFeatures, outFeatures int, withBias bool, backend B) (*Linear[B], error) {
	if inFeatures <= 0 || outFeatures <= 0 {
		return nil, NewConfigError("Linear", "dimensions must be positive, got in=%d out=%d", inFeatures, outFeatures)
	}

	l := &Linear[B]{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter("weight", Xavier(inFeatures, outFeatures, tensor.Shape{outFeatures, inFeatures}, backend)),
		backend:     backend,
	}
	if withBias {
		l.bias = NewParameter("bias", Zeros(tensor.Shape{outFeatures}, backend))
	}
	return l, nil
}

// Forward applies the affine transformation. Inputs with more than two
// dimensions are flattened to 2D for the matmul and restored afterwards.
func (l *Linear[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	shape := input.Shape()
	if shape[len(shape)-1] != l.inFeatures {
		panic(fmt.Sprintf("Linear.Forward: expected %d input features, got shape %v", l.inFeatures, shape))
	}

	x := input
	if len(shape) != 2 {
		x = input.Reshape(input.NumElements()/l.inFeatures, l.inFeatures)
	}

	wT := l.weight.Tensor().Transpose() // [in, out]
	output := x.MatMul(wT)
	if l.bias != nil {
		output = output.Add(l.bias.Tensor().Reshape(1, l.outFeatures))
	}

	if len(shape) != 2 {
		outShape := make([]int, len(shape))
		copy(outShape, shape)
		outShape[len(outShape)-1] = l.outFeatures
		output = output.Reshape(outShape...)
	}
	return output
}

// Parameters returns [weight, bias] or [weight] when bias is disabled.
func (l *Linear[B]) Parameters() []*Parameter[B] {
	if l.bias != nil {
		return []*Parameter[B]{l.weight, l.bias}
	}
	return []*Parameter[B]{l.weight}
}

// Weight returns the weight parameter.
func (l *Linear[B]) Weight() *Parameter[B] { return l.weight }

// Bias returns the bias parameter, or nil when disabled.
func (l *Linear[B]) Bias() *Parameter[B] { return l.bias }

// InFeatures returns the input feature count.
func (l *Linear[B]) InFeatures() int { return l.inFeatures }

// OutFeatures returns the output feature count.
func (l *Linear[B]) OutFeatures() int { return l.outFeatures }

// StateDict returns parameter names mapped to raw tensors.
func (l *Linear[B]) StateDict() map[string]*tensor.RawTensor {
	sd := map[string]*tensor.RawTensor{"weight": l.weight.Tensor().Raw()}
	if l.bias != nil {
		sd["bias"] = l.bias.Tensor().Raw()
	}
	return sd
}

// LoadStateDict copies parameters from a state dictionary, validating
// shapes.
func (l *Linear[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	if err := loadParam(sd, "weight", l.weight, tensor.Shape{l.outFeatures, l.inFeatures}); err != nil {
		return err
	}
	if l.bias != nil {
		return loadParam(sd, "bias", l.bias, tensor.Shape{l.outFeatures})
	}
	return nil
}

// loadParam copies one named entry of a state dict into a parameter after
// shape validation.
func loadParam[B tensor.Backend](sd map[string]*tensor.RawTensor, name string, p *Parameter[B], want tensor.Shape) error {
	raw, ok := sd[name]
	if !ok {
		return fmt.Errorf("missing %s in state dict", name)
	}
	if !raw.Shape().Equal(want) {
		return fmt.Errorf("%s shape mismatch: expected %v, got %v", name, want, raw.Shape())
	}
	copy(p.Tensor().Data(), raw.Data())
	return nil
}

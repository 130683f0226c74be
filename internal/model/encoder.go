// Package model assembles the captioning models: a convolutional encoder
// producing annotation vectors and a recurrent decoder generating
// vocabulary scores with per-step visual attention.
package model

import (
	"fmt"

	"github.com/captiva-ml/captiva/internal/nn"
	"github.com/captiva-ml/captiva/internal/tensor"
)

// EncoderConfig configures the convolutional backbone.
type EncoderConfig struct {
	InChannels int   // image channels, 3 for RGB
	Channels   []int // output channels per conv block
	GridSize   int   // G: annotations form a G×G grid
}

// convBlock is one Conv2D(3x3, stride 1, pad 1) + bias + ReLU + MaxPool2D(2).
type convBlock[B tensor.Backend] struct {
	kernel *nn.Parameter[B] // [outC, inC, 3, 3]
	bias   *nn.Parameter[B] // [1, outC, 1, 1]
}

// Encoder maps image batches to annotation vectors: stacked conv blocks
// followed by adaptive average pooling to a fixed G×G grid, reshaped to
// [batch, G*G, D] where D is the last block's channel count.
type Encoder[B tensor.Backend] struct {
	cfg     EncoderConfig
	blocks  []convBlock[B]
	frozen  bool
	backend B
}

// NewEncoder creates an Encoder from cfg.
func NewEncoder[B tensor.Backend](cfg EncoderConfig, backend B) (*Encoder[B], error) {
	if cfg.InChannels <= 0 {
		return nil, nn.NewConfigError("Encoder", "input channel count must be positive, got %d", cfg.InChannels)
	}
	if len(cfg.Channels) == 0 {
		return nil, nn.NewConfigError("Encoder", "at least one conv block is required")
	}
	if cfg.GridSize <= 0 {
		return nil, nn.NewConfigError("Encoder", "grid size must be positive, got %d", cfg.GridSize)
	}

	e := &Encoder[B]{cfg: cfg, backend: backend}
	in := cfg.InChannels
	for i, out := range cfg.Channels {
		if out <= 0 {
			return nil, nn.NewConfigError("Encoder", "block %d channel count must be positive, got %d", i, out)
		}
		fanIn, fanOut := in*9, out*9
		e.blocks = append(e.blocks, convBlock[B]{
			kernel: nn.NewParameter(fmt.Sprintf("block%d.kernel", i),
				nn.Xavier(fanIn, fanOut, tensor.Shape{out, in, 3, 3}, backend)),
			bias: nn.NewParameter(fmt.Sprintf("block%d.bias", i),
				nn.Zeros[B](tensor.Shape{1, out, 1, 1}, backend)),
		})
		in = out
	}
	return e, nil
}

// EncoderDim returns the annotation vector dimension D.
func (e *Encoder[B]) EncoderDim() int { return e.cfg.Channels[len(e.cfg.Channels)-1] }

// NumAnnotations returns L = G*G.
func (e *Encoder[B]) NumAnnotations() int { return e.cfg.GridSize * e.cfg.GridSize }

// Freeze excludes the backbone from training: Parameters() returns
// nothing until Unfreeze.
func (e *Encoder[B]) Freeze() {
	e.frozen = true
	for _, b := range e.blocks {
		b.kernel.Freeze()
		b.bias.Freeze()
	}
}

// Unfreeze re-enables fine-tuning of the backbone.
func (e *Encoder[B]) Unfreeze() {
	e.frozen = false
	for _, b := range e.blocks {
		b.kernel.Unfreeze()
		b.bias.Unfreeze()
	}
}

// Frozen reports whether the backbone is excluded from training.
func (e *Encoder[B]) Frozen() bool { return e.frozen }

// Forward encodes images [batch, InChannels, H, W] into annotation
// vectors [batch, G*G, D]. The spatial extent must survive one 2x pool
// per block.
func (e *Encoder[B]) Forward(images *tensor.Tensor[B]) (*tensor.Tensor[B], error) {
	s := images.Shape()
	if len(s) != 4 || s[1] != e.cfg.InChannels {
		return nil, nn.NewShapeError("Encoder", "images must be [batch, %d, H, W], got %v", e.cfg.InChannels, s)
	}
	minSide := 1 << len(e.blocks)
	if s[2] < minSide || s[3] < minSide {
		return nil, nn.NewShapeError("Encoder", "images %dx%d too small for %d pooling stages", s[2], s[3], len(e.blocks))
	}

	x := images
	for _, b := range e.blocks {
		x = x.Conv2D(b.kernel.Tensor(), 1, 1).
			Add(b.bias.Tensor()).
			ReLU().
			MaxPool2D(2, 2)
	}

	g := e.cfg.GridSize
	x = x.AvgPool2D(g, g) // [batch, D, G, G]

	batch, d := x.Shape()[0], x.Shape()[1]
	// [batch, D, G, G] -> [batch, G*G, D]
	return x.Reshape(batch, d, g*g).Transpose(0, 2, 1), nil
}

// Parameters returns the backbone parameters, or nothing when frozen.
func (e *Encoder[B]) Parameters() []*nn.Parameter[B] {
	if e.frozen {
		return nil
	}
	var params []*nn.Parameter[B]
	for _, b := range e.blocks {
		params = append(params, b.kernel, b.bias)
	}
	return params
}

// StateDict returns all block parameters keyed by name, frozen or not.
func (e *Encoder[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	for _, b := range e.blocks {
		sd[b.kernel.Name()] = b.kernel.Tensor().Raw()
		sd[b.bias.Name()] = b.bias.Tensor().Raw()
	}
	return sd
}

// LoadStateDict restores all block parameters from a state dictionary.
func (e *Encoder[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	for _, b := range e.blocks {
		for _, p := range []*nn.Parameter[B]{b.kernel, b.bias} {
			raw, ok := sd[p.Name()]
			if !ok {
				return nn.NewShapeError("Encoder", "missing %s in state dict", p.Name())
			}
			if !raw.Shape().Equal(p.Tensor().Shape()) {
				return nn.NewShapeError("Encoder", "%s shape mismatch: expected %v, got %v",
					p.Name(), p.Tensor().Shape(), raw.Shape())
			}
			copy(p.Tensor().Data(), raw.Data())
		}
	}
	return nil
}

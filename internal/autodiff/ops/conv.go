package ops

import (
	"math"

	"github.com/captiva-ml/captiva/internal/tensor"
)

// Conv2DOp represents 2D convolution of input [B, C, H, W] with kernel
// [O, C, KH, KW].
//
// Backward scatters each output gradient element into the input and kernel
// positions that contributed to it, mirroring the forward accumulation.
type Conv2DOp struct {
	inputs  []*tensor.RawTensor // [input, kernel]
	output  *tensor.RawTensor
	stride  int
	padding int
}

// NewConv2DOp creates a new Conv2DOp.
func NewConv2DOp(input, kernel, output *tensor.RawTensor, stride, padding int) *Conv2DOp {
	return &Conv2DOp{
		inputs:  []*tensor.RawTensor{input, kernel},
		output:  output,
		stride:  stride,
		padding: padding,
	}
}

// Inputs returns [input, kernel].
func (op *Conv2DOp) Inputs() []*tensor.RawTensor { return op.inputs }

// Output returns the convolved tensor.
func (op *Conv2DOp) Output() *tensor.RawTensor { return op.output }

// Backward computes gradients for both the input and the kernel.
func (op *Conv2DOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	input, kernel := op.inputs[0], op.inputs[1]
	is, ks, os := input.Shape(), kernel.Shape(), op.output.Shape()
	batch, inC, h, w := is[0], is[1], is[2], is[3]
	outC, kh, kw := ks[0], ks[2], ks[3]
	outH, outW := os[2], os[3]

	gradInput := tensor.Empty(is)
	gradKernel := tensor.Empty(ks)
	gid, gkd := gradInput.Data(), gradKernel.Data()
	id, kd, gd := input.Data(), kernel.Data(), outputGrad.Data()

	for n := 0; n < batch; n++ {
		for oc := 0; oc < outC; oc++ {
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					g := gd[((n*outC+oc)*outH+oy)*outW+ox]
					if g == 0 {
						continue
					}
					for ic := 0; ic < inC; ic++ {
						for ky := 0; ky < kh; ky++ {
							iy := oy*op.stride + ky - op.padding
							if iy < 0 || iy >= h {
								continue
							}
							for kx := 0; kx < kw; kx++ {
								ix := ox*op.stride + kx - op.padding
								if ix < 0 || ix >= w {
									continue
								}
								iIdx := ((n*inC+ic)*h+iy)*w + ix
								kIdx := ((oc*inC+ic)*kh+ky)*kw + kx
								gid[iIdx] += g * kd[kIdx]
								gkd[kIdx] += g * id[iIdx]
							}
						}
					}
				}
			}
		}
	}
	return []*tensor.RawTensor{gradInput, gradKernel}
}

// MaxPool2DOp represents 2D max pooling over [B, C, H, W].
//
// Backward routes each output gradient to the input position that won the
// max in the forward pass; ties go to the first occurrence, matching the
// forward scan order.
type MaxPool2DOp struct {
	input      *tensor.RawTensor
	output     *tensor.RawTensor
	kernelSize int
	stride     int
}

// NewMaxPool2DOp creates a new MaxPool2DOp.
func NewMaxPool2DOp(input, output *tensor.RawTensor, kernelSize, stride int) *MaxPool2DOp {
	return &MaxPool2DOp{input: input, output: output, kernelSize: kernelSize, stride: stride}
}

// Inputs returns [input].
func (op *MaxPool2DOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns the pooled tensor.
func (op *MaxPool2DOp) Output() *tensor.RawTensor { return op.output }

// Backward scatters gradients back to the argmax positions.
func (op *MaxPool2DOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	is, os := op.input.Shape(), op.output.Shape()
	batch, ch, h, w := is[0], is[1], is[2], is[3]
	outH, outW := os[2], os[3]

	grad := tensor.Empty(is)
	gd, od, id := grad.Data(), outputGrad.Data(), op.input.Data()

	for n := 0; n < batch; n++ {
		for c := 0; c < ch; c++ {
			plane := (n*ch + c) * h * w
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					best := float32(math.Inf(-1))
					bestIdx := -1
					for ky := 0; ky < op.kernelSize; ky++ {
						for kx := 0; kx < op.kernelSize; kx++ {
							idx := plane + (oy*op.stride+ky)*w + ox*op.stride + kx
							if id[idx] > best {
								best, bestIdx = id[idx], idx
							}
						}
					}
					gd[bestIdx] += od[((n*ch+c)*outH+oy)*outW+ox]
				}
			}
		}
	}
	return []*tensor.RawTensor{grad}
}

// AvgPool2DOp represents adaptive average pooling to a fixed grid.
//
// Backward spreads each cell's gradient uniformly over its input region.
type AvgPool2DOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewAvgPool2DOp creates a new AvgPool2DOp.
func NewAvgPool2DOp(input, output *tensor.RawTensor) *AvgPool2DOp {
	return &AvgPool2DOp{input: input, output: output}
}

// Inputs returns [input].
func (op *AvgPool2DOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns the pooled tensor.
func (op *AvgPool2DOp) Output() *tensor.RawTensor { return op.output }

// Backward distributes gradients over the pooled regions.
func (op *AvgPool2DOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	is, os := op.input.Shape(), op.output.Shape()
	batch, ch, h, w := is[0], is[1], is[2], is[3]
	outH, outW := os[2], os[3]

	grad := tensor.Empty(is)
	gd, od := grad.Data(), outputGrad.Data()

	for n := 0; n < batch; n++ {
		for c := 0; c < ch; c++ {
			plane := (n*ch + c) * h * w
			for oy := 0; oy < outH; oy++ {
				y0, y1 := oy*h/outH, (oy+1)*h/outH
				for ox := 0; ox < outW; ox++ {
					x0, x1 := ox*w/outW, (ox+1)*w/outW
					g := od[((n*ch+c)*outH+oy)*outW+ox] / float32((y1-y0)*(x1-x0))
					for iy := y0; iy < y1; iy++ {
						for ix := x0; ix < x1; ix++ {
							gd[plane+iy*w+ix] += g
						}
					}
				}
			}
		}
	}
	return []*tensor.RawTensor{grad}
}

package cpu

import (
	"fmt"
	"math"

	"github.com/captiva-ml/captiva/internal/parallel"
	"github.com/captiva-ml/captiva/internal/tensor"
)

// Conv2D performs 2D convolution.
//
// Shapes:
//   - input:  [batch, inChannels, h, w]
//   - kernel: [outChannels, inChannels, kh, kw]
//   - output: [batch, outChannels, (h+2p-kh)/s+1, (w+2p-kw)/s+1]
func (b *Backend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	is, ks := input.Shape(), kernel.Shape()
	if len(is) != 4 || len(ks) != 4 {
		panic(fmt.Sprintf("Conv2D: expected 4D input and kernel, got %v and %v", is, ks))
	}
	if is[1] != ks[1] {
		panic(fmt.Sprintf("Conv2D: channel mismatch: input %v, kernel %v", is, ks))
	}
	batch, inC, h, w := is[0], is[1], is[2], is[3]
	outC, kh, kw := ks[0], ks[2], ks[3]
	outH := (h+2*padding-kh)/stride + 1
	outW := (w+2*padding-kw)/stride + 1
	if outH <= 0 || outW <= 0 {
		panic(fmt.Sprintf("Conv2D: kernel %v larger than padded input %v", ks, is))
	}

	out := tensor.Empty(tensor.Shape{batch, outC, outH, outW})
	id, kd, od := input.Data(), kernel.Data(), out.Data()

	parallel.For(batch*outC, func(t int) {
		n, oc := t/outC, t%outC
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				sum := float32(0)
				for ic := 0; ic < inC; ic++ {
					for ky := 0; ky < kh; ky++ {
						iy := oy*stride + ky - padding
						if iy < 0 || iy >= h {
							continue
						}
						for kx := 0; kx < kw; kx++ {
							ix := ox*stride + kx - padding
							if ix < 0 || ix >= w {
								continue
							}
							sum += id[((n*inC+ic)*h+iy)*w+ix] * kd[((oc*inC+ic)*kh+ky)*kw+kx]
						}
					}
				}
				od[((n*outC+oc)*outH+oy)*outW+ox] = sum
			}
		}
	})
	return out
}

// MaxPool2D performs 2D max pooling over [batch, channels, h, w].
func (b *Backend) MaxPool2D(input *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	out, _ := maxPool2D(input, kernelSize, stride)
	return out
}

// maxPool2D also returns the argmax indices into the input, used by the
// autodiff backward pass to route gradients.
func maxPool2D(input *tensor.RawTensor, kernelSize, stride int) (*tensor.RawTensor, []int) {
	is := input.Shape()
	if len(is) != 4 {
		panic(fmt.Sprintf("MaxPool2D: expected 4D input, got %v", is))
	}
	batch, ch, h, w := is[0], is[1], is[2], is[3]
	outH := (h-kernelSize)/stride + 1
	outW := (w-kernelSize)/stride + 1
	if outH <= 0 || outW <= 0 {
		panic(fmt.Sprintf("MaxPool2D: kernel %d larger than input %v", kernelSize, is))
	}

	out := tensor.Empty(tensor.Shape{batch, ch, outH, outW})
	argmax := make([]int, out.NumElements())
	id, od := input.Data(), out.Data()

	for n := 0; n < batch; n++ {
		for c := 0; c < ch; c++ {
			plane := (n*ch + c) * h * w
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					best := float32(math.Inf(-1))
					bestIdx := -1
					for ky := 0; ky < kernelSize; ky++ {
						for kx := 0; kx < kernelSize; kx++ {
							idx := plane + (oy*stride+ky)*w + ox*stride + kx
							if id[idx] > best {
								best, bestIdx = id[idx], idx
							}
						}
					}
					oIdx := ((n*ch+c)*outH+oy)*outW + ox
					od[oIdx] = best
					argmax[oIdx] = bestIdx
				}
			}
		}
	}
	return out, argmax
}

// AvgPool2D performs adaptive average pooling to a fixed output grid,
// averaging each cell's input region. Used by the encoder to produce a
// fixed number of annotation vectors regardless of input resolution.
func (b *Backend) AvgPool2D(input *tensor.RawTensor, outH, outW int) *tensor.RawTensor {
	is := input.Shape()
	if len(is) != 4 {
		panic(fmt.Sprintf("AvgPool2D: expected 4D input, got %v", is))
	}
	batch, ch, h, w := is[0], is[1], is[2], is[3]
	if outH > h || outW > w {
		panic(fmt.Sprintf("AvgPool2D: output grid %dx%d larger than input %v", outH, outW, is))
	}

	out := tensor.Empty(tensor.Shape{batch, ch, outH, outW})
	id, od := input.Data(), out.Data()

	for n := 0; n < batch; n++ {
		for c := 0; c < ch; c++ {
			plane := (n*ch + c) * h * w
			for oy := 0; oy < outH; oy++ {
				y0, y1 := oy*h/outH, (oy+1)*h/outH
				for ox := 0; ox < outW; ox++ {
					x0, x1 := ox*w/outW, (ox+1)*w/outW
					sum := float32(0)
					for iy := y0; iy < y1; iy++ {
						for ix := x0; ix < x1; ix++ {
							sum += id[plane+iy*w+ix]
						}
					}
					od[((n*ch+c)*outH+oy)*outW+ox] = sum / float32((y1-y0)*(x1-x0))
				}
			}
		}
	}
	return out
}

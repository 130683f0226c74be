package dataset

import (
	"fmt"
	"image"
	"os"

	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/captiva-ml/captiva/internal/tensor"
)

// LoadImage decodes a JPEG or PNG file into RGBA.
func LoadImage(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return toRGBA(img), nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)
	return rgba
}

// Resize scales an image to width x height with bilinear interpolation.
func Resize(img *image.RGBA, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// CenterCrop cuts a centered width x height region.
func CenterCrop(img *image.RGBA, width, height int) (*image.RGBA, error) {
	return crop(img, (img.Bounds().Dx()-width)/2, (img.Bounds().Dy()-height)/2, width, height)
}

func crop(img *image.RGBA, x, y, width, height int) (*image.RGBA, error) {
	b := img.Bounds()
	if width > b.Dx() || height > b.Dy() || x < 0 || y < 0 || x+width > b.Dx() || y+height > b.Dy() {
		return nil, fmt.Errorf("crop %dx%d at (%d,%d) outside image %dx%d", width, height, x, y, b.Dx(), b.Dy())
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	src := image.Rect(b.Min.X+x, b.Min.Y+y, b.Min.X+x+width, b.Min.Y+y+height)
	draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Src)
	return dst, nil
}

// ImageNet channel statistics used to normalize inputs.
var (
	channelMean = [3]float32{0.485, 0.456, 0.406}
	channelStd  = [3]float32{0.229, 0.224, 0.225}
)

// ToTensor converts an RGBA image to a normalized [3, H, W] tensor:
// channels scaled to [0,1] then standardized per channel.
func ToTensor[B tensor.Backend](img *image.RGBA, backend B) *tensor.Tensor[B] {
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	t := tensor.Zeros(tensor.Shape{3, h, w}, backend)
	data := t.Data()

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			for c := 0; c < 3; c++ {
				v := float32(img.Pix[off+c]) / 255
				data[c*h*w+y*w+x] = (v - channelMean[c]) / channelStd[c]
			}
		}
	}
	return t
}

// BatchTensor stacks per-image [3, H, W] tensors into [batch, 3, H, W].
// All images must share one size.
func BatchTensor[B tensor.Backend](images []*tensor.Tensor[B], backend B) (*tensor.Tensor[B], error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("empty image batch")
	}
	shape := images[0].Shape()
	out := tensor.Zeros(tensor.Shape{len(images), shape[0], shape[1], shape[2]}, backend)
	stride := shape.NumElements()
	for i, img := range images {
		if !img.Shape().Equal(shape) {
			return nil, fmt.Errorf("image %d shape %v differs from %v", i, img.Shape(), shape)
		}
		copy(out.Data()[i*stride:(i+1)*stride], img.Data())
	}
	return out, nil
}

package dataset

import (
	"image"
	"math/rand"
)

// Augmenter applies random training-time transforms to images: a
// horizontal flip with probability 1/2 and a random crop to the target
// size (images smaller than the crop are resized instead).
type Augmenter struct {
	cropW, cropH int
	rng          *rand.Rand
}

// NewAugmenter creates an Augmenter producing cropW x cropH images.
func NewAugmenter(cropW, cropH int, seed int64) *Augmenter {
	return &Augmenter{cropW: cropW, cropH: cropH, rng: rand.New(rand.NewSource(seed))}
}

// Apply transforms one image.
func (a *Augmenter) Apply(img *image.RGBA) *image.RGBA {
	if a.rng.Float32() < 0.5 {
		img = flipHorizontal(img)
	}

	b := img.Bounds()
	if b.Dx() < a.cropW || b.Dy() < a.cropH {
		return Resize(img, a.cropW, a.cropH)
	}
	x := a.rng.Intn(b.Dx() - a.cropW + 1)
	y := a.rng.Intn(b.Dy() - a.cropH + 1)
	cropped, err := crop(img, x, y, a.cropW, a.cropH)
	if err != nil {
		return Resize(img, a.cropW, a.cropH)
	}
	return cropped
}

func flipHorizontal(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src := img.PixOffset(b.Min.X+w-1-x, b.Min.Y+y)
			off := dst.PixOffset(x, y)
			copy(dst.Pix[off:off+4], img.Pix[src:src+4])
		}
	}
	return dst
}

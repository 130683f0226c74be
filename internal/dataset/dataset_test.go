package dataset

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captiva-ml/captiva/internal/backend/cpu"
	"github.com/captiva-ml/captiva/internal/tensor"
)

func TestTokenizeWords(t *testing.T) {
	tokens := TokenizeWords("Two dogs play in the park, chasing a ball!")
	assert.Equal(t, []string{"two", "dogs", "play", "in", "the", "park", "chasing", "a", "ball"}, tokens)
}

func TestBuildVocab(t *testing.T) {
	captions := [][]string{
		{"a", "dog", "runs"},
		{"a", "dog", "sits"},
		{"a", "cat", "sits"},
	}
	v := BuildVocab(captions, 2)

	// Specials plus {a, dog, sits}; "runs" and "cat" fall below minFreq.
	assert.Equal(t, 7, v.Size())
	assert.Equal(t, UnkToken, v.ID("cat"))
	assert.NotEqual(t, UnkToken, v.ID("dog"))

	// "a" is the most frequent word and gets the first non-special id.
	assert.Equal(t, len(specialTokens), v.ID("a"))
}

func TestVocab_EncodeDecode(t *testing.T) {
	v := BuildVocab([][]string{{"dog", "runs"}}, 1)

	ids := v.Encode([]string{"dog", "runs", "mystery"})
	require.Len(t, ids, 5)
	assert.Equal(t, StartToken, ids[0])
	assert.Equal(t, EndToken, ids[len(ids)-1])
	assert.Equal(t, UnkToken, ids[3])

	words := v.Decode(ids)
	assert.Equal(t, []string{"dog", "runs"}, words)
}

func TestVocab_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.json")
	v := BuildVocab([][]string{{"dog", "runs", "fast"}}, 1)
	require.NoError(t, v.Save(path))

	loaded, err := LoadVocab(path)
	require.NoError(t, err)
	assert.Equal(t, v.Size(), loaded.Size())
	assert.Equal(t, v.ID("dog"), loaded.ID("dog"))
}

func TestParseCaptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captions.txt")
	content := "img1.jpg#0\tA dog runs in the park .\n" +
		"img1.jpg#1\tA brown dog playing .\n" +
		"malformed line without tab\n" +
		"img2.jpg#0\tTwo cats sleeping .\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	captions, err := ParseCaptions(path)
	require.NoError(t, err)
	require.Len(t, captions, 3)

	assert.Equal(t, "img1.jpg", captions[0].Image)
	assert.Equal(t, 0, captions[0].Index)
	assert.Equal(t, []string{"a", "dog", "runs", "in", "the", "park"}, captions[0].Tokens)
	assert.Equal(t, 1, captions[1].Index)
	assert.Equal(t, "img2.jpg", captions[2].Image)
}

func writeTestImage(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 100, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestImagePipeline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.png")
	writeTestImage(t, path, 40, 30)

	img, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())

	resized := Resize(img, 24, 24)
	assert.Equal(t, 24, resized.Bounds().Dx())
	assert.Equal(t, 24, resized.Bounds().Dy())

	cropped, err := CenterCrop(resized, 16, 16)
	require.NoError(t, err)
	assert.Equal(t, 16, cropped.Bounds().Dx())

	_, err = CenterCrop(resized, 100, 100)
	assert.Error(t, err)

	backend := cpu.New()
	tens := ToTensor(cropped, backend)
	assert.Equal(t, tensor.Shape{3, 16, 16}, tens.Shape())
}

func TestAugmenter(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	aug := NewAugmenter(16, 16, 42)

	for i := 0; i < 10; i++ {
		out := aug.Apply(img)
		assert.Equal(t, 16, out.Bounds().Dx())
		assert.Equal(t, 16, out.Bounds().Dy())
	}

	// Smaller inputs are resized rather than cropped.
	small := image.NewRGBA(image.Rect(0, 0, 8, 8))
	out := aug.Apply(small)
	assert.Equal(t, 16, out.Bounds().Dx())
}

func TestLoadAndBatch(t *testing.T) {
	dir := t.TempDir()
	imageDir := filepath.Join(dir, "images")
	require.NoError(t, os.Mkdir(imageDir, 0o755))
	writeTestImage(t, filepath.Join(imageDir, "img1.jpg"), 32, 32)
	writeTestImage(t, filepath.Join(imageDir, "img2.jpg"), 48, 32)

	captionsPath := filepath.Join(dir, "captions.txt")
	content := "img1.jpg#0\tA dog runs .\n" +
		"img2.jpg#0\tA cat sleeps .\n" +
		"missing.jpg#0\tNever loaded .\n"
	require.NoError(t, os.WriteFile(captionsPath, []byte(content), 0o644))

	ds, err := Load(Config{
		ImageDir:     imageDir,
		CaptionsFile: captionsPath,
		ImageSize:    16,
		MaxWorkers:   2,
		Seed:         1,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len(), "caption with missing image is dropped")

	backend := cpu.New()
	batch, err := LoadBatch(ds, 0, 2, backend)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3, 16, 16}, batch.Images.Shape())
	require.Len(t, batch.Captions, 2)
	for _, caption := range batch.Captions {
		assert.Equal(t, StartToken, caption[0])
		assert.Equal(t, EndToken, caption[len(caption)-1])
	}
	assert.Equal(t, batch.MaxLen, len(batch.Captions[0]))

	_, err = LoadBatch(ds, 0, 5, backend)
	assert.Error(t, err)
}

package dataset

import (
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/captiva-ml/captiva/internal/tensor"
)

// Sample pairs an image path with one encoded caption.
type Sample struct {
	ImagePath string
	Tokens    []int // start token first, end token last
}

// Config controls dataset assembly.
type Config struct {
	ImageDir     string
	CaptionsFile string
	MinWordFreq  int // vocabulary cutoff, default 1
	ImageSize    int // square side images are resized/cropped to
	MaxWorkers   int // parallel image verification and loading
	Augment      bool
	Seed         int64
}

// Dataset is an in-memory index of caption samples over on-disk images.
type Dataset struct {
	cfg       Config
	vocab     *Vocab
	samples   []Sample
	augmenter *Augmenter
	rng       *rand.Rand
}

// Load parses the captions file, verifies images in parallel, builds the
// vocabulary and indexes all samples.
func Load(cfg Config) (*Dataset, error) {
	return load(cfg, nil)
}

// LoadWithVocab is Load with a fixed vocabulary, for validation and test
// splits that must share the training split's token ids.
func LoadWithVocab(cfg Config, vocab *Vocab) (*Dataset, error) {
	if vocab == nil {
		return nil, fmt.Errorf("vocabulary must not be nil")
	}
	return load(cfg, vocab)
}

func load(cfg Config, vocab *Vocab) (*Dataset, error) {
	if cfg.ImageSize <= 0 {
		return nil, fmt.Errorf("image size must be positive, got %d", cfg.ImageSize)
	}

	captions, err := ParseCaptions(cfg.CaptionsFile)
	if err != nil {
		return nil, err
	}
	captions, err = VerifyImages(captions, cfg.ImageDir, cfg.MaxWorkers)
	if err != nil {
		return nil, err
	}
	if len(captions) == 0 {
		return nil, fmt.Errorf("no usable captions in %s", cfg.CaptionsFile)
	}

	if vocab == nil {
		tokenLists := make([][]string, len(captions))
		for i, c := range captions {
			tokenLists[i] = c.Tokens
		}
		vocab = BuildVocab(tokenLists, cfg.MinWordFreq)
	}

	ds := &Dataset{
		cfg:   cfg,
		vocab: vocab,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}
	if cfg.Augment {
		ds.augmenter = NewAugmenter(cfg.ImageSize, cfg.ImageSize, cfg.Seed)
	}
	for _, c := range captions {
		ds.samples = append(ds.samples, Sample{
			ImagePath: filepath.Join(cfg.ImageDir, c.Image),
			Tokens:    vocab.Encode(c.Tokens),
		})
	}

	slog.Info("dataset loaded",
		"captions", len(ds.samples),
		"vocab", vocab.Size(),
		"image_size", cfg.ImageSize,
		"augment", cfg.Augment)
	return ds, nil
}

// Vocab returns the dataset vocabulary.
func (d *Dataset) Vocab() *Vocab { return d.vocab }

// Len returns the number of caption samples.
func (d *Dataset) Len() int { return len(d.samples) }

// Samples returns the indexed samples.
func (d *Dataset) Samples() []Sample { return d.samples }

// Shuffle permutes sample order in place.
func (d *Dataset) Shuffle() {
	d.rng.Shuffle(len(d.samples), func(i, j int) {
		d.samples[i], d.samples[j] = d.samples[j], d.samples[i]
	})
}

// Batch holds one training batch.
type Batch[B tensor.Backend] struct {
	Images   *tensor.Tensor[B] // [batch, 3, S, S]
	Captions [][]int           // ragged, start/end wrapped
	MaxLen   int               // longest caption in the batch
}

// LoadBatch reads, preprocesses and stacks the samples in [start, end).
// Images are loaded in parallel, bounded by MaxWorkers.
func LoadBatch[B tensor.Backend](d *Dataset, start, end int, backend B) (*Batch[B], error) {
	if start < 0 || end > len(d.samples) || start >= end {
		return nil, fmt.Errorf("batch range [%d, %d) outside dataset of %d samples", start, end, len(d.samples))
	}
	samples := d.samples[start:end]

	images := make([]*tensor.Tensor[B], len(samples))
	var mu sync.Mutex
	g := new(errgroup.Group)
	workers := d.cfg.MaxWorkers
	if workers <= 0 {
		workers = 8
	}
	g.SetLimit(workers)

	for i, s := range samples {
		i, s := i, s
		g.Go(func() error {
			img, err := LoadImage(s.ImagePath)
			if err != nil {
				return err
			}
			size := d.cfg.ImageSize
			if d.augmenter != nil {
				// Resize the short side before the random crop so crops
				// vary in content, not just position.
				img = Resize(img, size*9/8, size*9/8)
				mu.Lock()
				img = d.augmenter.Apply(img)
				mu.Unlock()
			} else {
				img = Resize(img, size, size)
			}
			images[i] = ToTensor(img, backend)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stacked, err := BatchTensor(images, backend)
	if err != nil {
		return nil, err
	}

	batch := &Batch[B]{Images: stacked}
	for _, s := range samples {
		batch.Captions = append(batch.Captions, s.Tokens)
		if len(s.Tokens) > batch.MaxLen {
			batch.MaxLen = len(s.Tokens)
		}
	}
	return batch, nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/captiva-ml/captiva/internal/dataset"
	"github.com/captiva-ml/captiva/internal/metrics"
	"github.com/captiva-ml/captiva/internal/tensor"
)

func newEvaluateCmd() *cobra.Command {
	var mf modelFlags
	var (
		imageDir  string
		captions  string
		vocabPath string
		ckptPath  string
		imageSize int
		batchSize int
		maxLen    int
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score generated captions against references with BLEU, ROUGE and METEOR",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend := newBackend()
			m, vocab, err := loadModel(&mf, vocabPath, ckptPath, backend)
			if err != nil {
				return err
			}
			m.Eval()

			ds, err := dataset.LoadWithVocab(dataset.Config{
				ImageDir:     imageDir,
				CaptionsFile: captions,
				ImageSize:    imageSize,
				Seed:         mf.seed,
			}, vocab)
			if err != nil {
				return err
			}

			// Group the reference captions of each image; one candidate is
			// generated per unique image.
			var paths []string
			refsByPath := make(map[string][][]string)
			for _, s := range ds.Samples() {
				if _, seen := refsByPath[s.ImagePath]; !seen {
					paths = append(paths, s.ImagePath)
				}
				refsByPath[s.ImagePath] = append(refsByPath[s.ImagePath], vocab.Decode(s.Tokens))
			}

			candidates := make([][]string, 0, len(paths))
			references := make([][][]string, 0, len(paths))
			lengths := make([]float64, 0, len(paths))

			for start := 0; start < len(paths); start += batchSize {
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				end := min(start+batchSize, len(paths))

				images := make([]*tensor.Tensor[captionBackend], 0, end-start)
				for _, p := range paths[start:end] {
					img, err := dataset.LoadImage(p)
					if err != nil {
						return err
					}
					images = append(images, dataset.ToTensor(dataset.Resize(img, imageSize, imageSize), backend))
				}
				stacked, err := dataset.BatchTensor(images, backend)
				if err != nil {
					return err
				}

				generated, err := m.Generate(stacked, dataset.EndToken, maxLen)
				if err != nil {
					return err
				}
				for i, ids := range generated {
					words := vocab.Decode(ids)
					candidates = append(candidates, words)
					references = append(references, refsByPath[paths[start+i]])
					lengths = append(lengths, float64(len(words)))
				}
			}

			bleu := metrics.BLEU(candidates, references, 4)
			for n, s := range bleu {
				fmt.Printf("BLEU-%d:  %.4f\n", n+1, s)
			}
			fmt.Printf("ROUGE-1: %.4f\n", metrics.ROUGE1(candidates, references))
			fmt.Printf("METEOR:  %.4f\n", metrics.METEOR(candidates, references))

			sum := metrics.Summarize(lengths)
			fmt.Printf("caption length: mean %.1f std %.1f min %.0f max %.0f over %d images\n",
				sum.Mean, sum.Std, sum.Min, sum.Max, len(paths))
			return nil
		},
	}

	mf.register(cmd)
	flags := cmd.Flags()
	flags.StringVar(&imageDir, "image-dir", "", "Directory holding the dataset images")
	flags.StringVar(&captions, "captions", "", "Reference captions file")
	flags.StringVar(&vocabPath, "vocab", "vocab.json", "Vocabulary path")
	flags.StringVar(&ckptPath, "checkpoint", "best.cap", "Model checkpoint")
	flags.IntVar(&imageSize, "image-size", 224, "Square side images are resized to")
	flags.IntVar(&batchSize, "batch-size", 32, "Generation batch size")
	flags.IntVar(&maxLen, "max-len", 50, "Maximum generated caption length")
	cobra.CheckErr(cmd.MarkFlagRequired("image-dir"))
	cobra.CheckErr(cmd.MarkFlagRequired("captions"))
	return cmd
}

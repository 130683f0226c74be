package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/captiva-ml/captiva/internal/dataset"
	"github.com/captiva-ml/captiva/internal/tensor"
)

func newCaptionCmd() *cobra.Command {
	var mf modelFlags
	var (
		vocabPath string
		ckptPath  string
		imageSize int
		maxLen    int
	)

	cmd := &cobra.Command{
		Use:   "caption IMAGE...",
		Short: "Generate captions for images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend := newBackend()
			m, vocab, err := loadModel(&mf, vocabPath, ckptPath, backend)
			if err != nil {
				return err
			}
			m.Eval()

			images := make([]*tensor.Tensor[captionBackend], 0, len(args))
			for _, path := range args {
				img, err := dataset.LoadImage(path)
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
				fmt.Printf("%s: %s\n", args[i], strings.Join(vocab.Decode(ids), " "))
			}
			return nil
		},
	}

	mf.register(cmd)
	flags := cmd.Flags()
	flags.StringVar(&vocabPath, "vocab", "vocab.json", "Vocabulary path")
	flags.StringVar(&ckptPath, "checkpoint", "best.cap", "Model checkpoint")
	flags.IntVar(&imageSize, "image-size", 224, "Square side images are resized to")
	flags.IntVar(&maxLen, "max-len", 50, "Maximum generated caption length")
	return cmd
}

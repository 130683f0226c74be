package nn

import (
	"fmt"

	"github.com/captiva-ml/captiva/internal/tensor"
)

// Embedding maps token indices to dense vectors via a learned lookup
// table of shape [vocabSize, embedDim].
type Embedding[B tensor.Backend] struct {
	vocabSize int
	embedDim  int
	weight    *Parameter[B]
	backend   B
}

// NewEmbedding creates an embedding table with Xavier-initialized weights.
func NewEmbedding[B tensor.Backend](vocabSize, embedDim int, backend B) (*Embedding[B], error) {
	if vocabSize <= 0 || embedDim <= 0 {
		return nil, NewConfigError("Embedding", "dimensions must be positive, got vocab=%d dim=%d", vocabSize, embedDim)
	}
	return &Embedding[B]{
		vocabSize: vocabSize,
		embedDim:  embedDim,
		weight:    NewParameter("weight", Xavier(vocabSize, embedDim, tensor.Shape{vocabSize, embedDim}, backend)),
		backend:   backend,
	}, nil
}

// Forward looks up one token per batch element, producing
// [len(indices), embedDim].
func (e *Embedding[B]) Forward(indices []int) *tensor.Tensor[B] {
	raw := e.backend.Embedding(e.weight.Tensor().Raw(), indices)
	return tensor.New(raw, e.backend)
}

// ForwardSeq looks up a [batch, seqLen] grid of tokens, producing
// [batch, seqLen, embedDim].
func (e *Embedding[B]) ForwardSeq(indices [][]int) *tensor.Tensor[B] {
	if len(indices) == 0 {
		panic("Embedding.ForwardSeq: empty batch")
	}
	seqLen := len(indices[0])
	flat := make([]int, 0, len(indices)*seqLen)
	for i, row := range indices {
		if len(row) != seqLen {
			panic(fmt.Sprintf("Embedding.ForwardSeq: ragged batch: row %d has %d tokens, want %d", i, len(row), seqLen))
		}
		flat = append(flat, row...)
	}
	raw := e.backend.Embedding(e.weight.Tensor().Raw(), flat)
	return tensor.New(raw, e.backend).Reshape(len(indices), seqLen, e.embedDim)
}

// Parameters returns [weight].
func (e *Embedding[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{e.weight}
}

// Weight returns the lookup table parameter.
func (e *Embedding[B]) Weight() *Parameter[B] { return e.weight }

// VocabSize returns the number of rows in the table.
func (e *Embedding[B]) VocabSize() int { return e.vocabSize }

// EmbedDim returns the embedding dimension.
func (e *Embedding[B]) EmbedDim() int { return e.embedDim }

// StateDict returns parameter names mapped to raw tensors.
func (e *Embedding[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{"weight": e.weight.Tensor().Raw()}
}

// LoadStateDict copies parameters from a state dictionary.
func (e *Embedding[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	return loadParam(sd, "weight", e.weight, tensor.Shape{e.vocabSize, e.embedDim})
}

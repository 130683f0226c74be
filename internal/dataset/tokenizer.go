package dataset

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// SubwordTokenizer is a BPE alternative to the word-level vocabulary,
// backed by a tiktoken encoding. Useful when caption vocabularies grow
// past what word-level ids handle well.
type SubwordTokenizer struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// NewSubwordTokenizer loads a tiktoken encoding, e.g. "cl100k_base".
func NewSubwordTokenizer(encodingName string) (*SubwordTokenizer, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", encodingName, err)
	}
	return &SubwordTokenizer{encoding: encoding, name: encodingName}, nil
}

// Encode converts a caption to subword token ids. The ids are shifted by
// the special-token count so pad/start/end/unk keep their reserved slots.
func (t *SubwordTokenizer) Encode(caption string) []int {
	raw := t.encoding.Encode(caption, nil, nil)
	ids := make([]int, 0, len(raw)+2)
	ids = append(ids, StartToken)
	for _, tok := range raw {
		ids = append(ids, tok+len(specialTokens))
	}
	return append(ids, EndToken)
}

// Decode converts shifted subword ids back to text, dropping special
// tokens.
func (t *SubwordTokenizer) Decode(ids []int) string {
	raw := make([]int, 0, len(ids))
	for _, id := range ids {
		if id >= len(specialTokens) {
			raw = append(raw, id-len(specialTokens))
		}
	}
	return t.encoding.Decode(raw)
}

// VocabSize returns the id space size including the reserved specials.
func (t *SubwordTokenizer) VocabSize() int {
	// tiktoken-go does not expose vocabulary sizes; these are the
	// published sizes per encoding.
	base := 100000
	switch t.name {
	case "cl100k_base":
		base = 100256
	case "p50k_base", "r50k_base":
		base = 50257
	}
	return base + len(specialTokens)
}

// Package dataset loads Flickr30K-style captioning data: a directory of
// images plus a captions file with one "image.jpg#n<TAB>caption" line per
// caption. It covers tokenization, vocabulary construction, image
// preprocessing and augmentation, and batch assembly.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"
)

// Special token positions, fixed across every vocabulary.
const (
	PadToken   = 0
	StartToken = 1
	EndToken   = 2
	UnkToken   = 3
)

var specialTokens = []string{"<pad>", "<start>", "<end>", "<unk>"}

// Vocab maps caption words to token ids. Ids 0..3 are reserved for the
// special tokens.
type Vocab struct {
	words  []string
	lookup map[string]int
}

// BuildVocab constructs a vocabulary from tokenized captions, keeping
// words that occur at least minFreq times. Words are ordered by
// descending frequency, ties broken alphabetically, so construction is
// deterministic.
func BuildVocab(captions [][]string, minFreq int) *Vocab {
	if minFreq < 1 {
		minFreq = 1
	}
	freq := make(map[string]int)
	for _, tokens := range captions {
		for _, tok := range tokens {
			freq[tok]++
		}
	}

	kept := make([]string, 0, len(freq))
	for word, n := range freq {
		if n >= minFreq {
			kept = append(kept, word)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if freq[kept[i]] != freq[kept[j]] {
			return freq[kept[i]] > freq[kept[j]]
		}
		return kept[i] < kept[j]
	})

	v := &Vocab{
		words:  append(append([]string{}, specialTokens...), kept...),
		lookup: make(map[string]int, len(kept)+len(specialTokens)),
	}
	for i, w := range v.words {
		v.lookup[w] = i
	}
	return v
}

// Size returns the vocabulary size including special tokens.
func (v *Vocab) Size() int { return len(v.words) }

// ID returns the token id for a word, or UnkToken for unknown words.
func (v *Vocab) ID(word string) int {
	if id, ok := v.lookup[word]; ok {
		return id
	}
	return UnkToken
}

// Word returns the word for a token id.
func (v *Vocab) Word(id int) string {
	if id < 0 || id >= len(v.words) {
		return specialTokens[UnkToken]
	}
	return v.words[id]
}

// Encode converts caption tokens to ids, wrapped in start/end tokens.
func (v *Vocab) Encode(tokens []string) []int {
	ids := make([]int, 0, len(tokens)+2)
	ids = append(ids, StartToken)
	for _, tok := range tokens {
		ids = append(ids, v.ID(tok))
	}
	return append(ids, EndToken)
}

// Decode converts ids back to words, dropping special tokens.
func (v *Vocab) Decode(ids []int) []string {
	words := make([]string, 0, len(ids))
	for _, id := range ids {
		if id < len(specialTokens) {
			continue
		}
		words = append(words, v.Word(id))
	}
	return words
}

// Save writes the word list as JSON.
func (v *Vocab) Save(path string) error {
	data, err := json.Marshal(v.words)
	if err != nil {
		return fmt.Errorf("marshal vocabulary: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadVocab reads a vocabulary written by Save.
func LoadVocab(path string) (*Vocab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	var words []string
	if err := json.Unmarshal(data, &words); err != nil {
		return nil, fmt.Errorf("decode vocabulary: %w", err)
	}
	if len(words) < len(specialTokens) {
		return nil, fmt.Errorf("vocabulary too small: %d words", len(words))
	}
	for i, want := range specialTokens {
		if words[i] != want {
			return nil, fmt.Errorf("vocabulary slot %d holds %q, want %q", i, words[i], want)
		}
	}
	v := &Vocab{words: words, lookup: make(map[string]int, len(words))}
	for i, w := range words {
		v.lookup[w] = i
	}
	return v, nil
}

// TokenizeWords lowercases a caption and splits it into word tokens,
// dropping punctuation.
func TokenizeWords(caption string) []string {
	return strings.FieldsFunc(strings.ToLower(caption), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captiva-ml/captiva/internal/tensor"
)

func TestBLEU_PerfectMatch(t *testing.T) {
	cand := [][]string{{"a", "dog", "runs", "fast"}}
	refs := [][][]string{{{"a", "dog", "runs", "fast"}}}

	scores := BLEU(cand, refs, 4)
	require.Len(t, scores, 4)
	for n, s := range scores {
		assert.InDelta(t, 1.0, s, 1e-9, "BLEU-%d of a perfect match", n+1)
	}
}

func TestBLEU_PartialMatch(t *testing.T) {
	cand := [][]string{{"a", "dog", "sits"}}
	refs := [][][]string{{{"a", "dog", "runs"}}}

	scores := BLEU(cand, refs, 2)
	// Unigram precision 2/3, bigram precision 1/2, no brevity penalty.
	assert.InDelta(t, 2.0/3.0, scores[0], 1e-9)
	assert.InDelta(t, 0.5773, scores[1], 1e-3) // sqrt(2/3 * 1/2)
}

func TestBLEU_BrevityPenalty(t *testing.T) {
	cand := [][]string{{"a", "dog"}}
	refs := [][][]string{{{"a", "dog", "runs", "in", "the", "park"}}}

	scores := BLEU(cand, refs, 1)
	// Precision is 1 but the candidate is far too short.
	assert.Less(t, scores[0], 0.2)
	assert.Greater(t, scores[0], 0.0)
}

func TestBLEU_NoOverlap(t *testing.T) {
	cand := [][]string{{"x", "y"}}
	refs := [][][]string{{{"a", "dog"}}}
	scores := BLEU(cand, refs, 4)
	for _, s := range scores {
		assert.Zero(t, s)
	}
}

func TestROUGE1(t *testing.T) {
	cand := [][]string{{"a", "dog", "runs"}}
	refs := [][][]string{{{"a", "dog", "runs"}, {"something", "else"}}}
	assert.InDelta(t, 1.0, ROUGE1(cand, refs), 1e-9)

	cand = [][]string{{"a", "cat"}}
	refs = [][][]string{{{"a", "dog", "runs", "here"}}}
	// Overlap 1, precision 1/2, recall 1/4, F = 1/3.
	assert.InDelta(t, 1.0/3.0, ROUGE1(cand, refs), 1e-9)
}

func TestMETEOR(t *testing.T) {
	cand := [][]string{{"a", "dog", "runs"}}
	refs := [][][]string{{{"a", "dog", "runs"}}}
	// Perfect match: one chunk, penalty 0.5*(1/3)³, F-mean 1.
	got := METEOR(cand, refs)
	assert.InDelta(t, 1-0.5/27.0, got, 1e-9)

	assert.Zero(t, METEOR([][]string{{"x"}}, [][][]string{{{"y"}}}))

	// Scrambled word order fragments the alignment and scores lower.
	scrambled := METEOR([][]string{{"runs", "dog", "a"}}, refs)
	assert.Less(t, scrambled, got)
}

func TestAverageMeter(t *testing.T) {
	var m AverageMeter
	assert.Zero(t, m.Average())

	m.Update(2.0, 10)
	m.Update(4.0, 10)
	assert.InDelta(t, 3.0, m.Average(), 1e-9)
	assert.InDelta(t, 4.0, m.Last(), 1e-9)

	m.Reset()
	assert.Zero(t, m.Average())
}

func TestTopKAccuracy(t *testing.T) {
	scores, err := tensor.NewRaw(tensor.Shape{3, 4}, []float32{
		0.1, 0.7, 0.1, 0.1, // argmax 1
		0.4, 0.3, 0.2, 0.1, // argmax 0
		0.1, 0.2, 0.3, 0.4, // argmax 3
	})
	require.NoError(t, err)

	targets := []int{1, 1, 3}
	assert.InDelta(t, 2.0/3.0, TopKAccuracy(scores, targets, 1), 1e-9)
	assert.InDelta(t, 1.0, TopKAccuracy(scores, targets, 2), 1e-9)

	// Padding rows are excluded.
	assert.InDelta(t, 1.0, TopKAccuracy(scores, []int{1, -1, 3}, 1), 1e-9)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{1, 2, 3, 4})
	assert.InDelta(t, 2.5, s.Mean, 1e-9)
	assert.InDelta(t, 1.0, s.Min, 1e-9)
	assert.InDelta(t, 4.0, s.Max, 1e-9)
	assert.Greater(t, s.Std, 0.0)

	assert.Equal(t, Summary{}, Summarize(nil))
}

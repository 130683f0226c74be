// Package metrics implements the caption evaluation metrics: corpus BLEU
// with brevity penalty, ROUGE-1 F-measure, METEOR, and the running
// meters used during training.
package metrics

import "math"

// BLEU computes corpus-level BLEU-n for n = 1..maxOrder over candidate
// captions and their reference sets, with the standard brevity penalty.
// Returns one score per order, each cumulative over orders 1..n via the
// geometric mean of modified precisions.
func BLEU(candidates [][]string, references [][][]string, maxOrder int) []float64 {
	if maxOrder <= 0 {
		maxOrder = 4
	}

	matches := make([]float64, maxOrder)
	totals := make([]float64, maxOrder)
	var candLen, refLen int

	for i, cand := range candidates {
		refs := references[i]
		candLen += len(cand)
		refLen += closestRefLength(len(cand), refs)

		for n := 1; n <= maxOrder; n++ {
			candCounts := ngramCounts(cand, n)
			maxRef := make(map[string]int)
			for _, ref := range refs {
				for gram, count := range ngramCounts(ref, n) {
					if count > maxRef[gram] {
						maxRef[gram] = count
					}
				}
			}
			for gram, count := range candCounts {
				clipped := count
				if m := maxRef[gram]; m < clipped {
					clipped = m
				}
				matches[n-1] += float64(clipped)
				totals[n-1] += float64(count)
			}
		}
	}

	bp := 1.0
	if candLen < refLen && candLen > 0 {
		bp = math.Exp(1 - float64(refLen)/float64(candLen))
	}

	scores := make([]float64, maxOrder)
	logSum := 0.0
	for n := 1; n <= maxOrder; n++ {
		var p float64
		if totals[n-1] > 0 {
			p = matches[n-1] / totals[n-1]
		}
		if p == 0 {
			// Zero precision at any order zeroes the cumulative score
			// from there on.
			for k := n; k <= maxOrder; k++ {
				scores[k-1] = 0
			}
			break
		}
		logSum += math.Log(p)
		scores[n-1] = bp * math.Exp(logSum/float64(n))
	}
	return scores
}

func closestRefLength(candLen int, refs [][]string) int {
	best, bestDiff := 0, math.MaxInt
	for _, ref := range refs {
		diff := len(ref) - candLen
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff || (diff == bestDiff && len(ref) < best) {
			best, bestDiff = len(ref), diff
		}
	}
	return best
}

func ngramCounts(tokens []string, n int) map[string]int {
	counts := make(map[string]int)
	for i := 0; i+n <= len(tokens); i++ {
		gram := tokens[i]
		for j := 1; j < n; j++ {
			gram += "\x00" + tokens[i+j]
		}
		counts[gram]++
	}
	return counts
}

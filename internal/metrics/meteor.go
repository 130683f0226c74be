package metrics

import "math"

// METEOR computes the corpus mean METEOR score using exact unigram
// matching: harmonic mean of precision and recall weighted 9:1 toward
// recall, times a chunk fragmentation penalty. Per caption, the best
// score over references is taken.
func METEOR(candidates [][]string, references [][][]string) float64 {
	if len(candidates) == 0 {
		return 0
	}
	total := 0.0
	for i, cand := range candidates {
		best := 0.0
		for _, ref := range references[i] {
			if s := meteorSingle(cand, ref); s > best {
				best = s
			}
		}
		total += best
	}
	return total / float64(len(candidates))
}

func meteorSingle(cand, ref []string) float64 {
	if len(cand) == 0 || len(ref) == 0 {
		return 0
	}

	// Greedy left-to-right alignment of exact matches.
	used := make([]bool, len(ref))
	aligned := make([]int, len(cand)) // ref index per cand position, -1 if unmatched
	matches := 0
	for i, word := range cand {
		aligned[i] = -1
		for j, refWord := range ref {
			if !used[j] && word == refWord {
				used[j] = true
				aligned[i] = j
				matches++
				break
			}
		}
	}
	if matches == 0 {
		return 0
	}

	precision := float64(matches) / float64(len(cand))
	recall := float64(matches) / float64(len(ref))
	fMean := 10 * precision * recall / (recall + 9*precision)

	// Chunks: maximal runs of matches adjacent in both strings.
	chunks := 0
	prev := -2
	for _, j := range aligned {
		if j < 0 {
			continue
		}
		if j != prev+1 {
			chunks++
		}
		prev = j
	}
	penalty := 0.5 * math.Pow(float64(chunks)/float64(matches), 3)
	return fMean * (1 - penalty)
}

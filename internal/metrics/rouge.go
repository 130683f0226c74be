package metrics

// ROUGE1 computes the corpus mean ROUGE-1 F-measure: per caption, the
// best unigram-overlap F score against any reference.
func ROUGE1(candidates [][]string, references [][][]string) float64 {
	if len(candidates) == 0 {
		return 0
	}
	total := 0.0
	for i, cand := range candidates {
		best := 0.0
		for _, ref := range references[i] {
			if f := rouge1Single(cand, ref); f > best {
				best = f
			}
		}
		total += best
	}
	return total / float64(len(candidates))
}

func rouge1Single(cand, ref []string) float64 {
	if len(cand) == 0 || len(ref) == 0 {
		return 0
	}
	refCounts := ngramCounts(ref, 1)
	overlap := 0
	for gram, count := range ngramCounts(cand, 1) {
		if r := refCounts[gram]; r < count {
			overlap += r
		} else {
			overlap += count
		}
	}
	precision := float64(overlap) / float64(len(cand))
	recall := float64(overlap) / float64(len(ref))
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}

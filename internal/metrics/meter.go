package metrics

import (
	"gonum.org/v1/gonum/stat"

	"github.com/captiva-ml/captiva/internal/tensor"
)

// AverageMeter tracks a running average of a scalar, typically the
// per-batch loss.
type AverageMeter struct {
	sum   float64
	count int
	last  float64
}

// Update adds a value observed over n items.
func (m *AverageMeter) Update(value float64, n int) {
	m.sum += value * float64(n)
	m.count += n
	m.last = value
}

// Average returns the running mean.
func (m *AverageMeter) Average() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// Last returns the most recent value.
func (m *AverageMeter) Last() float64 { return m.last }

// Reset clears the meter.
func (m *AverageMeter) Reset() { *m = AverageMeter{} }

// TopKAccuracy computes the fraction of rows whose target is among the
// k highest-scoring classes. scores is [rows, classes]; targets of -1
// are padding and are skipped.
func TopKAccuracy(scores *tensor.RawTensor, targets []int, k int) float64 {
	shape := scores.Shape()
	rows, classes := shape[0], shape[1]
	data := scores.Data()

	hits, counted := 0, 0
	for r := 0; r < rows && r < len(targets); r++ {
		target := targets[r]
		if target < 0 {
			continue
		}
		counted++
		row := data[r*classes : (r+1)*classes]
		// A row hits when fewer than k classes outscore the target.
		better := 0
		for c := 0; c < classes; c++ {
			if row[c] > row[target] {
				better++
			}
		}
		if better < k {
			hits++
		}
	}
	if counted == 0 {
		return 0
	}
	return float64(hits) / float64(counted)
}

// Summary holds distribution statistics over per-image scores.
type Summary struct {
	Mean float64
	Std  float64
	Min  float64
	Max  float64
}

// Summarize computes mean, standard deviation and range of scores.
func Summarize(scores []float64) Summary {
	if len(scores) == 0 {
		return Summary{}
	}
	s := Summary{
		Mean: stat.Mean(scores, nil),
		Std:  stat.StdDev(scores, nil),
		Min:  scores[0],
		Max:  scores[0],
	}
	if len(scores) == 1 {
		s.Std = 0
	}
	for _, v := range scores[1:] {
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	return s
}

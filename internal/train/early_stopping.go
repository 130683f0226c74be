package train

// Mode selects the improvement direction for EarlyStopping.
type Mode int

const (
	// MinMode treats lower values as better (loss).
	MinMode Mode = iota
	// MaxMode treats higher values as better (BLEU).
	MaxMode
)

// EarlyStopping tracks a validation metric and signals when it has
// stopped improving for a number of epochs.
type EarlyStopping struct {
	patience int
	delta    float64
	mode     Mode

	best    float64
	hasBest bool
	counter int
}

// NewEarlyStopping creates a tracker that stops after patience epochs
// without an improvement of at least delta.
func NewEarlyStopping(patience int, delta float64, mode Mode) *EarlyStopping {
	if patience < 1 {
		patience = 1
	}
	if delta < 0 {
		delta = 0
	}
	return &EarlyStopping{patience: patience, delta: delta, mode: mode}
}

// Step records one epoch's metric and reports whether it improved.
func (e *EarlyStopping) Step(value float64) bool {
	improved := !e.hasBest
	if e.hasBest {
		switch e.mode {
		case MinMode:
			improved = value < e.best-e.delta
		case MaxMode:
			improved = value > e.best+e.delta
		}
	}
	if improved {
		e.best = value
		e.hasBest = true
		e.counter = 0
	} else {
		e.counter++
	}
	return improved
}

// ShouldStop reports whether patience is exhausted.
func (e *EarlyStopping) ShouldStop() bool { return e.counter >= e.patience }

// Best returns the best value seen so far.
func (e *EarlyStopping) Best() float64 { return e.best }

package nn

import (
	"fmt"

	"github.com/captiva-ml/captiva/internal/tensor"
)

// LSTMCell is a single-step long short-term memory cell.
//
// Gates follow the standard formulation:
//
//	i = σ(Wi·x + Ui·h)        input gate
//	f = σ(Wf·x + Uf·h)        forget gate
//	g = tanh(Wg·x + Ug·h)     candidate cell
//	o = σ(Wo·x + Uo·h)        output gate
//	c' = f*c + i*g
//	h' = o * tanh(c')
//
// Each gate uses its own pair of Linear projections; the input-side
// projection carries the bias.
type LSTMCell[B tensor.Backend] struct {
	inputDim  int
	hiddenDim int

	wi, ui *Linear[B]
	wf, uf *Linear[B]
	wg, ug *Linear[B]
	wo, uo *Linear[B]
}

// NewLSTMCell creates an LSTM cell mapping inputDim features and a
// hiddenDim state to a new hiddenDim state.
func NewLSTMCell[B tensor.Backend](inputDim, hiddenDim int, backend B) (*LSTMCell[B], error) {
	if inputDim <= 0 || hiddenDim <= 0 {
		return nil, NewConfigError("LSTMCell", "dimensions must be positive, got input=%d hidden=%d", inputDim, hiddenDim)
	}

	cell := &LSTMCell[B]{inputDim: inputDim, hiddenDim: hiddenDim}
	var err error
	for _, gate := range []struct {
		w, u **Linear[B]
	}{
		{&cell.wi, &cell.ui},
		{&cell.wf, &cell.uf},
		{&cell.wg, &cell.ug},
		{&cell.wo, &cell.uo},
	} {
		if *gate.w, err = NewLinear(inputDim, hiddenDim, backend); err != nil {
			return nil, err
		}
		if *gate.u, err = NewLinearNoBias(hiddenDim, hiddenDim, backend); err != nil {
			return nil, err
		}
	}
	return cell, nil
}

// Forward advances the cell one step.
//
// Shapes:
//   - x: [batch, inputDim]
//   - h, c: [batch, hiddenDim]
//
// Returns the next hidden and cell states.
func (l *LSTMCell[B]) Forward(x, h, c *tensor.Tensor[B]) (hNext, cNext *tensor.Tensor[B]) {
	if got := x.Shape()[len(x.Shape())-1]; got != l.inputDim {
		panic(fmt.Sprintf("LSTMCell.Forward: expected %d input features, got %d", l.inputDim, got))
	}

	i := l.wi.Forward(x).Add(l.ui.Forward(h)).Sigmoid()
	f := l.wf.Forward(x).Add(l.uf.Forward(h)).Sigmoid()
	g := l.wg.Forward(x).Add(l.ug.Forward(h)).Tanh()
	o := l.wo.Forward(x).Add(l.uo.Forward(h)).Sigmoid()

	cNext = f.Mul(c).Add(i.Mul(g))
	hNext = o.Mul(cNext.Tanh())
	return hNext, cNext
}

// Parameters returns all gate projections' parameters.
func (l *LSTMCell[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, lin := range []*Linear[B]{l.wi, l.ui, l.wf, l.uf, l.wg, l.ug, l.wo, l.uo} {
		params = append(params, lin.Parameters()...)
	}
	return params
}

// InputDim returns the input feature count.
func (l *LSTMCell[B]) InputDim() int { return l.inputDim }

// HiddenDim returns the state size.
func (l *LSTMCell[B]) HiddenDim() int { return l.hiddenDim }

// StateDict returns all gate parameters keyed by gate and role.
func (l *LSTMCell[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	for name, lin := range l.gates() {
		for k, v := range lin.StateDict() {
			sd[name+"."+k] = v
		}
	}
	return sd
}

// LoadStateDict copies gate parameters from a state dictionary.
func (l *LSTMCell[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	for name, lin := range l.gates() {
		sub := make(map[string]*tensor.RawTensor)
		for k, v := range sd {
			if len(k) > len(name) && k[:len(name)] == name && k[len(name)] == '.' {
				sub[k[len(name)+1:]] = v
			}
		}
		if err := lin.LoadStateDict(sub); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (l *LSTMCell[B]) gates() map[string]*Linear[B] {
	return map[string]*Linear[B]{
		"w_input": l.wi, "u_input": l.ui,
		"w_forget": l.wf, "u_forget": l.uf,
		"w_cell": l.wg, "u_cell": l.ug,
		"w_output": l.wo, "u_output": l.uo,
	}
}

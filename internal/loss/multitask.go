package loss

import (
	"errors"
	"fmt"

	"github.com/FlavioCFOliveira/census-mmoe/internal/layer"
	"gonum.org/v1/gonum/mat"
)

// ErrTaskCount is returned when predictions, labels and losses disagree on
// the number of tasks.
var ErrTaskCount = errors.New("task count mismatch")

// MultiTask combines one loss per task into a single training signal.
// Tasks may have different label widths and loss scales; per-task values
// stay observable in the Result.
type MultiTask struct {
	Losses []Loss
	// Weights scales each task's loss in Total. Nil means unweighted.
	Weights []float64
}

// NewMultiTask returns an unweighted aggregator applying l to n tasks.
func NewMultiTask(l Loss, n int) *MultiTask {
	losses := make([]Loss, n)
	for i := range losses {
		losses[i] = l
	}
	return &MultiTask{Losses: losses}
}

// Result holds per-task losses, the combined total and the gradient of the
// total with respect to every task's predictions.
type Result struct {
	PerTask []float64
	Total   float64
	Grads   []*mat.Dense
}

func (m *MultiTask) weight(i int) float64 {
	if m.Weights == nil {
		return 1
	}
	return m.Weights[i]
}

func (m *MultiTask) check(preds, labels []*mat.Dense) error {
	if len(preds) != len(m.Losses) || len(labels) != len(m.Losses) {
		return fmt.Errorf("%w: %d predictions, %d labels, %d losses", ErrTaskCount, len(preds), len(labels), len(m.Losses))
	}
	if m.Weights != nil && len(m.Weights) != len(m.Losses) {
		return fmt.Errorf("%w: %d weights for %d losses", ErrTaskCount, len(m.Weights), len(m.Losses))
	}
	for i := range preds {
		pr, pc := preds[i].Dims()
		lr, lc := labels[i].Dims()
		if pr != lr || pc != lc {
			return fmt.Errorf("%w: task %d predictions %dx%d, labels %dx%d", layer.ErrShapeMismatch, i, pr, pc, lr, lc)
		}
	}
	return nil
}

// Compute evaluates every task's loss and gradient.
func (m *MultiTask) Compute(preds, labels []*mat.Dense) (Result, error) {
	if err := m.check(preds, labels); err != nil {
		return Result{}, err
	}

	res := Result{
		PerTask: make([]float64, len(preds)),
		Grads:   make([]*mat.Dense, len(preds)),
	}
	for i, l := range m.Losses {
		v, g := Batch(l, preds[i], labels[i])
		w := m.weight(i)
		if w != 1 {
			g.Scale(w, g)
		}
		res.PerTask[i] = v
		res.Grads[i] = g
		res.Total += w * v
	}
	return res, nil
}

// Evaluate is Compute without gradients.
func (m *MultiTask) Evaluate(preds, labels []*mat.Dense) (Result, error) {
	if err := m.check(preds, labels); err != nil {
		return Result{}, err
	}

	res := Result{PerTask: make([]float64, len(preds))}
	for i, l := range m.Losses {
		v := Mean(l, preds[i], labels[i])
		res.PerTask[i] = v
		res.Total += m.weight(i) * v
	}
	return res, nil
}

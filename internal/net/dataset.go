package net

import (
	"fmt"

	"github.com/FlavioCFOliveira/census-mmoe/internal/layer"
	"gonum.org/v1/gonum/mat"
)

// Dataset is a feature matrix with one named label matrix per task.
// Tasks[i] names the task whose labels are Y[i]; the order is free, models
// look labels up by name.
type Dataset struct {
	X     *mat.Dense
	Tasks []string
	Y     []*mat.Dense
}

// Rows returns the number of examples.
func (d Dataset) Rows() int {
	if d.X == nil {
		return 0
	}
	r, _ := d.X.Dims()
	return r
}

// Validate checks that every label matrix is named once and has one row
// per example.
func (d Dataset) Validate() error {
	if d.X == nil {
		return fmt.Errorf("%w: dataset has no features", layer.ErrShapeMismatch)
	}
	if len(d.Tasks) != len(d.Y) {
		return fmt.Errorf("%w: %d task names for %d label matrices", layer.ErrShapeMismatch, len(d.Tasks), len(d.Y))
	}
	rows := d.Rows()
	seen := make(map[string]bool, len(d.Tasks))
	for i, y := range d.Y {
		name := d.Tasks[i]
		if name == "" || seen[name] {
			return fmt.Errorf("%w: label matrix %d has task name %q", layer.ErrShapeMismatch, i, name)
		}
		seen[name] = true
		if y == nil {
			return fmt.Errorf("%w: labels for %s are nil", layer.ErrShapeMismatch, name)
		}
		if r, _ := y.Dims(); r != rows {
			return fmt.Errorf("%w: labels for %s have %d rows, features have %d", layer.ErrShapeMismatch, name, r, rows)
		}
	}
	return nil
}

// Label returns the labels of the named task.
func (d Dataset) Label(task string) (*mat.Dense, bool) {
	for i, name := range d.Tasks {
		if name == task && i < len(d.Y) {
			return d.Y[i], true
		}
	}
	return nil, false
}

// Batch returns a dataset viewing rows [start, end).
func (d Dataset) Batch(start, end int) Dataset {
	_, c := d.X.Dims()
	out := Dataset{
		X:     d.X.Slice(start, end, 0, c).(*mat.Dense),
		Tasks: d.Tasks,
		Y:     make([]*mat.Dense, len(d.Y)),
	}
	for i, l := range d.Y {
		_, lc := l.Dims()
		out.Y[i] = l.Slice(start, end, 0, lc).(*mat.Dense)
	}
	return out
}

// Subset copies the given rows into a new dataset.
func (d Dataset) Subset(idx []int) Dataset {
	out := Dataset{X: gatherRows(d.X, idx), Tasks: d.Tasks, Y: make([]*mat.Dense, len(d.Y))}
	for i, l := range d.Y {
		out.Y[i] = gatherRows(l, idx)
	}
	return out
}

func gatherRows(m *mat.Dense, idx []int) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, r := range idx {
		copy(out.RawRowView(i), m.RawRowView(r))
	}
	return out
}

// MinMax holds per-column ranges for min-max normalization.
type MinMax struct {
	Min []float64
	Max []float64
}

// FitMinMax computes column ranges of x.
func FitMinMax(x *mat.Dense) MinMax {
	r, c := x.Dims()
	mm := MinMax{Min: make([]float64, c), Max: make([]float64, c)}
	copy(mm.Min, x.RawRowView(0))
	copy(mm.Max, x.RawRowView(0))
	for i := 1; i < r; i++ {
		for j, v := range x.RawRowView(i) {
			if v < mm.Min[j] {
				mm.Min[j] = v
			}
			if v > mm.Max[j] {
				mm.Max[j] = v
			}
		}
	}
	return mm
}

// Transform rescales x in place to the fitted ranges. Constant columns map
// to zero; values outside the fitted range are not clipped.
func (mm MinMax) Transform(x *mat.Dense) {
	r, _ := x.Dims()
	for i := 0; i < r; i++ {
		row := x.RawRowView(i)
		for j := range row {
			diff := mm.Max[j] - mm.Min[j]
			if diff != 0 {
				row[j] = (row[j] - mm.Min[j]) / diff
			} else {
				row[j] = 0
			}
		}
	}
}

// Package layer provides the dense substrate and the multi-gate
// mixture-of-experts building blocks.
//
// All layers work on batches: inputs and outputs are *mat.Dense with one
// example per row.
package layer

import (
	"errors"
	"fmt"

	"github.com/FlavioCFOliveira/census-mmoe/internal/activations"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrShapeMismatch is returned when a matrix does not have the width or
// batch size a component was built for.
var ErrShapeMismatch = errors.New("shape mismatch")

// Layer is a neural network layer operating on a batch.
type Layer interface {
	// Forward computes the layer output and caches what Backward needs.
	Forward(x *mat.Dense) *mat.Dense
	// Apply computes the layer output without touching any cached state.
	Apply(x mat.Matrix) *mat.Dense
	// Backward takes dL/dOutput and returns dL/dInput, storing parameter gradients.
	Backward(grad *mat.Dense) *mat.Dense
	Params() [][]float64
	Gradients() [][]float64
	InSize() int
	OutSize() int
}

// CheckWidth reports ErrShapeMismatch when x does not have want columns.
func CheckWidth(x mat.Matrix, want int, what string) error {
	if d, ok := x.(*mat.Dense); x == nil || ok && d == nil {
		return fmt.Errorf("%w: %s is nil", ErrShapeMismatch, what)
	}
	_, c := x.Dims()
	if c != want {
		return fmt.Errorf("%w: %s has %d columns, want %d", ErrShapeMismatch, what, c, want)
	}
	return nil
}

var _ Layer = (*Dense)(nil)

// Dense is a fully connected layer: y = act(x·W + b).
type Dense struct {
	// Shape: [in, out], contiguous so Params can expose the backing slice
	weights *mat.Dense
	biases  []float64
	act     activations.Activation
	inSize  int
	outSize int

	// Cached by Forward for Backward
	input  *mat.Dense
	preAct *mat.Dense
	output *mat.Dense

	gradW *mat.Dense
	gradB []float64
}

// NewDense creates a dense layer. Weights are drawn from init, biases start at zero.
// A nil init uses GlorotUniform with seed 1.
func NewDense(in, out int, act activations.Activation, init Initializer) *Dense {
	if act == nil {
		act = activations.Linear{}
	}
	if init == nil {
		init = NewGlorotUniform(NewSource(1))
	}

	w := make([]float64, in*out)
	init.Init(w, in, out)

	return &Dense{
		weights: mat.NewDense(in, out, w),
		biases:  make([]float64, out),
		act:     act,
		inSize:  in,
		outSize: out,
		gradW:   mat.NewDense(in, out, nil),
		gradB:   make([]float64, out),
	}
}

// Apply computes act(x·W + b) without caching.
func (d *Dense) Apply(x mat.Matrix) *mat.Dense {
	var z mat.Dense
	z.Mul(x, d.weights)
	d.addBias(&z)
	d.activate(&z)
	return &z
}

// Forward computes the output and caches input, pre-activation and output.
func (d *Dense) Forward(x *mat.Dense) *mat.Dense {
	d.input = mat.DenseCopyOf(x)

	var z mat.Dense
	z.Mul(x, d.weights)
	d.addBias(&z)
	d.preAct = &z

	d.output = mat.DenseCopyOf(&z)
	d.activate(d.output)
	return d.output
}

func (d *Dense) addBias(z *mat.Dense) {
	r, _ := z.Dims()
	for i := 0; i < r; i++ {
		floats.Add(z.RawRowView(i), d.biases)
	}
}

func (d *Dense) activate(m *mat.Dense) {
	r, _ := m.Dims()
	if ra, ok := d.act.(activations.RowActivation); ok {
		for i := 0; i < r; i++ {
			ra.ActivateRow(m.RawRowView(i))
		}
		return
	}
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		for j, v := range row {
			row[j] = d.act.Activate(v)
		}
	}
}

// Backward computes weight, bias and input gradients from dL/dOutput.
// Gradients are overwritten, not accumulated.
func (d *Dense) Backward(grad *mat.Dense) *mat.Dense {
	if d.input == nil {
		panic("Dense.Backward: Forward must be called first")
	}

	// dz = dL/dy * dy/dz
	dz := mat.DenseCopyOf(grad)
	r, _ := dz.Dims()
	if ra, ok := d.act.(activations.RowActivation); ok {
		for i := 0; i < r; i++ {
			ra.BackwardRow(d.output.RawRowView(i), dz.RawRowView(i))
		}
	} else {
		for i := 0; i < r; i++ {
			row := dz.RawRowView(i)
			pre := d.preAct.RawRowView(i)
			for j := range row {
				row[j] *= d.act.Derivative(pre[j])
			}
		}
	}

	d.gradW.Mul(d.input.T(), dz)

	for j := range d.gradB {
		d.gradB[j] = 0
	}
	for i := 0; i < r; i++ {
		floats.Add(d.gradB, dz.RawRowView(i))
	}

	var dx mat.Dense
	dx.Mul(dz, d.weights.T())
	return &dx
}

// Params returns the live weight and bias slices.
func (d *Dense) Params() [][]float64 {
	return [][]float64{d.weights.RawMatrix().Data, d.biases}
}

// SetParams copies weights and biases from groups shaped like Params.
func (d *Dense) SetParams(params [][]float64) error {
	if len(params) != 2 || len(params[0]) != d.inSize*d.outSize || len(params[1]) != d.outSize {
		return fmt.Errorf("%w: dense %dx%d parameters", ErrShapeMismatch, d.inSize, d.outSize)
	}
	copy(d.weights.RawMatrix().Data, params[0])
	copy(d.biases, params[1])
	return nil
}

// Gradients returns the live gradient slices, aligned with Params.
func (d *Dense) Gradients() [][]float64 {
	return [][]float64{d.gradW.RawMatrix().Data, d.gradB}
}

// SetWeight sets the weight connecting input col to output row.
func (d *Dense) SetWeight(row, col int, val float64) {
	d.weights.Set(col, row, val)
}

// GetWeight gets the weight connecting input col to output row.
func (d *Dense) GetWeight(row, col int) float64 {
	return d.weights.At(col, row)
}

// SetBias sets a single bias.
func (d *Dense) SetBias(idx int, val float64) {
	d.biases[idx] = val
}

// GetBias gets a single bias.
func (d *Dense) GetBias(idx int) float64 {
	return d.biases[idx]
}

// InSize returns the input size of the layer.
func (d *Dense) InSize() int {
	return d.inSize
}

// OutSize returns the output size of the layer.
func (d *Dense) OutSize() int {
	return d.outSize
}

// Activation returns the activation function used by this layer.
func (d *Dense) Activation() activations.Activation {
	return d.act
}

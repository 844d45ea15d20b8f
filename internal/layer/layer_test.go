// Package layer provides unit tests for the dense substrate.
package layer

import (
	"errors"
	"math"
	"testing"

	"github.com/FlavioCFOliveira/census-mmoe/internal/activations"
	"github.com/davecgh/go-spew/spew"
	"gonum.org/v1/gonum/mat"
)

// TestDenseForward tests a dense layer with identity weights.
func TestDenseForward(t *testing.T) {
	d := NewDense(2, 2, activations.Tanh{}, nil)

	d.SetWeight(0, 0, 1.0)
	d.SetWeight(0, 1, 0.0)
	d.SetWeight(1, 0, 0.0)
	d.SetWeight(1, 1, 1.0)
	d.SetBias(0, 0.0)
	d.SetBias(1, 0.5)

	x := mat.NewDense(2, 2, []float64{1, 2, -1, 0})
	out := d.Forward(x)

	want := mat.NewDense(2, 2, []float64{
		math.Tanh(1), math.Tanh(2.5),
		math.Tanh(-1), math.Tanh(0.5),
	})
	if !mat.EqualApprox(out, want, 1e-12) {
		t.Errorf("Forward =\n%s\nwant\n%s", spew.Sdump(out.RawMatrix().Data), spew.Sdump(want.RawMatrix().Data))
	}

	// Apply must agree with Forward
	if !mat.Equal(d.Apply(x), out) {
		t.Error("Apply and Forward disagree")
	}
}

// TestDenseSoftmaxRows tests that a softmax layer produces distributions.
func TestDenseSoftmaxRows(t *testing.T) {
	d := NewDense(3, 4, activations.Softmax{}, NewGlorotUniform(NewSource(7)))
	x := mat.NewDense(5, 3, []float64{
		1, 2, 3,
		-1, 0, 1,
		10, -10, 3,
		0, 0, 0,
		0.5, 0.1, -0.2,
	})
	out := d.Apply(x)
	for i := 0; i < 5; i++ {
		sum := 0.0
		for _, v := range out.RawRowView(i) {
			if v < 0 {
				t.Fatalf("row %d has negative entry %v", i, v)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-12 {
			t.Errorf("row %d sums to %v", i, sum)
		}
	}
}

// TestDenseBackwardNumeric checks every gradient against finite differences
// of the scalar loss L = sum(output * probe).
func TestDenseBackwardNumeric(t *testing.T) {
	acts := []activations.Activation{
		activations.Tanh{},
		activations.Sigmoid{},
		activations.Linear{},
		activations.Softmax{},
	}

	x := mat.NewDense(3, 4, []float64{
		0.1, -0.2, 0.3, 0.5,
		-0.7, 0.4, 0.0, 0.2,
		0.9, -0.1, -0.3, 0.6,
	})
	probe := mat.NewDense(3, 2, []float64{1, -2, 0.5, 0.3, -1, 2})

	for _, act := range acts {
		t.Run(activations.Name(act), func(t *testing.T) {
			d := NewDense(4, 2, act, NewGlorotUniform(NewSource(3)))
			for i := 0; i < 2; i++ {
				d.SetBias(i, 0.1*float64(i+1))
			}

			d.Forward(x)
			dx := d.Backward(probe)
			grads := d.Gradients()

			lossAt := func() float64 {
				out := d.Apply(x)
				return mat.Sum(mulElem(out, probe))
			}

			const h = 1e-6
			for g, params := range d.Params() {
				for i := range params {
					orig := params[i]
					params[i] = orig + h
					plus := lossAt()
					params[i] = orig - h
					minus := lossAt()
					params[i] = orig

					numeric := (plus - minus) / (2 * h)
					if math.Abs(numeric-grads[g][i]) > 1e-5 {
						t.Errorf("param group %d[%d]: grad %v, numeric %v", g, i, grads[g][i], numeric)
					}
				}
			}

			for r := 0; r < 3; r++ {
				for c := 0; c < 4; c++ {
					orig := x.At(r, c)
					x.Set(r, c, orig+h)
					plus := lossAt()
					x.Set(r, c, orig-h)
					minus := lossAt()
					x.Set(r, c, orig)

					numeric := (plus - minus) / (2 * h)
					if math.Abs(numeric-dx.At(r, c)) > 1e-5 {
						t.Errorf("dx[%d,%d] = %v, numeric %v", r, c, dx.At(r, c), numeric)
					}
				}
			}
		})
	}
}

func mulElem(a, b mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.MulElem(a, b)
	return &out
}

// TestDenseParamsAndSetParams tests parameter handling.
func TestDenseParamsAndSetParams(t *testing.T) {
	d := NewDense(3, 2, activations.Tanh{}, nil)

	params := d.Params()
	if len(params) != 2 || len(params[0]) != 6 || len(params[1]) != 2 {
		t.Fatalf("unexpected param layout %v", params)
	}

	newParams := [][]float64{{0, 0.1, 0.2, 0.3, 0.4, 0.5}, {1, 2}}
	if err := d.SetParams(newParams); err != nil {
		t.Fatal(err)
	}

	after := d.Params()
	for g := range newParams {
		for i := range newParams[g] {
			if after[g][i] != newParams[g][i] {
				t.Errorf("params[%d][%d] = %v, want %v", g, i, after[g][i], newParams[g][i])
			}
		}
	}

	// Params are live views
	after[1][0] = 42
	if d.GetBias(0) != 42 {
		t.Error("Params should expose the layer's own storage")
	}

	err := d.SetParams([][]float64{{1, 2}})
	if !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("SetParams with wrong layout: err = %v, want ErrShapeMismatch", err)
	}
}

// TestDenseSeededInit tests that the same seed gives the same weights.
func TestDenseSeededInit(t *testing.T) {
	a := NewDense(5, 3, activations.ReLU{}, NewVarianceScaling(NewSource(11)))
	b := NewDense(5, 3, activations.ReLU{}, NewVarianceScaling(NewSource(11)))
	c := NewDense(5, 3, activations.ReLU{}, NewVarianceScaling(NewSource(12)))

	same, differ := true, false
	for i, v := range a.Params()[0] {
		if v != b.Params()[0][i] {
			same = false
		}
		if v != c.Params()[0][i] {
			differ = true
		}
	}
	if !same {
		t.Error("same seed produced different weights")
	}
	if !differ {
		t.Error("different seeds produced identical weights")
	}
}

// TestVarianceScalingTruncation tests the two-sigma bound.
func TestVarianceScalingTruncation(t *testing.T) {
	w := make([]float64, 2000)
	NewVarianceScaling(NewSource(5)).Init(w, 16, 8)

	sigma := math.Sqrt(1.0/16) / truncatedNormalStd
	for i, v := range w {
		if math.Abs(v) > 2*sigma {
			t.Fatalf("w[%d] = %v outside two sigmas (%v)", i, v, 2*sigma)
		}
	}
}

// TestGlorotUniformBounds tests the uniform limit.
func TestGlorotUniformBounds(t *testing.T) {
	w := make([]float64, 1000)
	NewGlorotUniform(NewSource(5)).Init(w, 10, 6)

	limit := math.Sqrt(6.0 / 16)
	for i, v := range w {
		if v < -limit || v > limit {
			t.Fatalf("w[%d] = %v outside ±%v", i, v, limit)
		}
	}
}

// TestCheckWidth tests width validation.
func TestCheckWidth(t *testing.T) {
	x := mat.NewDense(2, 3, nil)
	if err := CheckWidth(x, 3, "x"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := CheckWidth(x, 4, "x"); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("err = %v, want ErrShapeMismatch", err)
	}
	if err := CheckWidth(nil, 4, "x"); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("nil input: err = %v, want ErrShapeMismatch", err)
	}
}

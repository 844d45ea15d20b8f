// Package opt provides unit tests for optimizers.
package opt

import (
	"math"
	"testing"
)

// TestSGDStep tests SGD step computation.
func TestSGDStep(t *testing.T) {
	sgd := NewSGD(0.1)

	params := [][]float64{{1.0, 2.0}, {3.0}}
	gradients := [][]float64{{0.1, 0.2}, {0.3}}

	sgd.Step(params, gradients)

	expected := [][]float64{{0.99, 1.98}, {2.97}}
	for g := range params {
		for i := range params[g] {
			if math.Abs(params[g][i]-expected[g][i]) > 1e-10 {
				t.Errorf("params[%d][%d] = %v, want %v", g, i, params[g][i], expected[g][i])
			}
		}
	}
}

// TestAdamFirstStep tests that the first bias-corrected step moves each
// parameter by about lr against the gradient sign.
func TestAdamFirstStep(t *testing.T) {
	adam := NewAdam(0.01)

	params := [][]float64{{1.0, -1.0, 0.5}}
	gradients := [][]float64{{0.3, -2.0, 0.0}}

	adam.Step(params, gradients)

	expected := []float64{0.99, -0.99, 0.5}
	for i := range params[0] {
		if math.Abs(params[0][i]-expected[i]) > 1e-6 {
			t.Errorf("params[%d] = %v, want %v", i, params[0][i], expected[i])
		}
	}
	if adam.Steps() != 1 {
		t.Errorf("Steps() = %d, want 1", adam.Steps())
	}
}

// TestAdamConvergence tests minimizing a quadratic.
func TestAdamConvergence(t *testing.T) {
	adam := NewAdam(0.1)
	x := [][]float64{{5.0, -3.0}}

	for i := 0; i < 500; i++ {
		// f(x) = sum((x - 1)^2)
		grad := [][]float64{{2 * (x[0][0] - 1), 2 * (x[0][1] - 1)}}
		adam.Step(x, grad)
	}

	for i, v := range x[0] {
		if math.Abs(v-1) > 1e-2 {
			t.Errorf("x[%d] = %v, want ~1", i, v)
		}
	}
}

// TestAdamGroupChangePanics tests state consistency checking.
func TestAdamGroupChangePanics(t *testing.T) {
	adam := NewAdam(0.1)
	adam.Step([][]float64{{1}}, [][]float64{{1}})

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic when parameter groups change")
		}
	}()
	adam.Step([][]float64{{1}, {2}}, [][]float64{{1}, {1}})
}

// TestSchedulers tests learning rate schedules.
func TestSchedulers(t *testing.T) {
	sgd := NewSGD(1.0)
	step := NewStepLR(sgd, 2, 0.5)
	for i := 0; i < 4; i++ {
		step.Step(0)
	}
	if math.Abs(step.LearningRate()-0.25) > 1e-12 {
		t.Errorf("StepLR lr = %v, want 0.25", step.LearningRate())
	}

	adam := NewAdam(1.0)
	exp := NewExponentialLR(adam, 0.9)
	exp.Step(0)
	exp.Step(0)
	if math.Abs(adam.LearningRate()-0.81) > 1e-12 {
		t.Errorf("ExponentialLR lr = %v, want 0.81", adam.LearningRate())
	}

	sgd = NewSGD(1.0)
	plateau := NewReduceLROnPlateau(sgd, 0.1, 2, 0, 0.05)
	for _, l := range []float64{1, 1, 1} {
		plateau.Step(l)
	}
	if math.Abs(sgd.LearningRate()-0.1) > 1e-12 {
		t.Errorf("ReduceLROnPlateau lr = %v, want 0.1", sgd.LearningRate())
	}
	for _, l := range []float64{1, 1, 1, 1} {
		plateau.Step(l)
	}
	if sgd.LearningRate() != 0.05 {
		t.Errorf("ReduceLROnPlateau lr = %v, want floor 0.05", sgd.LearningRate())
	}
}

// TestPlateau tests improvement tracking with a threshold.
func TestPlateau(t *testing.T) {
	p := Plateau{Patience: 2, Threshold: 0.1}
	if !math.IsInf(p.Best(), 1) {
		t.Errorf("Best before any loss = %v", p.Best())
	}

	steps := []struct {
		loss    float64
		plateau bool
	}{
		{1.0, false},
		{0.95, false}, // within threshold: bad 1
		{0.5, false},  // improvement resets
		{0.45, false},
		{0.48, true},
		{0.49, false}, // count restarted
	}
	for i, s := range steps {
		if got := p.Observe(s.loss); got != s.plateau {
			t.Errorf("step %d: Observe(%v) = %v, want %v", i, s.loss, got, s.plateau)
		}
	}
	if p.Best() != 0.5 {
		t.Errorf("Best = %v, want 0.5", p.Best())
	}
}

// Package opt provides optimization algorithms.
package opt

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Optimizer updates parameter groups in place from their gradients.
// params[i] and gradients[i] must have the same length, and callers must
// pass groups in the same order on every call.
type Optimizer interface {
	Step(params, gradients [][]float64)
	LearningRate() float64
	SetLearningRate(lr float64)
}

// SGD (Stochastic Gradient Descent) optimizer.
type SGD struct {
	LR float64
}

// NewSGD creates a plain gradient descent optimizer.
func NewSGD(lr float64) *SGD {
	return &SGD{LR: lr}
}

// Step updates params in-place: params = params - lr * gradients
func (s *SGD) Step(params, gradients [][]float64) {
	for i := range params {
		floats.AddScaled(params[i], -s.LR, gradients[i])
	}
}

func (s *SGD) LearningRate() float64      { return s.LR }
func (s *SGD) SetLearningRate(lr float64) { s.LR = lr }

// Adam optimizer with per-parameter first and second moment estimates.
type Adam struct {
	LR      float64
	Beta1   float64 // Exponential decay rate for first moment
	Beta2   float64 // Exponential decay rate for second moment
	Epsilon float64 // Small constant for numerical stability

	t int
	m [][]float64
	v [][]float64
}

// NewAdam creates a new Adam optimizer with Keras default values.
func NewAdam(learningRate float64) *Adam {
	return &Adam{
		LR:      learningRate,
		Beta1:   0.9,
		Beta2:   0.999,
		Epsilon: 1e-7,
	}
}

// Step applies one bias-corrected Adam update.
func (a *Adam) Step(params, gradients [][]float64) {
	if a.m == nil {
		a.m = make([][]float64, len(params))
		a.v = make([][]float64, len(params))
		for i := range params {
			a.m[i] = make([]float64, len(params[i]))
			a.v[i] = make([]float64, len(params[i]))
		}
	}
	if len(a.m) != len(params) {
		panic("Adam.Step: parameter groups changed between steps")
	}

	a.t++
	bc1 := 1 - math.Pow(a.Beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.Beta2, float64(a.t))

	for i, p := range params {
		g := gradients[i]
		m, v := a.m[i], a.v[i]
		for j := range p {
			m[j] = a.Beta1*m[j] + (1-a.Beta1)*g[j]
			v[j] = a.Beta2*v[j] + (1-a.Beta2)*g[j]*g[j]
			mHat := m[j] / bc1
			vHat := v[j] / bc2
			p[j] -= a.LR * mHat / (math.Sqrt(vHat) + a.Epsilon)
		}
	}
}

func (a *Adam) LearningRate() float64      { return a.LR }
func (a *Adam) SetLearningRate(lr float64) { a.LR = lr }

// Steps returns the number of updates applied so far.
func (a *Adam) Steps() int { return a.t }

// Package activations provides activation functions used by dense layers.
package activations

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Activation is an element-wise activation function with derivative.
type Activation interface {
	// Activate computes f(x)
	Activate(x float64) float64

	// Derivative computes f'(x) given the pre-activation x
	Derivative(x float64) float64
}

// RowActivation is an activation that normalizes a whole row at once,
// such as softmax. Layers check for it before falling back to Activate.
type RowActivation interface {
	Activation

	// ActivateRow overwrites row with f(row).
	ActivateRow(row []float64)

	// BackwardRow turns dL/dy into dL/dz in place, given the activated row y.
	BackwardRow(y, grad []float64)
}

// ReLU is the expert default: max(0, x).
type ReLU struct{}

func (ReLU) Activate(x float64) float64 {
	return math.Max(x, 0)
}

// Derivative at exactly zero is taken as 0.
func (ReLU) Derivative(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return 1
}

// Sigmoid is the logistic function.
type Sigmoid struct{}

func logistic(x float64) float64 {
	if x < 0 {
		e := math.Exp(x)
		return e / (1 + e)
	}
	return 1 / (1 + math.Exp(-x))
}

func (Sigmoid) Activate(x float64) float64 { return logistic(x) }

func (Sigmoid) Derivative(x float64) float64 {
	y := logistic(x)
	return y * (1 - y)
}

// LeakyReLU passes negative inputs scaled by Alpha.
type LeakyReLU struct {
	Alpha float64
}

func NewLeakyReLU(alpha float64) *LeakyReLU {
	return &LeakyReLU{Alpha: alpha}
}

func (l *LeakyReLU) Activate(x float64) float64 {
	if x <= 0 {
		return l.Alpha * x
	}
	return x
}

func (l *LeakyReLU) Derivative(x float64) float64 {
	if x <= 0 {
		return l.Alpha
	}
	return 1
}

// Tanh is the hyperbolic tangent.
type Tanh struct{}

func (Tanh) Activate(x float64) float64 { return math.Tanh(x) }

func (Tanh) Derivative(x float64) float64 {
	y := math.Tanh(x)
	return 1 - y*y
}

// Linear is the identity activation.
type Linear struct{}

func (Linear) Activate(x float64) float64   { return x }
func (Linear) Derivative(x float64) float64 { return 1 }

// Softmax normalizes a row into a probability distribution. It is used by
// gates and tower outputs and only works through RowActivation.
type Softmax struct{}

func (Softmax) Activate(float64) float64 {
	panic("activations: Softmax is row-wise, call ActivateRow")
}

func (Softmax) Derivative(float64) float64 {
	panic("activations: Softmax is row-wise, call BackwardRow")
}

// ActivateRow computes exp(x) / sum(exp(x)) in place.
func (Softmax) ActivateRow(x []float64) {
	floats.AddConst(-floats.Max(x), x)
	for i, v := range x {
		x[i] = math.Exp(v)
	}
	floats.Scale(1/floats.Sum(x), x)
}

// BackwardRow computes dz_i = y_i * (g_i - sum_j y_j g_j) in place.
func (Softmax) BackwardRow(y, grad []float64) {
	dot := floats.Dot(y, grad)
	for i := range grad {
		grad[i] = y[i] * (grad[i] - dot)
	}
}

// Name returns the identifier used when persisting an activation.
func Name(act Activation) string {
	switch a := act.(type) {
	case ReLU:
		return "ReLU"
	case Sigmoid:
		return "Sigmoid"
	case Tanh:
		return "Tanh"
	case Linear:
		return "Linear"
	case Softmax:
		return "Softmax"
	case *LeakyReLU:
		return fmt.Sprintf("LeakyReLU:%g", a.Alpha)
	default:
		return ""
	}
}

// ByName is the inverse of Name.
func ByName(name string) (Activation, error) {
	switch name {
	case "ReLU":
		return ReLU{}, nil
	case "Sigmoid":
		return Sigmoid{}, nil
	case "Tanh":
		return Tanh{}, nil
	case "Linear":
		return Linear{}, nil
	case "Softmax":
		return Softmax{}, nil
	}
	var alpha float64
	if _, err := fmt.Sscanf(name, "LeakyReLU:%g", &alpha); err == nil {
		return NewLeakyReLU(alpha), nil
	}
	return nil, fmt.Errorf("unknown activation %q", name)
}

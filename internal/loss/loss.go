// Package loss provides loss functions and the multi-task loss aggregator.
package loss

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Loss scores one prediction row against its label row.
type Loss interface {
	Forward(yPred, yTrue []float64) float64

	// Backward returns dLoss/dyPred in a new slice.
	Backward(yPred, yTrue []float64) []float64
}

// epsilon clips probabilities away from 0 and 1, as Keras does.
const epsilon = 1e-7

func clip(p float64) float64 {
	return math.Min(math.Max(p, epsilon), 1-epsilon)
}

// checkLen panics on mismatched rows. Callers validate label widths first,
// so a mismatch here is a programming error.
func checkLen(name string, yPred, yTrue []float64) int {
	if len(yPred) != len(yTrue) {
		panic(fmt.Sprintf("loss: %s got %d predictions for %d targets", name, len(yPred), len(yTrue)))
	}
	return len(yPred)
}

// MSE is the mean squared error over the row.
type MSE struct{}

func (MSE) Forward(yPred, yTrue []float64) float64 {
	n := checkLen("MSE", yPred, yTrue)
	d := floats.Distance(yPred, yTrue, 2)
	return d * d / float64(n)
}

func (MSE) Backward(yPred, yTrue []float64) []float64 {
	n := checkLen("MSE", yPred, yTrue)
	grad := make([]float64, n)
	floats.SubTo(grad, yPred, yTrue)
	floats.Scale(2/float64(n), grad)
	return grad
}

// CrossEntropy is categorical cross entropy, -sum(y log p), over a
// probability row.
type CrossEntropy struct{}

func (CrossEntropy) Forward(yPred, yTrue []float64) float64 {
	checkLen("CrossEntropy", yPred, yTrue)
	var ce float64
	for i, y := range yTrue {
		if y != 0 {
			ce -= y * math.Log(clip(yPred[i]))
		}
	}
	return ce
}

func (CrossEntropy) Backward(yPred, yTrue []float64) []float64 {
	grad := make([]float64, checkLen("CrossEntropy", yPred, yTrue))
	for i, y := range yTrue {
		grad[i] = -y / clip(yPred[i])
	}
	return grad
}

// BCELoss is Keras binary_crossentropy: the element-wise binary cross
// entropy averaged over the columns of the row. Probabilities are clipped
// to [1e-7, 1-1e-7].
type BCELoss struct{}

func (BCELoss) Forward(yPred, yTrue []float64) float64 {
	n := checkLen("BCE", yPred, yTrue)
	var ll float64
	for i, y := range yTrue {
		p := clip(yPred[i])
		ll += y*math.Log(p) + (1-y)*math.Log(1-p)
	}
	return -ll / float64(n)
}

func (BCELoss) Backward(yPred, yTrue []float64) []float64 {
	n := checkLen("BCE", yPred, yTrue)
	grad := make([]float64, n)
	for i, y := range yTrue {
		p := clip(yPred[i])
		grad[i] = (p - y) / (p * (1 - p) * float64(n))
	}
	return grad
}

// Batch returns the mean loss over the rows of yPred and the gradient of
// that mean with respect to yPred.
func Batch(l Loss, yPred, yTrue *mat.Dense) (float64, *mat.Dense) {
	r, c := yPred.Dims()
	grad := mat.NewDense(r, c, nil)

	var total float64
	for i := 0; i < r; i++ {
		p, y := yPred.RawRowView(i), yTrue.RawRowView(i)
		total += l.Forward(p, y)
		g := grad.RawRowView(i)
		copy(g, l.Backward(p, y))
		floats.Scale(1/float64(r), g)
	}
	return total / float64(r), grad
}

// Mean returns the mean loss over the rows of yPred.
func Mean(l Loss, yPred, yTrue *mat.Dense) float64 {
	r, _ := yPred.Dims()
	var total float64
	for i := 0; i < r; i++ {
		total += l.Forward(yPred.RawRowView(i), yTrue.RawRowView(i))
	}
	return total / float64(r)
}

// Name returns the identifier used when persisting a loss.
func Name(l Loss) string {
	switch l.(type) {
	case MSE:
		return "MSE"
	case CrossEntropy:
		return "CrossEntropy"
	case BCELoss:
		return "BCE"
	default:
		return ""
	}
}

// ByName is the inverse of Name.
func ByName(name string) (Loss, error) {
	switch name {
	case "MSE":
		return MSE{}, nil
	case "CrossEntropy":
		return CrossEntropy{}, nil
	case "BCE":
		return BCELoss{}, nil
	default:
		return nil, fmt.Errorf("unknown loss %q", name)
	}
}

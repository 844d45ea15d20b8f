package net

import (
	"github.com/FlavioCFOliveira/census-mmoe/internal/activations"
	"github.com/FlavioCFOliveira/census-mmoe/internal/layer"
	"gonum.org/v1/gonum/mat"
)

// Tower is a task head: ReLU hidden layers followed by a softmax output
// layer of the task's output cardinality.
type Tower struct {
	layers []*layer.Dense
}

// NewTower creates a tower reading an embedding of width in.
func NewTower(in int, hidden []int, outputs int, init layer.Initializer) *Tower {
	layers := make([]*layer.Dense, 0, len(hidden)+1)
	width := in
	for _, h := range hidden {
		layers = append(layers, layer.NewDense(width, h, activations.ReLU{}, init))
		width = h
	}
	layers = append(layers, layer.NewDense(width, outputs, activations.Softmax{}, init))
	return &Tower{layers: layers}
}

// Forward runs the tower, caching state for Backward.
func (t *Tower) Forward(x *mat.Dense) *mat.Dense {
	curr := x
	for _, l := range t.layers {
		curr = l.Forward(curr)
	}
	return curr
}

// Apply runs the tower without caching.
func (t *Tower) Apply(x mat.Matrix) *mat.Dense {
	var curr mat.Matrix = x
	var out *mat.Dense
	for _, l := range t.layers {
		out = l.Apply(curr)
		curr = out
	}
	return out
}

// Backward takes dL/dPrediction and returns dL/dEmbedding.
func (t *Tower) Backward(grad *mat.Dense) *mat.Dense {
	curr := grad
	for i := len(t.layers) - 1; i >= 0; i-- {
		curr = t.layers[i].Backward(curr)
	}
	return curr
}

// Outputs returns the task's output cardinality.
func (t *Tower) Outputs() int {
	return t.layers[len(t.layers)-1].OutSize()
}

// Layers returns the tower's layers, input side first.
func (t *Tower) Layers() []*layer.Dense {
	return t.layers
}

func (t *Tower) Params() [][]float64 {
	var p [][]float64
	for _, l := range t.layers {
		p = append(p, l.Params()...)
	}
	return p
}

func (t *Tower) Gradients() [][]float64 {
	var g [][]float64
	for _, l := range t.layers {
		g = append(g, l.Gradients()...)
	}
	return g
}

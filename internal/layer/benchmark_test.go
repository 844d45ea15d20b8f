// Package layer provides benchmarks for the dense and MMoE layers.
package layer

import (
	"testing"

	"github.com/FlavioCFOliveira/census-mmoe/internal/activations"
)

// BenchmarkDenseForward benchmarks the forward pass of a dense layer.
func BenchmarkDenseForward(b *testing.B) {
	layer := NewDense(499, 64, activations.ReLU{}, nil)
	input := randomBatch(32, 499, 1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		layer.Forward(input)
	}
}

// BenchmarkDenseBackward benchmarks the backward pass of a dense layer.
func BenchmarkDenseBackward(b *testing.B) {
	layer := NewDense(499, 64, activations.ReLU{}, nil)
	input := randomBatch(32, 499, 1)
	grad := randomBatch(32, 64, 2)

	// Forward pass to set up state
	layer.Forward(input)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		layer.Backward(grad)
	}
}

// BenchmarkMMoEApply benchmarks the census-sized MMoE layer.
func BenchmarkMMoEApply(b *testing.B) {
	m := NewMMoE(499, 4, 8, 2, activations.ReLU{}, nil)
	input := randomBatch(32, 499, 3)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Apply(input); err != nil {
			b.Fatal(err)
		}
	}
}

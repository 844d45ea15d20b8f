// Package main runs a saved census MMoE model on held-out records and shows
// how each task's gate distributes weight over the shared experts.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/FlavioCFOliveira/census-mmoe/internal/census"
	"github.com/FlavioCFOliveira/census-mmoe/internal/net"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func main() {
	var (
		modelPath = flag.String("model", "mmoe.gob", "model saved by cmd/census -save")
		trainPath = flag.String("train-data", "data/census-income.data.gz", "records the model was trained on")
		otherPath = flag.String("test-data", "data/census-income.test.gz", "records to predict")
		nrows     = flag.Int("nrows", 0, "records to read from each file (0 reads all)")
		seed      = flag.Int64("seed", 1, "seed of the validation/test split")
		normalize = flag.Bool("normalize", true, "min-max scale features (defaults to the setting saved with the model)")
		samples   = flag.Int("n", 10, "test records to show")
	)
	flag.Parse()
	log.SetFlags(0)

	model, err := net.Load(*modelPath)
	if err != nil {
		log.Fatalf("Error loading model: %v", err)
	}

	normalized := model.Config().Normalized
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "normalize" {
			normalized = *normalize
		}
	})
	if normalized != model.Config().Normalized {
		log.Printf("Warning: model was trained with -normalize=%v, predicting with %v", model.Config().Normalized, normalized)
	}

	// The encoder must see the same training records to rebuild the feature layout
	data, err := census.Load(census.Config{
		TrainPath: *trainPath,
		OtherPath: *otherPath,
		Rows:      *nrows,
		Seed:      *seed,
		Normalize: normalized,
	})
	if err != nil {
		log.Fatalf("Error loading census data: %v", err)
	}

	n := min(*samples, data.Test.Rows())
	if n == 0 {
		log.Fatal("No test records")
	}
	batch := data.Test.Batch(0, n)

	preds, err := model.Predict(batch.X)
	if err != nil {
		log.Fatalf("Prediction failed: %v", err)
	}
	gates, err := model.GateWeights(batch.X)
	if err != nil {
		log.Fatalf("Gate inspection failed: %v", err)
	}

	tasks := model.TaskNames()
	labels := make([]*mat.Dense, len(tasks))
	for t, name := range tasks {
		y, ok := batch.Label(name)
		if !ok {
			log.Fatalf("No labels for task %s in the test data", name)
		}
		labels[t] = y
	}
	fmt.Println("=============================================================")
	fmt.Printf("  Census MMoE inference: %d records, tasks %s\n", n, strings.Join(tasks, ", "))
	fmt.Println("=============================================================")
	for i := 0; i < n; i++ {
		fmt.Printf("Record %d:", i)
		for t, name := range tasks {
			fmt.Printf("  %s P(positive)=%.4f actual=%.0f", name, preds[t].At(i, 1), labels[t].At(i, 1))
		}
		fmt.Println()
	}

	fmt.Println("\nMean gate weight per expert:")
	for t, name := range tasks {
		fmt.Printf("  %-8s %s\n", name, formatRow(meanRows(gates[t])))
	}
}

func meanRows(m *mat.Dense) []float64 {
	r, c := m.Dims()
	mean := make([]float64, c)
	for i := 0; i < r; i++ {
		floats.Add(mean, m.RawRowView(i))
	}
	floats.Scale(1/float64(r), mean)
	return mean
}

func formatRow(v []float64) string {
	parts := make([]string, len(v))
	for i, w := range v {
		parts[i] = fmt.Sprintf("%.3f", w)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Package metrics computes per-task ranking metrics and keeps their history.
package metrics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// ErrUndefinedMetric is returned when a metric has no meaning for the
// given labels, such as ROC-AUC over a single class.
var ErrUndefinedMetric = errors.New("undefined metric")

// ROCAUC returns the area under the ROC curve of scores against binary labels.
// Tied scores share a single cutoff.
func ROCAUC(scores []float64, labels []bool) (float64, error) {
	if len(scores) != len(labels) {
		return 0, fmt.Errorf("roc-auc: %d scores for %d labels", len(scores), len(labels))
	}

	var pos int
	for _, l := range labels {
		if l {
			pos++
		}
	}
	if pos == 0 || pos == len(labels) {
		return 0, fmt.Errorf("%w: roc-auc needs both classes, got %d positive of %d", ErrUndefinedMetric, pos, len(labels))
	}

	y := make([]float64, len(scores))
	copy(y, scores)
	for _, v := range y {
		if math.IsNaN(v) {
			return 0, fmt.Errorf("%w: roc-auc over NaN scores", ErrUndefinedMetric)
		}
	}

	idx := make([]int, len(y))
	floats.Argsort(y, idx)
	classes := make([]bool, len(y))
	for i, j := range idx {
		classes[i] = labels[j]
	}

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}

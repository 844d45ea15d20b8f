package metrics

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/FlavioCFOliveira/census-mmoe/internal/layer"
	"github.com/FlavioCFOliveira/census-mmoe/internal/net"
	"gonum.org/v1/gonum/mat"
)

// Predictor is the part of a model the reporter needs.
type Predictor interface {
	Predict(x mat.Matrix) ([]*mat.Dense, error)
	TaskNames() []string
}

// TaskError is a metric failure isolated to one task on one split.
type TaskError struct {
	Task  string
	Split string
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s/%s: %v", e.Task, e.Split, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Split is a named dataset evaluated by the reporter.
type Split struct {
	Name string
	Data net.Dataset
}

// Reporter computes ROC-AUC for every task on every split.
type Reporter struct {
	Splits []Split
	// Out receives one line per task per report. Nil discards.
	Out io.Writer
	// Log receives every successful record. Nil keeps none.
	Log *Log
	// PositiveClass is the label column treated as the positive class.
	PositiveClass int
	// Logger reports metric failures from OnEpochEnd. Nil uses the default logger.
	Logger *log.Logger
}

// NewReporter returns a reporter over the train, validation and test splits,
// with column 1 of every one-hot label as the positive class.
func NewReporter(out io.Writer, train, validation, test net.Dataset) *Reporter {
	return &Reporter{
		Splits: []Split{
			{Name: Train, Data: train},
			{Name: Validation, Data: validation},
			{Name: Test, Data: test},
		},
		Out:           out,
		Log:           &Log{},
		PositiveClass: 1,
	}
}

// Report evaluates p on every split. It returns the records it could compute
// and a joined error of *TaskError values for the cells it could not; a
// failing cell never prevents the others from being computed.
func (r *Reporter) Report(epoch int, p Predictor) ([]Record, error) {
	tasks := p.TaskNames()

	values := make([][]string, len(tasks))
	var recs []Record
	var errs []error

	for _, s := range r.Splits {
		var preds []*mat.Dense
		err := s.Data.Validate()
		if err == nil {
			preds, err = p.Predict(s.Data.X)
		}

		for ti, task := range tasks {
			auc := err
			var v float64
			if err == nil {
				if labels, ok := s.Data.Label(task); ok {
					v, auc = r.score(preds[ti], labels)
				} else {
					auc = fmt.Errorf("%w: no labels for task %s", layer.ErrShapeMismatch, task)
				}
			}
			if auc != nil {
				errs = append(errs, &TaskError{Task: task, Split: s.Name, Err: auc})
				values[ti] = append(values[ti], fmt.Sprintf("ROC-AUC-%s-%s: undefined", task, s.Name))
				continue
			}
			rec := Record{Epoch: epoch, Task: task, Split: s.Name, AUC: v}
			recs = append(recs, rec)
			values[ti] = append(values[ti], fmt.Sprintf("ROC-AUC-%s-%s: %.4f", task, s.Name, v))
		}
	}

	if r.Out != nil {
		for _, line := range values {
			fmt.Fprintln(r.Out, strings.Join(line, " "))
		}
	}
	if r.Log != nil {
		r.Log.Append(recs...)
	}
	return recs, errors.Join(errs...)
}

func (r *Reporter) score(pred, labels *mat.Dense) (float64, error) {
	rows, cols := pred.Dims()
	if r.PositiveClass < 0 || r.PositiveClass >= cols {
		return 0, fmt.Errorf("%w: positive class %d of %d outputs", layer.ErrShapeMismatch, r.PositiveClass, cols)
	}
	if err := layer.CheckWidth(labels, cols, "labels"); err != nil {
		return 0, err
	}
	if lr, _ := labels.Dims(); lr != rows {
		return 0, fmt.Errorf("%w: %d labels for %d predictions", layer.ErrShapeMismatch, lr, rows)
	}

	scores := make([]float64, rows)
	mat.Col(scores, r.PositiveClass, pred)
	truth := make([]bool, rows)
	for i := range truth {
		truth[i] = labels.At(i, r.PositiveClass) > 0.5
	}
	return ROCAUC(scores, truth)
}

// OnEpochEnd reports metrics after a training epoch. Metric failures are
// logged and never stop training.
func (r *Reporter) OnEpochEnd(epoch int, m *net.Model, _ net.Losses) error {
	if _, err := r.Report(epoch, m); err != nil {
		lg := r.Logger
		if lg == nil {
			lg = log.Default()
		}
		lg.Printf("epoch %d metrics: %v", epoch, err)
	}
	return nil
}

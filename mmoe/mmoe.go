// Package mmoe re-exports the census multi-gate mixture-of-experts model,
// its evaluation harness and the census data pipeline.
package mmoe

import (
	"os"

	"github.com/FlavioCFOliveira/census-mmoe/internal/activations"
	"github.com/FlavioCFOliveira/census-mmoe/internal/bench"
	"github.com/FlavioCFOliveira/census-mmoe/internal/census"
	"github.com/FlavioCFOliveira/census-mmoe/internal/layer"
	"github.com/FlavioCFOliveira/census-mmoe/internal/loss"
	"github.com/FlavioCFOliveira/census-mmoe/internal/metrics"
	"github.com/FlavioCFOliveira/census-mmoe/internal/net"
	"github.com/FlavioCFOliveira/census-mmoe/internal/opt"
)

// Re-export common types for easier access
type (
	Model      = net.Model
	Config     = net.Config
	TaskSpec   = net.TaskSpec
	Dataset    = net.Dataset
	Losses     = net.Losses
	EpochHook  = net.EpochHook
	Optimizer  = opt.Optimizer
	Loss       = loss.Loss
	Activation = activations.Activation
	Harness    = bench.Harness
	Result     = bench.Result
	Reporter   = metrics.Reporter
	Record     = metrics.Record
	CensusData = census.Data
)

// Errors
var (
	ErrShapeMismatch       = layer.ErrShapeMismatch
	ErrInvalidConfig       = net.ErrInvalidConfig
	ErrStopTraining        = net.ErrStopTraining
	ErrUndefinedMetric     = metrics.ErrUndefinedMetric
	ErrDegenerateAggregate = bench.ErrDegenerateAggregate
	ErrSchema              = census.ErrSchema
)

// Build creates a ready-to-train model.
func Build(cfg Config) (*Model, error) {
	return net.Build(cfg)
}

// Activations
var (
	ReLU    = activations.ReLU{}
	Sigmoid = activations.Sigmoid{}
	Tanh    = activations.Tanh{}
	Linear  = activations.Linear{}
)

func LeakyReLU(alpha float64) Activation {
	return activations.NewLeakyReLU(alpha)
}

// Losses
var (
	MSE          = loss.MSE{}
	CrossEntropy = loss.CrossEntropy{}
	BCELoss      = loss.BCELoss{}
)

// Optimizers
func Adam(lr float64) Optimizer {
	return opt.NewAdam(lr)
}

func SGD(lr float64) Optimizer {
	return opt.NewSGD(lr)
}

func ReduceLROnPlateau(optimizer Optimizer, factor float64, patience int, threshold, minLR float64) *opt.ReduceLROnPlateau {
	return opt.NewReduceLROnPlateau(optimizer, factor, patience, threshold, minLR)
}

// Hooks
func Logger(interval int) net.Logger {
	return net.Logger{Interval: interval}
}

func ModelCheckpoint(filename string) EpochHook {
	return net.NewModelCheckpoint(filename)
}

func EarlyStopping(patience int, threshold float64) *net.EarlyStopping {
	return net.NewEarlyStopping(patience, threshold)
}

func SchedulerHook(scheduler opt.Scheduler) EpochHook {
	return net.SchedulerHook{Scheduler: scheduler}
}

// NewReporter reports ROC-AUC on the three census splits after every epoch.
func NewReporter(data *CensusData) *Reporter {
	return metrics.NewReporter(os.Stdout, data.Train, data.Validation, data.Test)
}

// LoadCensus reads and prepares the census files.
func LoadCensus(trainPath, otherPath string, rows int, seed int64) (*CensusData, error) {
	return census.Load(census.Config{
		TrainPath: trainPath,
		OtherPath: otherPath,
		Rows:      rows,
		Seed:      seed,
		Normalize: true,
	})
}

// Model persistence
func Load(filename string) (*Model, error) {
	return net.Load(filename)
}

// Package bench times repeated evaluation passes and aggregates latency and
// throughput, excluding warm-up repetitions.
package bench

import (
	"errors"
	"fmt"
	"io"
	"log"
	"runtime/pprof"
	"time"

	"github.com/FlavioCFOliveira/census-mmoe/internal/net"
)

var (
	// ErrInvalidConfig is returned for non-positive sizes or a negative warm-up.
	ErrInvalidConfig = errors.New("invalid harness configuration")
	// ErrDegenerateAggregate is returned when no timed samples remain to aggregate.
	ErrDegenerateAggregate = errors.New("degenerate aggregate")
)

// Evaluator runs steps evaluation batches of batchSize rows.
type Evaluator interface {
	Evaluate(data net.Dataset, batchSize, steps int) (net.Losses, error)
}

// Harness drives timed evaluation repetitions over a held-out set.
type Harness struct {
	BatchSize int
	// Epochs is the number of repetitions.
	Epochs int
	// Warmup repetitions, counted from 1, are excluded from the aggregate.
	Warmup int
	// NumIter caps the evaluation steps of one repetition.
	NumIter int

	// Now defaults to time.Now.
	Now func() time.Time
	// Logger receives one line per repetition. Nil disables logging.
	Logger *log.Logger
	// Profile, if set, receives a CPU profile of the middle repetition.
	Profile io.Writer
}

// Result is the aggregate of the included repetitions.
type Result struct {
	// Latency in milliseconds per sample.
	Latency float64
	// Throughput in samples per second.
	Throughput float64
	// Iterations is the number of evaluation steps of every repetition.
	Iterations int
	// Repetitions is the number of repetitions included in the aggregate.
	Repetitions int
	Samples     int
	// Durations holds the time of every repetition, warm-up included.
	Durations []time.Duration
	// Losses of the last repetition.
	Losses net.Losses
}

func (h *Harness) validate() error {
	switch {
	case h.BatchSize <= 0:
		return fmt.Errorf("%w: batch size %d", ErrInvalidConfig, h.BatchSize)
	case h.Epochs <= 0:
		return fmt.Errorf("%w: %d epochs", ErrInvalidConfig, h.Epochs)
	case h.NumIter <= 0:
		return fmt.Errorf("%w: iteration cap %d", ErrInvalidConfig, h.NumIter)
	case h.Warmup < 0:
		return fmt.Errorf("%w: warm-up %d", ErrInvalidConfig, h.Warmup)
	}
	return nil
}

// Iterations returns the number of evaluation steps for a dataset of rows examples.
func (h *Harness) Iterations(rows int) int {
	return min(h.NumIter, rows/h.BatchSize)
}

// Run evaluates data Epochs times, strictly one repetition after another.
func (h *Harness) Run(e Evaluator, data net.Dataset) (Result, error) {
	if err := h.validate(); err != nil {
		return Result{}, err
	}
	if err := data.Validate(); err != nil {
		return Result{}, err
	}
	if h.Warmup >= h.Epochs {
		return Result{}, fmt.Errorf("%w: warm-up %d leaves none of %d repetitions", ErrDegenerateAggregate, h.Warmup, h.Epochs)
	}

	iters := h.Iterations(data.Rows())
	if iters == 0 {
		return Result{}, fmt.Errorf("%w: %d examples cannot fill a batch of %d", ErrDegenerateAggregate, data.Rows(), h.BatchSize)
	}

	now := h.Now
	if now == nil {
		now = time.Now
	}

	res := Result{Iterations: iters, Durations: make([]time.Duration, 0, h.Epochs)}
	var total time.Duration
	for i := 0; i < h.Epochs; i++ {
		profiling := h.Profile != nil && i == h.Epochs/2
		if profiling {
			if err := pprof.StartCPUProfile(h.Profile); err != nil {
				return Result{}, fmt.Errorf("start profile: %w", err)
			}
		}

		start := now()
		l, err := e.Evaluate(data, h.BatchSize, iters)
		elapsed := now().Sub(start)

		if profiling {
			pprof.StopCPUProfile()
		}
		if err != nil {
			return Result{}, fmt.Errorf("repetition %d: %w", i, err)
		}

		res.Durations = append(res.Durations, elapsed)
		res.Losses = l
		if h.Logger != nil {
			h.Logger.Printf("Iteration: %d, inference time: %v", i, elapsed)
		}

		if i+1 > h.Warmup {
			total += elapsed
			res.Samples += iters * h.BatchSize
			res.Repetitions++
		}
	}

	if total <= 0 {
		return Result{}, fmt.Errorf("%w: included repetitions took no measurable time", ErrDegenerateAggregate)
	}
	seconds := total.Seconds()
	res.Latency = seconds / float64(res.Samples) * 1000
	res.Throughput = float64(res.Samples) / seconds
	return res, nil
}

func (r Result) String() string {
	return fmt.Sprintf("### Latency:: %.2f ms\n### Throughput: %.3f samples/s", r.Latency, r.Throughput)
}

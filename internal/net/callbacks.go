package net

import (
	"errors"
	"log"
	"math"

	"github.com/FlavioCFOliveira/census-mmoe/internal/opt"
)

// ErrStopTraining may be returned by an EpochHook to end Fit early.
var ErrStopTraining = errors.New("stop training")

// EpochHook runs after every training epoch.
type EpochHook interface {
	OnEpochEnd(epoch int, m *Model, l Losses) error
}

// EpochHookFunc adapts a function to EpochHook.
type EpochHookFunc func(epoch int, m *Model, l Losses) error

func (f EpochHookFunc) OnEpochEnd(epoch int, m *Model, l Losses) error {
	return f(epoch, m, l)
}

// Logger logs training progress every Interval epochs.
type Logger struct {
	Log      *log.Logger
	Interval int
}

func (c Logger) OnEpochEnd(epoch int, m *Model, l Losses) error {
	if c.Interval > 0 && epoch%c.Interval == 0 {
		lg := c.Log
		if lg == nil {
			lg = log.Default()
		}
		lg.Printf("Epoch %d: %s", epoch, l)
	}
	return nil
}

// SchedulerHook steps a learning rate scheduler with the epoch's total loss.
type SchedulerHook struct {
	Scheduler opt.Scheduler
}

func (c SchedulerHook) OnEpochEnd(epoch int, m *Model, l Losses) error {
	c.Scheduler.Step(l.Total)
	return nil
}

// EarlyStopping stops training when the total loss has not improved by more
// than Threshold for Patience epochs.
type EarlyStopping struct {
	Stopped bool

	plateau opt.Plateau
}

func NewEarlyStopping(patience int, threshold float64) *EarlyStopping {
	return &EarlyStopping{plateau: opt.Plateau{Patience: patience, Threshold: threshold}}
}

// Best is the lowest total loss seen so far.
func (c *EarlyStopping) Best() float64 { return c.plateau.Best() }

func (c *EarlyStopping) OnEpochEnd(_ int, _ *Model, l Losses) error {
	if c.plateau.Observe(l.Total) {
		c.Stopped = true
		return ErrStopTraining
	}
	return nil
}

// ModelCheckpoint saves the model whenever the total loss reaches a new best.
type ModelCheckpoint struct {
	Filename string

	bestLoss float64
}

func NewModelCheckpoint(filename string) *ModelCheckpoint {
	return &ModelCheckpoint{
		Filename: filename,
		bestLoss: math.Inf(1),
	}
}

func (c *ModelCheckpoint) OnEpochEnd(epoch int, m *Model, l Losses) error {
	if l.Total >= c.bestLoss {
		return nil
	}
	c.bestLoss = l.Total
	return m.Save(c.Filename)
}

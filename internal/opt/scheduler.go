package opt

import "math"

// Scheduler adjusts an optimizer's learning rate between epochs.
type Scheduler interface {
	// Step is called once per epoch with that epoch's training loss.
	Step(loss float64)
	LearningRate() float64
}

// StepLR decays the learning rate by gamma every stepSize epochs.
type StepLR struct {
	optimizer Optimizer
	stepSize  int
	gamma     float64
	lastEpoch int
}

func NewStepLR(optimizer Optimizer, stepSize int, gamma float64) *StepLR {
	return &StepLR{optimizer: optimizer, stepSize: stepSize, gamma: gamma}
}

func (s *StepLR) Step(float64) {
	s.lastEpoch++
	if s.stepSize > 0 && s.lastEpoch%s.stepSize == 0 {
		s.optimizer.SetLearningRate(s.optimizer.LearningRate() * s.gamma)
	}
}

func (s *StepLR) LearningRate() float64 { return s.optimizer.LearningRate() }

// ExponentialLR decays the learning rate by gamma every epoch.
type ExponentialLR struct {
	optimizer Optimizer
	gamma     float64
}

func NewExponentialLR(optimizer Optimizer, gamma float64) *ExponentialLR {
	return &ExponentialLR{optimizer: optimizer, gamma: gamma}
}

func (s *ExponentialLR) Step(float64) {
	s.optimizer.SetLearningRate(s.optimizer.LearningRate() * s.gamma)
}

func (s *ExponentialLR) LearningRate() float64 { return s.optimizer.LearningRate() }

// Plateau counts epochs without an improvement larger than Threshold.
// The zero value is ready to use with Patience set.
type Plateau struct {
	Patience  int
	Threshold float64

	best float64
	seen bool
	bad  int
}

// Observe records an epoch loss and reports whether Patience consecutive
// epochs failed to improve on the best loss. The count restarts after
// reporting.
func (p *Plateau) Observe(loss float64) bool {
	if !p.seen || loss < p.best-p.Threshold {
		p.best, p.seen, p.bad = loss, true, 0
		return false
	}
	p.bad++
	if p.bad < p.Patience {
		return false
	}
	p.bad = 0
	return true
}

// Best is the lowest loss observed so far.
func (p *Plateau) Best() float64 {
	if !p.seen {
		return math.Inf(1)
	}
	return p.best
}

// ReduceLROnPlateau multiplies the learning rate by factor, down to minLR,
// each time the loss plateaus for patience epochs.
type ReduceLROnPlateau struct {
	optimizer Optimizer
	factor    float64
	minLR     float64
	plateau   Plateau
}

func NewReduceLROnPlateau(optimizer Optimizer, factor float64, patience int, threshold, minLR float64) *ReduceLROnPlateau {
	return &ReduceLROnPlateau{
		optimizer: optimizer,
		factor:    factor,
		minLR:     minLR,
		plateau:   Plateau{Patience: patience, Threshold: threshold},
	}
}

func (s *ReduceLROnPlateau) Step(loss float64) {
	if s.plateau.Observe(loss) {
		s.optimizer.SetLearningRate(math.Max(s.optimizer.LearningRate()*s.factor, s.minLR))
	}
}

func (s *ReduceLROnPlateau) LearningRate() float64 { return s.optimizer.LearningRate() }

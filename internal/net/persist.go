package net

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"github.com/FlavioCFOliveira/census-mmoe/internal/activations"
	"github.com/FlavioCFOliveira/census-mmoe/internal/layer"
	"github.com/FlavioCFOliveira/census-mmoe/internal/loss"
	"github.com/FlavioCFOliveira/census-mmoe/internal/opt"
)

// snapshot is the gob wire form of a Model.
type snapshot struct {
	InputWidth       int
	NumExperts       int
	Units            int
	Tasks            []TaskSpec
	TowerHidden      []int
	ExpertActivation string
	Loss             string
	LossWeights      map[string]float64
	Optimizer        string
	LearningRate     float64
	Seed             int64
	Normalized       bool
	Params           [][]float64
}

// Save writes the model to a file using gob encoding.
// The optimizer state is not saved; a loaded model starts with fresh moments.
func (m *Model) Save(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := m.Encode(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Encode writes the model configuration and parameters to w.
func (m *Model) Encode(w io.Writer) error {
	optType := "Adam"
	if _, ok := m.opt.(*opt.SGD); ok {
		optType = "SGD"
	}

	s := snapshot{
		InputWidth:       m.cfg.InputWidth,
		NumExperts:       m.cfg.NumExperts,
		Units:            m.cfg.Units,
		Tasks:            m.tasks,
		TowerHidden:      m.cfg.TowerHidden,
		ExpertActivation: activations.Name(m.cfg.ExpertActivation),
		Loss:             loss.Name(m.cfg.Loss),
		LossWeights:      m.cfg.LossWeights,
		Optimizer:        optType,
		LearningRate:     m.opt.LearningRate(),
		Seed:             m.cfg.Seed,
		Normalized:       m.cfg.Normalized,
		Params:           m.Params(),
	}
	if s.ExpertActivation == "" {
		return fmt.Errorf("failed to encode model: unsupported expert activation %T", m.cfg.ExpertActivation)
	}
	if s.Loss == "" {
		return fmt.Errorf("failed to encode model: unsupported loss %T", m.cfg.Loss)
	}

	if err := gob.NewEncoder(w).Encode(s); err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	return nil
}

// Load reads a model from a file written by Save.
func Load(filename string) (*Model, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()
	return Decode(file)
}

// Decode reads a model written by Encode.
func Decode(r io.Reader) (*Model, error) {
	var s snapshot
	if err := gob.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}

	act, err := activations.ByName(s.ExpertActivation)
	if err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	l, err := loss.ByName(s.Loss)
	if err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}

	var optimizer opt.Optimizer
	switch s.Optimizer {
	case "SGD":
		optimizer = opt.NewSGD(s.LearningRate)
	default:
		optimizer = opt.NewAdam(s.LearningRate)
	}

	m, err := Build(Config{
		InputWidth:       s.InputWidth,
		NumExperts:       s.NumExperts,
		Units:            s.Units,
		Tasks:            s.Tasks,
		TowerHidden:      s.TowerHidden,
		ExpertActivation: act,
		Loss:             l,
		LossWeights:      s.LossWeights,
		Optimizer:        optimizer,
		Seed:             s.Seed,
		Normalized:       s.Normalized,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}

	params := m.Params()
	if len(params) != len(s.Params) {
		return nil, fmt.Errorf("%w: %d parameter groups, model has %d", layer.ErrShapeMismatch, len(s.Params), len(params))
	}
	for i, p := range params {
		if len(p) != len(s.Params[i]) {
			return nil, fmt.Errorf("%w: parameter group %d has %d values, want %d", layer.ErrShapeMismatch, i, len(s.Params[i]), len(p))
		}
		copy(p, s.Params[i])
	}
	return m, nil
}

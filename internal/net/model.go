// Package net assembles the multi-gate mixture-of-experts model: the shared
// MMoE layer, one tower per task, the multi-task loss and the optimizer.
package net

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/FlavioCFOliveira/census-mmoe/internal/activations"
	"github.com/FlavioCFOliveira/census-mmoe/internal/layer"
	"github.com/FlavioCFOliveira/census-mmoe/internal/loss"
	"github.com/FlavioCFOliveira/census-mmoe/internal/opt"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// ErrInvalidConfig is returned by Build for unusable configurations.
var ErrInvalidConfig = errors.New("invalid model configuration")

// TaskSpec names a task and its output cardinality.
type TaskSpec struct {
	Name    string
	Outputs int
}

// Config holds every construction parameter of a Model.
type Config struct {
	InputWidth int
	NumExperts int
	// Units is the embedding width of every expert.
	Units int
	// NumTasks must equal len(Tasks) when set.
	NumTasks int
	Tasks    []TaskSpec
	// TowerHidden lists the hidden widths of every tower; at least one.
	// Default: [8].
	TowerHidden []int
	// ExpertActivation defaults to ReLU.
	ExpertActivation activations.Activation
	// Loss is applied to every task. Default: binary cross entropy.
	Loss loss.Loss
	// LossWeights scales task losses by name; missing tasks weigh 1.
	LossWeights map[string]float64
	// Optimizer defaults to Adam with learning rate 0.001.
	Optimizer opt.Optimizer
	// Seed drives weight initialization and shuffling.
	Seed int64
	// Normalized records that the training features were min-max scaled.
	// It is saved with the model so inference can prepare features the same way.
	Normalized bool
}

func (c Config) withDefaults() Config {
	if c.TowerHidden == nil {
		c.TowerHidden = []int{8}
	}
	if c.ExpertActivation == nil {
		c.ExpertActivation = activations.ReLU{}
	}
	if c.Loss == nil {
		c.Loss = loss.BCELoss{}
	}
	if c.Optimizer == nil {
		c.Optimizer = opt.NewAdam(0.001)
	}
	return c
}

func (c Config) validate() error {
	switch {
	case c.InputWidth <= 0:
		return fmt.Errorf("%w: input width %d", ErrInvalidConfig, c.InputWidth)
	case c.NumExperts <= 0:
		return fmt.Errorf("%w: %d experts", ErrInvalidConfig, c.NumExperts)
	case c.Units <= 0:
		return fmt.Errorf("%w: %d units", ErrInvalidConfig, c.Units)
	case len(c.Tasks) == 0:
		return fmt.Errorf("%w: no tasks", ErrInvalidConfig)
	case c.NumTasks != 0 && c.NumTasks != len(c.Tasks):
		return fmt.Errorf("%w: num tasks %d but %d task specs", ErrInvalidConfig, c.NumTasks, len(c.Tasks))
	}

	seen := make(map[string]bool, len(c.Tasks))
	for _, t := range c.Tasks {
		if t.Name == "" {
			return fmt.Errorf("%w: unnamed task", ErrInvalidConfig)
		}
		if seen[t.Name] {
			return fmt.Errorf("%w: duplicate task %q", ErrInvalidConfig, t.Name)
		}
		seen[t.Name] = true
		if t.Outputs <= 0 {
			return fmt.Errorf("%w: task %q has %d outputs", ErrInvalidConfig, t.Name, t.Outputs)
		}
	}
	for name := range c.LossWeights {
		if !seen[name] {
			return fmt.Errorf("%w: loss weight for unknown task %q", ErrInvalidConfig, name)
		}
	}
	if c.TowerHidden != nil && len(c.TowerHidden) == 0 {
		return fmt.Errorf("%w: towers need at least one hidden layer", ErrInvalidConfig)
	}
	for _, h := range c.TowerHidden {
		if h <= 0 {
			return fmt.Errorf("%w: tower hidden width %d", ErrInvalidConfig, h)
		}
	}
	return nil
}

// Model is a multi-task MMoE network. Tasks are ordered by name.
type Model struct {
	cfg    Config
	tasks  []TaskSpec
	mmoe   *layer.MMoE
	towers []*Tower
	loss   *loss.MultiTask
	opt    opt.Optimizer
	rng    *rand.Rand
}

// Build validates cfg and creates a ready-to-train model.
func Build(cfg Config) (*Model, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	tasks := append([]TaskSpec(nil), cfg.Tasks...)
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
	cfg.Tasks = tasks
	cfg.NumTasks = len(tasks)

	init := layer.NewVarianceScaling(layer.NewSource(cfg.Seed))
	mmoe := layer.NewMMoE(cfg.InputWidth, cfg.Units, cfg.NumExperts, len(tasks), cfg.ExpertActivation, init)

	towers := make([]*Tower, len(tasks))
	mt := loss.NewMultiTask(cfg.Loss, len(tasks))
	if cfg.LossWeights != nil {
		mt.Weights = make([]float64, len(tasks))
	}
	for i, t := range tasks {
		towers[i] = NewTower(cfg.Units, cfg.TowerHidden, t.Outputs, init)
		if mt.Weights != nil {
			w, ok := cfg.LossWeights[t.Name]
			if !ok {
				w = 1
			}
			mt.Weights[i] = w
		}
	}

	return &Model{
		cfg:    cfg,
		tasks:  tasks,
		mmoe:   mmoe,
		towers: towers,
		loss:   mt,
		opt:    cfg.Optimizer,
		rng:    rand.New(rand.NewSource(uint64(cfg.Seed) + 1)),
	}, nil
}

// Tasks returns the task specs in output order.
func (m *Model) Tasks() []TaskSpec {
	return append([]TaskSpec(nil), m.tasks...)
}

// TaskNames returns the task names in output order.
func (m *Model) TaskNames() []string {
	names := make([]string, len(m.tasks))
	for i, t := range m.tasks {
		names[i] = t.Name
	}
	return names
}

// Config returns the normalized configuration the model was built with.
func (m *Model) Config() Config {
	return m.cfg
}

// MMoE returns the shared mixture-of-experts layer.
func (m *Model) MMoE() *layer.MMoE {
	return m.mmoe
}

// Towers returns the task towers in task order.
func (m *Model) Towers() []*Tower {
	return m.towers
}

// Optimizer returns the optimizer driving TrainStep.
func (m *Model) Optimizer() opt.Optimizer {
	return m.opt
}

func (m *Model) checkInput(x mat.Matrix) error {
	if err := layer.CheckWidth(x, m.cfg.InputWidth, "features"); err != nil {
		return err
	}
	if r, _ := x.Dims(); r == 0 {
		return fmt.Errorf("%w: empty batch", layer.ErrShapeMismatch)
	}
	return nil
}

// labels returns d's label matrices in task order, looked up by name. Every
// task needs labels of its width and no label matrix may name an unknown task.
func (m *Model) labels(d Dataset) ([]*mat.Dense, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if len(d.Y) != len(m.tasks) {
		return nil, fmt.Errorf("%w: labels for %d tasks, model has %d", layer.ErrShapeMismatch, len(d.Y), len(m.tasks))
	}
	out := make([]*mat.Dense, len(m.tasks))
	for i, t := range m.tasks {
		y, ok := d.Label(t.Name)
		if !ok {
			return nil, fmt.Errorf("%w: no labels for task %s", layer.ErrShapeMismatch, t.Name)
		}
		if err := layer.CheckWidth(y, t.Outputs, "labels for "+t.Name); err != nil {
			return nil, err
		}
		out[i] = y
	}
	return out, nil
}

// Predict returns one prediction matrix per task. It does not modify the model.
func (m *Model) Predict(x mat.Matrix) ([]*mat.Dense, error) {
	if err := m.checkInput(x); err != nil {
		return nil, err
	}
	mixed, err := m.mmoe.Apply(x)
	if err != nil {
		return nil, err
	}
	preds := make([]*mat.Dense, len(m.towers))
	for i, t := range m.towers {
		preds[i] = t.Apply(mixed[i])
	}
	return preds, nil
}

// GateWeights returns each task's mixing weights over the experts for x.
func (m *Model) GateWeights(x mat.Matrix) ([]*mat.Dense, error) {
	if err := m.checkInput(x); err != nil {
		return nil, err
	}
	_, gates, err := m.mmoe.ApplyWithGates(x)
	return gates, err
}

// TrainStep runs one optimization step on a batch and returns the per-task
// losses measured before the update.
func (m *Model) TrainStep(batch Dataset) (Losses, error) {
	labels, err := m.labels(batch)
	if err != nil {
		return Losses{}, err
	}
	if err := m.checkInput(batch.X); err != nil {
		return Losses{}, err
	}
	return m.step(batch.X, labels)
}

// step trains on labels already in task order.
func (m *Model) step(x *mat.Dense, labels []*mat.Dense) (Losses, error) {
	mixed, err := m.mmoe.Forward(x)
	if err != nil {
		return Losses{}, err
	}
	preds := make([]*mat.Dense, len(m.towers))
	for i, t := range m.towers {
		preds[i] = t.Forward(mixed[i])
	}

	res, err := m.loss.Compute(preds, labels)
	if err != nil {
		return Losses{}, err
	}

	dMixed := make([]*mat.Dense, len(m.towers))
	for i, t := range m.towers {
		dMixed[i] = t.Backward(res.Grads[i])
	}
	m.mmoe.Backward(dMixed)

	m.opt.Step(m.Params(), m.Gradients())
	return m.losses(res), nil
}

// Evaluate computes mean per-task losses over steps consecutive batches of
// batchSize rows, starting at the first row.
func (m *Model) Evaluate(data Dataset, batchSize, steps int) (Losses, error) {
	labels, err := m.labels(data)
	if err != nil {
		return Losses{}, err
	}
	if err := m.checkInput(data.X); err != nil {
		return Losses{}, err
	}
	rows := data.Rows()
	if batchSize <= 0 || steps <= 0 || batchSize*steps > rows {
		return Losses{}, fmt.Errorf("%w: %d steps of %d rows over %d examples", layer.ErrShapeMismatch, steps, batchSize, rows)
	}

	ordered := Dataset{X: data.X, Tasks: m.TaskNames(), Y: labels}
	sum := make([]float64, len(m.tasks))
	var total float64
	for s := 0; s < steps; s++ {
		b := ordered.Batch(s*batchSize, (s+1)*batchSize)
		preds, err := m.Predict(b.X)
		if err != nil {
			return Losses{}, err
		}
		res, err := m.loss.Evaluate(preds, b.Y)
		if err != nil {
			return Losses{}, err
		}
		for i, v := range res.PerTask {
			sum[i] += v
		}
		total += res.Total
	}

	for i := range sum {
		sum[i] /= float64(steps)
	}
	return Losses{Tasks: m.TaskNames(), Values: sum, Total: total / float64(steps)}, nil
}

// Fit trains for the given number of epochs, shuffling every epoch. After
// each epoch the hooks run in order; a hook returning ErrStopTraining ends
// training early without error. The returned history holds the mean
// training loss of every completed epoch.
func (m *Model) Fit(train Dataset, epochs, batchSize int, hooks ...EpochHook) ([]Losses, error) {
	labels, err := m.labels(train)
	if err != nil {
		return nil, err
	}
	if err := m.checkInput(train.X); err != nil {
		return nil, err
	}
	train = Dataset{X: train.X, Tasks: m.TaskNames(), Y: labels}
	if epochs <= 0 || batchSize <= 0 {
		return nil, fmt.Errorf("%w: %d epochs, batch size %d", ErrInvalidConfig, epochs, batchSize)
	}

	rows := train.Rows()
	var history []Losses
	for epoch := 0; epoch < epochs; epoch++ {
		shuffled := train.Subset(m.rng.Perm(rows))

		sum := make([]float64, len(m.tasks))
		var total float64
		for start := 0; start < rows; start += batchSize {
			end := min(start+batchSize, rows)
			b := shuffled.Batch(start, end)
			l, err := m.step(b.X, b.Y)
			if err != nil {
				return history, fmt.Errorf("epoch %d: %w", epoch, err)
			}
			w := float64(end-start) / float64(rows)
			for i, v := range l.Values {
				sum[i] += w * v
			}
			total += w * l.Total
		}

		epochLoss := Losses{Tasks: m.TaskNames(), Values: sum, Total: total}
		history = append(history, epochLoss)

		for _, h := range hooks {
			if err := h.OnEpochEnd(epoch, m, epochLoss); err != nil {
				if errors.Is(err, ErrStopTraining) {
					return history, nil
				}
				return history, fmt.Errorf("epoch %d: %w", epoch, err)
			}
		}
	}
	return history, nil
}

// Params returns every parameter group: MMoE layer first, then towers in task order.
func (m *Model) Params() [][]float64 {
	p := m.mmoe.Params()
	for _, t := range m.towers {
		p = append(p, t.Params()...)
	}
	return p
}

// Gradients is aligned with Params.
func (m *Model) Gradients() [][]float64 {
	g := m.mmoe.Gradients()
	for _, t := range m.towers {
		g = append(g, t.Gradients()...)
	}
	return g
}

// NumParams returns the total number of trainable scalars.
func (m *Model) NumParams() int {
	n := 0
	for _, p := range m.Params() {
		n += len(p)
	}
	return n
}

func (m *Model) losses(res loss.Result) Losses {
	return Losses{Tasks: m.TaskNames(), Values: res.PerTask, Total: res.Total}
}

// Summary writes a table of the model's components.
func (m *Model) Summary(w io.Writer) {
	line := strings.Repeat("_", 65)
	fmt.Fprintln(w, "Model: MMoE")
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "%-25s %-20s %-10s\n", "Layer (type)", "Output Shape", "Param #")
	fmt.Fprintln(w, strings.Repeat("=", 65))

	count := func(groups [][]float64) int {
		n := 0
		for _, g := range groups {
			n += len(g)
		}
		return n
	}

	units := m.mmoe.Units()
	fmt.Fprintf(w, "%-25s %-20s %-10d\n", "input (Input)", fmt.Sprintf("(None, %d)", m.cfg.InputWidth), 0)
	fmt.Fprintf(w, "%-25s %-20s %-10d\n",
		fmt.Sprintf("experts (ExpertBank x%d)", m.mmoe.Experts().Len()),
		fmt.Sprintf("(None, %d)", units), count(m.mmoe.Experts().Params()))
	for i, g := range m.mmoe.Gates() {
		fmt.Fprintf(w, "%-25s %-20s %-10d\n",
			fmt.Sprintf("gate_%s (Gate)", m.tasks[i].Name),
			fmt.Sprintf("(None, %d)", m.mmoe.Experts().Len()), count(g.Params()))
	}
	for i, t := range m.towers {
		for j, l := range t.Layers() {
			name := fmt.Sprintf("%s_%d (Dense)", m.tasks[i].Name, j)
			fmt.Fprintf(w, "%-25s %-20s %-10d\n", name, fmt.Sprintf("(None, %d)", l.OutSize()), count(l.Params()))
		}
	}

	fmt.Fprintln(w, strings.Repeat("=", 65))
	fmt.Fprintf(w, "Total params: %d\n", m.NumParams())
	fmt.Fprintln(w, line)
}

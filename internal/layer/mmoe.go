package layer

import (
	"fmt"

	"github.com/FlavioCFOliveira/census-mmoe/internal/activations"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ExpertBank is a set of independent dense experts reading the same input.
type ExpertBank struct {
	experts []*Dense
	inSize  int
	units   int
}

// NewExpertBank creates n experts mapping in features to units each.
func NewExpertBank(in, units, n int, act activations.Activation, init Initializer) *ExpertBank {
	if init == nil {
		init = NewGlorotUniform(NewSource(1))
	}
	experts := make([]*Dense, n)
	for i := range experts {
		experts[i] = NewDense(in, units, act, init)
	}
	return &ExpertBank{experts: experts, inSize: in, units: units}
}

// Forward runs every expert, caching state for Backward.
func (b *ExpertBank) Forward(x *mat.Dense) ([]*mat.Dense, error) {
	if err := CheckWidth(x, b.inSize, "expert input"); err != nil {
		return nil, err
	}
	outs := make([]*mat.Dense, len(b.experts))
	for i, e := range b.experts {
		outs[i] = e.Forward(x)
	}
	return outs, nil
}

// Apply runs every expert without caching.
func (b *ExpertBank) Apply(x mat.Matrix) ([]*mat.Dense, error) {
	if err := CheckWidth(x, b.inSize, "expert input"); err != nil {
		return nil, err
	}
	outs := make([]*mat.Dense, len(b.experts))
	for i, e := range b.experts {
		outs[i] = e.Apply(x)
	}
	return outs, nil
}

// Backward takes one output gradient per expert and returns the summed input gradient.
func (b *ExpertBank) Backward(grads []*mat.Dense) *mat.Dense {
	var dx *mat.Dense
	for i, e := range b.experts {
		g := e.Backward(grads[i])
		if dx == nil {
			dx = g
			continue
		}
		dx.Add(dx, g)
	}
	return dx
}

// Experts returns the underlying dense experts.
func (b *ExpertBank) Experts() []*Dense { return b.experts }

// Len returns the number of experts.
func (b *ExpertBank) Len() int { return len(b.experts) }

// Units returns the embedding width of every expert.
func (b *ExpertBank) Units() int { return b.units }

func (b *ExpertBank) Params() [][]float64 {
	var p [][]float64
	for _, e := range b.experts {
		p = append(p, e.Params()...)
	}
	return p
}

func (b *ExpertBank) Gradients() [][]float64 {
	var g [][]float64
	for _, e := range b.experts {
		g = append(g, e.Gradients()...)
	}
	return g
}

// Gate maps the shared input to a distribution over experts for one task.
type Gate struct {
	proj *Dense
}

// NewGate creates a softmax gate over numExperts experts.
func NewGate(in, numExperts int, init Initializer) *Gate {
	return &Gate{proj: NewDense(in, numExperts, activations.Softmax{}, init)}
}

// Forward returns a (batch, numExperts) matrix of mixing weights, caching for Backward.
func (g *Gate) Forward(x *mat.Dense) (*mat.Dense, error) {
	if err := CheckWidth(x, g.proj.InSize(), "gate input"); err != nil {
		return nil, err
	}
	return g.proj.Forward(x), nil
}

// Apply returns mixing weights without caching.
func (g *Gate) Apply(x mat.Matrix) (*mat.Dense, error) {
	if err := CheckWidth(x, g.proj.InSize(), "gate input"); err != nil {
		return nil, err
	}
	return g.proj.Apply(x), nil
}

// Backward takes dL/dWeights and returns dL/dInput.
func (g *Gate) Backward(grad *mat.Dense) *mat.Dense {
	return g.proj.Backward(grad)
}

// Projection returns the gate's dense projection.
func (g *Gate) Projection() *Dense { return g.proj }

func (g *Gate) Params() [][]float64    { return g.proj.Params() }
func (g *Gate) Gradients() [][]float64 { return g.proj.Gradients() }

// Mix combines expert embeddings with one task's gate weights:
// mixed[b] = sum_e gate[b, e] * experts[e][b].
func Mix(experts []*mat.Dense, gate mat.Matrix) (*mat.Dense, error) {
	batch, n := gate.Dims()
	if len(experts) != n {
		return nil, fmt.Errorf("%w: gate has %d columns for %d experts", ErrShapeMismatch, n, len(experts))
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: no experts to mix", ErrShapeMismatch)
	}
	_, units := experts[0].Dims()
	for i, e := range experts {
		r, c := e.Dims()
		if r != batch || c != units {
			return nil, fmt.Errorf("%w: expert %d is %dx%d, want %dx%d", ErrShapeMismatch, i, r, c, batch, units)
		}
	}

	mixed := mat.NewDense(batch, units, nil)
	for b := 0; b < batch; b++ {
		row := mixed.RawRowView(b)
		for e, emb := range experts {
			floats.AddScaled(row, gate.At(b, e), emb.RawRowView(b))
		}
	}
	return mixed, nil
}

// MixBackward returns the gradients of a Mix with respect to each expert
// embedding and to the gate weights.
func MixBackward(experts []*mat.Dense, gate *mat.Dense, dMixed *mat.Dense) ([]*mat.Dense, *mat.Dense) {
	batch, n := gate.Dims()
	_, units := dMixed.Dims()

	dExperts := make([]*mat.Dense, n)
	for e := range dExperts {
		dExperts[e] = mat.NewDense(batch, units, nil)
	}
	dGate := mat.NewDense(batch, n, nil)

	for b := 0; b < batch; b++ {
		g := dMixed.RawRowView(b)
		for e := 0; e < n; e++ {
			floats.AddScaled(dExperts[e].RawRowView(b), gate.At(b, e), g)
			dGate.Set(b, e, floats.Dot(g, experts[e].RawRowView(b)))
		}
	}
	return dExperts, dGate
}

// MMoE is a multi-gate mixture-of-experts layer: one shared expert bank and
// one gate per task, producing one mixed embedding per task.
type MMoE struct {
	experts *ExpertBank
	gates   []*Gate

	// Cached by Forward for Backward
	expertOut []*mat.Dense
	gateOut   []*mat.Dense
}

// NewMMoE creates the layer. Every component draws its weights from init in
// construction order: experts first, then gates.
func NewMMoE(in, units, numExperts, numTasks int, expertAct activations.Activation, init Initializer) *MMoE {
	if init == nil {
		init = NewGlorotUniform(NewSource(1))
	}
	gates := make([]*Gate, numTasks)
	experts := NewExpertBank(in, units, numExperts, expertAct, init)
	for i := range gates {
		gates[i] = NewGate(in, numExperts, init)
	}
	return &MMoE{experts: experts, gates: gates}
}

// Forward computes the experts once and mixes them for every task.
func (m *MMoE) Forward(x *mat.Dense) ([]*mat.Dense, error) {
	expertOut, err := m.experts.Forward(x)
	if err != nil {
		return nil, err
	}

	gateOut := make([]*mat.Dense, len(m.gates))
	mixed := make([]*mat.Dense, len(m.gates))
	for t, g := range m.gates {
		if gateOut[t], err = g.Forward(x); err != nil {
			return nil, err
		}
		if mixed[t], err = Mix(expertOut, gateOut[t]); err != nil {
			return nil, err
		}
	}

	m.expertOut = expertOut
	m.gateOut = gateOut
	return mixed, nil
}

// Apply is Forward without caching.
func (m *MMoE) Apply(x mat.Matrix) ([]*mat.Dense, error) {
	mixed, _, err := m.ApplyWithGates(x)
	return mixed, err
}

// ApplyWithGates also returns each task's gate weights.
func (m *MMoE) ApplyWithGates(x mat.Matrix) ([]*mat.Dense, []*mat.Dense, error) {
	expertOut, err := m.experts.Apply(x)
	if err != nil {
		return nil, nil, err
	}

	gateOut := make([]*mat.Dense, len(m.gates))
	mixed := make([]*mat.Dense, len(m.gates))
	for t, g := range m.gates {
		if gateOut[t], err = g.Apply(x); err != nil {
			return nil, nil, err
		}
		if mixed[t], err = Mix(expertOut, gateOut[t]); err != nil {
			return nil, nil, err
		}
	}
	return mixed, gateOut, nil
}

// Backward takes dL/dMixed for every task and returns dL/dInput.
// Expert gradients from all tasks are summed before a single expert backward pass.
func (m *MMoE) Backward(dMixed []*mat.Dense) *mat.Dense {
	if m.expertOut == nil {
		panic("MMoE.Backward: Forward must be called first")
	}

	var dExperts []*mat.Dense
	var dx *mat.Dense
	for t, g := range m.gates {
		dE, dG := MixBackward(m.expertOut, m.gateOut[t], dMixed[t])
		if dExperts == nil {
			dExperts = dE
		} else {
			for e := range dExperts {
				dExperts[e].Add(dExperts[e], dE[e])
			}
		}

		gx := g.Backward(dG)
		if dx == nil {
			dx = gx
		} else {
			dx.Add(dx, gx)
		}
	}

	dx.Add(dx, m.experts.Backward(dExperts))
	return dx
}

// Experts returns the shared expert bank.
func (m *MMoE) Experts() *ExpertBank { return m.experts }

// Gates returns the per-task gates in task order.
func (m *MMoE) Gates() []*Gate { return m.gates }

// NumTasks returns the number of gates.
func (m *MMoE) NumTasks() int { return len(m.gates) }

// Units returns the mixed embedding width.
func (m *MMoE) Units() int { return m.experts.Units() }

// InSize returns the expected feature width.
func (m *MMoE) InSize() int { return m.experts.inSize }

// Params returns expert parameters followed by gate parameters.
func (m *MMoE) Params() [][]float64 {
	p := m.experts.Params()
	for _, g := range m.gates {
		p = append(p, g.Params()...)
	}
	return p
}

// Gradients is aligned with Params.
func (m *MMoE) Gradients() [][]float64 {
	gr := m.experts.Gradients()
	for _, g := range m.gates {
		gr = append(gr, g.Gradients()...)
	}
	return gr
}

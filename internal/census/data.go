package census

import (
	"fmt"
	"sort"

	"github.com/FlavioCFOliveira/census-mmoe/internal/net"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Config selects the census files and how they are prepared.
type Config struct {
	// TrainPath holds the training records.
	TrainPath string
	// OtherPath holds the records split 1:1 into validation and test.
	OtherPath string
	// Rows limits the records read from each file. Zero reads everything.
	Rows int
	// Seed drives the validation/test split.
	Seed int64
	// Normalize rescales features to the training min-max ranges.
	Normalize bool
}

// Data is the prepared census data with labels in task order.
type Data struct {
	Train      net.Dataset
	Validation net.Dataset
	Test       net.Dataset
	Features   []string
	Tasks      []net.TaskSpec
}

// Load reads both files and prepares them.
func Load(cfg Config) (*Data, error) {
	train, err := ReadFile(cfg.TrainPath, cfg.Rows)
	if err != nil {
		return nil, err
	}
	other, err := ReadFile(cfg.OtherPath, cfg.Rows)
	if err != nil {
		return nil, err
	}
	return Prepare(train, other, cfg.Seed, cfg.Normalize)
}

// Prepare encodes train and other with an encoder fit on train, then splits
// other into disjoint validation and test halves.
func Prepare(train, other *Frame, seed int64, normalize bool) (*Data, error) {
	enc, err := FitEncoder(train)
	if err != nil {
		return nil, err
	}
	if other.Len() < 2 {
		return nil, fmt.Errorf("%w: %d records cannot be split into validation and test", ErrSchema, other.Len())
	}

	validation, test := SplitIndices(other.Len(), seed)

	d := &Data{Features: enc.Features()}
	for _, t := range Tasks {
		d.Tasks = append(d.Tasks, net.TaskSpec{Name: t.Name, Outputs: 2})
	}

	if d.Train, err = encode(enc, train); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	if d.Validation, err = encode(enc, other.Subset(validation)); err != nil {
		return nil, fmt.Errorf("validation: %w", err)
	}
	if d.Test, err = encode(enc, other.Subset(test)); err != nil {
		return nil, fmt.Errorf("test: %w", err)
	}

	if normalize {
		mm := net.FitMinMax(d.Train.X)
		for _, x := range []*mat.Dense{d.Train.X, d.Validation.X, d.Test.X} {
			mm.Transform(x)
		}
	}
	return d, nil
}

func encode(enc *Encoder, f *Frame) (net.Dataset, error) {
	x, err := enc.Transform(f)
	if err != nil {
		return net.Dataset{}, err
	}
	ds := net.Dataset{X: x}
	for _, t := range Tasks {
		y, err := Labels(f, t)
		if err != nil {
			return net.Dataset{}, err
		}
		ds.Tasks = append(ds.Tasks, t.Name)
		ds.Y = append(ds.Y, y)
	}
	return ds, nil
}

// SplitIndices draws half of n indices, rounded down, for validation and
// leaves the rest for test. Both halves are sorted.
func SplitIndices(n int, seed int64) (validation, test []int) {
	perm := rand.New(rand.NewSource(uint64(seed))).Perm(n)
	half := n / 2
	validation = append([]int(nil), perm[:half]...)
	test = append([]int(nil), perm[half:]...)
	sort.Ints(validation)
	sort.Ints(test)
	return validation, test
}

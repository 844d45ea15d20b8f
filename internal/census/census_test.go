package census

import (
	"bytes"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/FlavioCFOliveira/census-mmoe/internal/net"
)

// record returns a census line with the given overrides; other fields get
// a plausible default.
func record(overrides map[string]string) string {
	fields := make([]string, len(Columns))
	for i, col := range Columns {
		switch {
		case isCategorical(col):
			fields[i] = " Not in universe"
		default:
			fields[i] = " 0"
		}
	}
	fields[columnIndex("income_50k")] = " - 50000."
	fields[columnIndex("marital_stat")] = " Married-civilian spouse present"
	for col, v := range overrides {
		fields[columnIndex(col)] = v
	}
	return strings.Join(fields, ",")
}

func sampleCSV() string {
	lines := []string{
		record(map[string]string{"age": " 73", "education": " High school graduate", "marital_stat": " Widowed"}),
		record(map[string]string{"age": " 58", "education": " Some college but no degree", "income_50k": " 50000+."}),
		record(map[string]string{"age": " 18", "education": " 10th grade", "marital_stat": " Never married"}),
		record(map[string]string{"age": " 9", "education": " Children", "marital_stat": " Never married"}),
	}
	return strings.Join(lines, "\n") + "\n"
}

// TestRead tests plain and gzip input with a row limit.
func TestRead(t *testing.T) {
	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	if _, err := w.Write([]byte(sampleCSV())); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		input []byte
		limit int
		want  int
	}{
		{"Plain", []byte(sampleCSV()), 0, 4},
		{"Gzip", gz.Bytes(), 0, 4},
		{"Limited", []byte(sampleCSV()), 3, 3},
		{"Limit past end", gz.Bytes(), 90, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Read(bytes.NewReader(tt.input), tt.limit)
			if err != nil {
				t.Fatal(err)
			}
			if f.Len() != tt.want {
				t.Errorf("read %d records, want %d", f.Len(), tt.want)
			}
			if got := f.Rows[0][columnIndex("age")]; got != " 73" {
				t.Errorf("age = %q", got)
			}
		})
	}
}

// TestReadSchemaError tests that short records are rejected.
func TestReadSchemaError(t *testing.T) {
	input := sampleCSV() + "1,2,3\n"
	if _, err := Read(strings.NewReader(input), 0); !errors.Is(err, ErrSchema) {
		t.Errorf("error = %v, want ErrSchema", err)
	}
}

// TestReadFile tests reading from disk.
func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "census-income.test")
	if err := os.WriteFile(path, []byte(sampleCSV()), 0644); err != nil {
		t.Fatal(err)
	}
	f, err := ReadFile(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if f.Len() != 4 {
		t.Errorf("read %d records", f.Len())
	}
	if _, err := ReadFile(path+".gz", 0); err == nil {
		t.Error("missing file read without error")
	}
}

// TestEncoder tests the feature layout and unseen categories.
func TestEncoder(t *testing.T) {
	f, err := Read(strings.NewReader(sampleCSV()), 0)
	if err != nil {
		t.Fatal(err)
	}
	enc, err := FitEncoder(f)
	if err != nil {
		t.Fatal(err)
	}

	numeric := len(Columns) - len(CategoricalColumns) - len(Tasks)
	// education has four values, every other categorical column one
	want := numeric + len(CategoricalColumns) - 1 + 4
	if enc.Width() != want {
		t.Fatalf("Width = %d, want %d", enc.Width(), want)
	}

	names := enc.Features()
	if names[0] != "age" {
		t.Errorf("first feature = %q, want age", names[0])
	}
	for _, n := range names {
		if strings.HasPrefix(n, "income_50k") || strings.HasPrefix(n, "marital_stat") {
			t.Errorf("label column %q encoded as a feature", n)
		}
	}

	x, err := enc.Transform(f)
	if err != nil {
		t.Fatal(err)
	}
	if x.At(0, 0) != 73 {
		t.Errorf("age = %v, want 73", x.At(0, 0))
	}

	edu := -1
	for i, n := range names {
		if n == "education_ 10th grade" {
			edu = i
		}
	}
	if edu < 0 {
		t.Fatalf("no indicator for 10th grade in %v", names)
	}
	if x.At(2, edu) != 1 || x.At(0, edu) != 0 {
		t.Errorf("education indicator = %v, %v", x.At(2, edu), x.At(0, edu))
	}

	// Every record sets exactly one indicator per categorical column.
	for r := 0; r < f.Len(); r++ {
		sum := 0.0
		for j := numeric; j < enc.Width(); j++ {
			sum += x.At(r, j)
		}
		if sum != float64(len(CategoricalColumns)) {
			t.Errorf("record %d sets %v indicators", r, sum)
		}
	}

	unseen, err := Read(strings.NewReader(record(map[string]string{"education": " Doctorate degree(PhD EdD)"})), 0)
	if err != nil {
		t.Fatal(err)
	}
	ux, err := enc.Transform(unseen)
	if err != nil {
		t.Fatal(err)
	}
	if _, c := ux.Dims(); c != enc.Width() {
		t.Errorf("unseen record encoded to %d columns", c)
	}
	sum := 0.0
	for j := numeric; j < enc.Width(); j++ {
		sum += ux.At(0, j)
	}
	if sum != float64(len(CategoricalColumns)-1) {
		t.Errorf("unseen category set %v indicators", sum)
	}
}

// TestTransformSchemaError tests numeric parsing failures.
func TestTransformSchemaError(t *testing.T) {
	f, _ := Read(strings.NewReader(sampleCSV()), 0)
	enc, err := FitEncoder(f)
	if err != nil {
		t.Fatal(err)
	}
	bad, _ := Read(strings.NewReader(record(map[string]string{"age": " ?"})), 0)
	if _, err := enc.Transform(bad); !errors.Is(err, ErrSchema) {
		t.Errorf("error = %v, want ErrSchema", err)
	}
	if _, err := FitEncoder(&Frame{}); !errors.Is(err, ErrSchema) {
		t.Errorf("empty fit error = %v", err)
	}
}

// TestLabels tests positive class detection.
func TestLabels(t *testing.T) {
	f, _ := Read(strings.NewReader(sampleCSV()), 0)

	income, err := Labels(f, Tasks[0])
	if err != nil {
		t.Fatal(err)
	}
	marital, err := Labels(f, Tasks[1])
	if err != nil {
		t.Fatal(err)
	}

	wantIncome := []float64{0, 1, 0, 0}
	wantMarital := []float64{0, 0, 1, 1}
	for r := 0; r < 4; r++ {
		if income.At(r, 1) != wantIncome[r] || income.At(r, 0) != 1-wantIncome[r] {
			t.Errorf("income row %d = %v", r, income.RawRowView(r))
		}
		if marital.At(r, 1) != wantMarital[r] || marital.At(r, 0) != 1-wantMarital[r] {
			t.Errorf("marital row %d = %v", r, marital.RawRowView(r))
		}
	}

	if _, err := Labels(f, Task{Name: "age", Column: "years"}); !errors.Is(err, ErrSchema) {
		t.Errorf("unknown column error = %v", err)
	}
}

// TestSplitIndices tests that the halves are disjoint, complete and seeded.
func TestSplitIndices(t *testing.T) {
	for _, n := range []int{2, 9, 90} {
		v, te := SplitIndices(n, 1)
		if len(v) != n/2 || len(v)+len(te) != n {
			t.Fatalf("n=%d: split %d/%d", n, len(v), len(te))
		}
		all := append(append([]int(nil), v...), te...)
		sort.Ints(all)
		for i, idx := range all {
			if idx != i {
				t.Fatalf("n=%d: indices are not a partition: %v", n, all)
			}
		}
		if !sort.IntsAreSorted(v) || !sort.IntsAreSorted(te) {
			t.Errorf("n=%d: halves not sorted", n)
		}
	}

	a, _ := SplitIndices(90, 1)
	b, _ := SplitIndices(90, 1)
	c, _ := SplitIndices(90, 2)
	same, differ := true, false
	for i := range a {
		same = same && a[i] == b[i]
		differ = differ || a[i] != c[i]
	}
	if !same {
		t.Error("equal seeds gave different splits")
	}
	if !differ {
		t.Error("different seeds gave the same split")
	}
}

// TestPrepare tests the assembled datasets.
func TestPrepare(t *testing.T) {
	train, _ := Read(strings.NewReader(sampleCSV()), 0)
	other, _ := Read(strings.NewReader(sampleCSV()+record(nil)+"\n"), 0)

	d, err := Prepare(train, other, 1, true)
	if err != nil {
		t.Fatal(err)
	}
	if d.Train.Rows() != 4 || d.Validation.Rows() != 2 || d.Test.Rows() != 3 {
		t.Errorf("rows = %d/%d/%d", d.Train.Rows(), d.Validation.Rows(), d.Test.Rows())
	}
	if len(d.Tasks) != 2 || d.Tasks[0].Name != "income" || d.Tasks[1].Name != "marital" {
		t.Errorf("tasks = %v", d.Tasks)
	}
	for _, ds := range []net.Dataset{d.Train, d.Validation, d.Test} {
		if len(ds.Tasks) != 2 || ds.Tasks[0] != "income" || ds.Tasks[1] != "marital" {
			t.Errorf("label names = %v", ds.Tasks)
		}
	}
	for _, ds := range []struct {
		name string
		err  error
	}{
		{"train", d.Train.Validate()},
		{"validation", d.Validation.Validate()},
		{"test", d.Test.Validate()},
	} {
		if ds.err != nil {
			t.Errorf("%s: %v", ds.name, ds.err)
		}
	}
	if _, c := d.Test.X.Dims(); c != len(d.Features) {
		t.Errorf("test width %d, want %d", c, len(d.Features))
	}

	// Normalized training ages: 73 is the max, 9 the min
	if d.Train.X.At(0, 0) != 1 || d.Train.X.At(3, 0) != 0 {
		t.Errorf("normalized ages = %v, %v", d.Train.X.At(0, 0), d.Train.X.At(3, 0))
	}

	if _, err := Prepare(train, &Frame{Rows: other.Rows[:1]}, 1, false); !errors.Is(err, ErrSchema) {
		t.Errorf("single-record split error = %v", err)
	}
}

// TestLoad tests reading both files from disk.
func TestLoad(t *testing.T) {
	dir := t.TempDir()
	trainPath := filepath.Join(dir, "train.csv")
	otherPath := filepath.Join(dir, "test.csv")
	for _, p := range []string{trainPath, otherPath} {
		if err := os.WriteFile(p, []byte(sampleCSV()), 0644); err != nil {
			t.Fatal(err)
		}
	}

	d, err := Load(Config{TrainPath: trainPath, OtherPath: otherPath, Rows: 4, Seed: 1})
	if err != nil {
		t.Fatal(err)
	}
	if d.Validation.Rows()+d.Test.Rows() != 4 {
		t.Errorf("split %d+%d rows", d.Validation.Rows(), d.Test.Rows())
	}
	if d.Train.X.At(0, 0) != 73 {
		t.Errorf("unnormalized age = %v", d.Train.X.At(0, 0))
	}
}

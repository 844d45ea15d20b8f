package census

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

type category struct {
	column int
	lookup map[string]int
}

// Encoder maps census records to feature rows: numeric columns in file
// order, then one indicator column per category value seen at fit time.
// Values unseen at fit time encode as all zeros.
type Encoder struct {
	numeric    []int
	categories []category
	names      []string
}

// FitEncoder learns the categories present in f.
func FitEncoder(f *Frame) (*Encoder, error) {
	if f.Len() == 0 {
		return nil, fmt.Errorf("%w: cannot fit an encoder on no records", ErrSchema)
	}

	e := &Encoder{}
	for i, col := range Columns {
		if isLabel(col) || isCategorical(col) {
			continue
		}
		e.numeric = append(e.numeric, i)
		e.names = append(e.names, col)
	}

	offset := len(e.numeric)
	for i, col := range Columns {
		if !isCategorical(col) {
			continue
		}
		seen := make(map[string]bool)
		for _, row := range f.Rows {
			seen[row[i]] = true
		}
		values := make([]string, 0, len(seen))
		for v := range seen {
			values = append(values, v)
		}
		sort.Strings(values)

		c := category{column: i, lookup: make(map[string]int, len(values))}
		for j, v := range values {
			c.lookup[v] = offset + j
			e.names = append(e.names, col+"_"+v)
		}
		offset += len(values)
		e.categories = append(e.categories, c)
	}
	return e, nil
}

// Width returns the number of feature columns.
func (e *Encoder) Width() int {
	return len(e.names)
}

// Features returns the feature column names.
func (e *Encoder) Features() []string {
	return append([]string(nil), e.names...)
}

// Transform encodes f into a (records × Width) matrix.
func (e *Encoder) Transform(f *Frame) (*mat.Dense, error) {
	if f.Len() == 0 {
		return nil, fmt.Errorf("%w: no records to encode", ErrSchema)
	}
	x := mat.NewDense(f.Len(), e.Width(), nil)
	for r, rec := range f.Rows {
		if len(rec) != len(Columns) {
			return nil, fmt.Errorf("%w: record %d has %d fields, want %d", ErrSchema, r, len(rec), len(Columns))
		}
		row := x.RawRowView(r)
		for j, col := range e.numeric {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[col]), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: record %d column %s: %v", ErrSchema, r, Columns[col], err)
			}
			row[j] = v
		}
		for _, c := range e.categories {
			if j, ok := c.lookup[rec[c.column]]; ok {
				row[j] = 1
			}
		}
	}
	return x, nil
}

// Labels one-hot encodes a task as [negative, positive] columns.
func Labels(f *Frame, t Task) (*mat.Dense, error) {
	col := columnIndex(t.Column)
	if col < 0 {
		return nil, fmt.Errorf("%w: unknown label column %q", ErrSchema, t.Column)
	}
	y := mat.NewDense(f.Len(), 2, nil)
	for r, rec := range f.Rows {
		if len(rec) != len(Columns) {
			return nil, fmt.Errorf("%w: record %d has %d fields, want %d", ErrSchema, r, len(rec), len(Columns))
		}
		if strings.TrimSpace(rec[col]) == t.Positive {
			y.Set(r, 1, 1)
		} else {
			y.Set(r, 0, 1)
		}
	}
	return y, nil
}

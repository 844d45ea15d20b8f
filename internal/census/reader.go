package census

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// Frame is a set of raw census records, one string per column.
type Frame struct {
	Rows [][]string
}

// Len returns the number of records.
func (f *Frame) Len() int {
	return len(f.Rows)
}

// Subset returns the records at idx, sharing their storage.
func (f *Frame) Subset(idx []int) *Frame {
	rows := make([][]string, len(idx))
	for i, r := range idx {
		rows[i] = f.Rows[r]
	}
	return &Frame{Rows: rows}
}

// ReadFile reads at most limit records from a plain or gzip-compressed file.
// A limit of zero reads everything.
func ReadFile(path string, limit int) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open census file: %w", err)
	}
	defer file.Close()

	f, err := Read(file, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Read parses census records from r, detecting gzip compression.
func Read(r io.Reader, limit int) (*Frame, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		src = gz
	}

	reader := csv.NewReader(src)
	reader.FieldsPerRecord = len(Columns)
	reader.LazyQuotes = true

	f := &Frame{}
	for limit <= 0 || len(f.Rows) < limit {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, csv.ErrFieldCount) {
				return nil, fmt.Errorf("%w: %v", ErrSchema, err)
			}
			return nil, fmt.Errorf("failed to read census record: %w", err)
		}
		f.Rows = append(f.Rows, record)
	}
	return f, nil
}

package metrics

// Split names used by the census reporter.
const (
	Train      = "Train"
	Validation = "Validation"
	Test       = "Test"
)

// Record is one metric value for a task on a split at the end of an epoch.
type Record struct {
	Epoch int
	Task  string
	Split string
	AUC   float64
}

// Log is an append-only, epoch-indexed history of records.
type Log struct {
	records []Record
}

// Append adds records to the end of the log.
func (l *Log) Append(recs ...Record) {
	l.records = append(l.records, recs...)
}

// Len returns the number of records.
func (l *Log) Len() int {
	return len(l.records)
}

// Records returns a copy of every record in insertion order.
func (l *Log) Records() []Record {
	return append([]Record(nil), l.records...)
}

// Epoch returns the records of one epoch.
func (l *Log) Epoch(epoch int) []Record {
	var out []Record
	for _, r := range l.records {
		if r.Epoch == epoch {
			out = append(out, r)
		}
	}
	return out
}

// Series returns the values of one task and split in epoch order.
func (l *Log) Series(task, split string) []float64 {
	var out []float64
	for _, r := range l.records {
		if r.Task == task && r.Split == split {
			out = append(out, r.AUC)
		}
	}
	return out
}

// Best returns the highest-scoring record of one task and split.
func (l *Log) Best(task, split string) (Record, bool) {
	var best Record
	found := false
	for _, r := range l.records {
		if r.Task != task || r.Split != split {
			continue
		}
		if !found || r.AUC > best.AUC {
			best = r
			found = true
		}
	}
	return best, found
}

package net

import (
	"fmt"
	"strings"
)

// Losses holds one loss value per task, aligned with Tasks, and their
// weighted total.
type Losses struct {
	Tasks  []string
	Values []float64
	Total  float64
}

// Get returns the loss of the named task.
func (l Losses) Get(task string) (float64, bool) {
	for i, t := range l.Tasks {
		if t == task {
			return l.Values[i], true
		}
	}
	return 0, false
}

func (l Losses) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "loss = %.6f", l.Total)
	for i, t := range l.Tasks {
		fmt.Fprintf(&b, ", %s_loss = %.6f", t, l.Values[i])
	}
	return b.String()
}

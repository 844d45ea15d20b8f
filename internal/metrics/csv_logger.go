package metrics

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/FlavioCFOliveira/census-mmoe/internal/net"
)

// CSVLogger writes the records of every epoch to a CSV file. Run it after
// the Reporter that fills Log.
type CSVLogger struct {
	Filename string
	Append   bool
	// Log supplies the records. Nil writes the header only.
	Log *Log

	file   *os.File
	writer *csv.Writer
	start  time.Time
}

// NewCSVLogger creates a logger for the records of log.
func NewCSVLogger(filename string, append bool, log *Log) *CSVLogger {
	return &CSVLogger{
		Filename: filename,
		Append:   append,
		Log:      log,
	}
}

func (c *CSVLogger) open() error {
	mode := os.O_CREATE | os.O_WRONLY
	if c.Append {
		mode |= os.O_APPEND
	} else {
		mode |= os.O_TRUNC
	}

	file, err := os.OpenFile(c.Filename, mode, 0644)
	if err != nil {
		return fmt.Errorf("csv logger: %w", err)
	}
	c.file = file
	c.writer = csv.NewWriter(file)
	c.start = time.Now()

	// Header only for a fresh file
	info, err := file.Stat()
	if err == nil && (info.Size() == 0 || !c.Append) {
		if err := c.writer.Write([]string{"epoch", "task", "split", "auc", "time_seconds"}); err != nil {
			return fmt.Errorf("csv logger: %w", err)
		}
	}
	return nil
}

// OnEpochEnd writes the epoch's records, opening the file on first use.
func (c *CSVLogger) OnEpochEnd(epoch int, _ *net.Model, _ net.Losses) error {
	if c.writer == nil {
		if err := c.open(); err != nil {
			return err
		}
	}

	var recs []Record
	if c.Log != nil {
		recs = c.Log.Epoch(epoch)
	}
	elapsed := fmt.Sprintf("%.2f", time.Since(c.start).Seconds())
	for _, r := range recs {
		record := []string{
			strconv.Itoa(r.Epoch),
			r.Task,
			r.Split,
			strconv.FormatFloat(r.AUC, 'f', 6, 64),
			elapsed,
		}
		if err := c.writer.Write(record); err != nil {
			return fmt.Errorf("csv logger: %w", err)
		}
	}
	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the file.
func (c *CSVLogger) Close() error {
	if c.file == nil {
		return nil
	}
	c.writer.Flush()
	err := c.file.Close()
	c.file = nil
	c.writer = nil
	return err
}

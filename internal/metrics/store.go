package metrics

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/FlavioCFOliveira/census-mmoe/internal/bench"
	"github.com/FlavioCFOliveira/census-mmoe/internal/net"
	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// Store persists metric records, epoch losses and benchmark results in a
// SQLite database. Rows are tagged with the run name.
type Store struct {
	// Log supplies the records written by OnEpochEnd. Nil writes losses only.
	Log *Log

	db  *sql.DB
	run string
}

// OpenStore opens or creates the database at path, creating missing parent
// directories.
func OpenStore(path, run string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics store: %w", err)
	}

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS auc(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run TEXT NOT NULL,
			ts REAL NOT NULL,
			epoch INTEGER NOT NULL,
			task TEXT NOT NULL,
			split TEXT NOT NULL,
			auc REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS losses(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run TEXT NOT NULL,
			ts REAL NOT NULL,
			epoch INTEGER NOT NULL,
			task TEXT NOT NULL,
			loss REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS benchmarks(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run TEXT NOT NULL,
			ts REAL NOT NULL,
			batch_size INTEGER NOT NULL,
			iterations INTEGER NOT NULL,
			repetitions INTEGER NOT NULL,
			samples INTEGER NOT NULL,
			latency_ms REAL NOT NULL,
			throughput REAL NOT NULL
		)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create metrics tables: %w", err)
		}
	}
	return &Store{db: db, run: run}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func now() float64 {
	return float64(time.Now().UnixMilli()) / 1000.0
}

// WriteRecords inserts recs in one transaction.
func (s *Store) WriteRecords(recs []Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	ts := now()
	for _, r := range recs {
		if _, err := tx.Exec("INSERT INTO auc(run, ts, epoch, task, split, auc) VALUES(?,?,?,?,?,?)",
			s.run, ts, r.Epoch, r.Task, r.Split, r.AUC); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to store record: %w", err)
		}
	}
	return tx.Commit()
}

// WriteLosses inserts one row per task and one for the total, named "total".
func (s *Store) WriteLosses(epoch int, l net.Losses) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	ts := now()
	insert := func(task string, v float64) error {
		_, err := tx.Exec("INSERT INTO losses(run, ts, epoch, task, loss) VALUES(?,?,?,?,?)", s.run, ts, epoch, task, v)
		return err
	}
	for i, task := range l.Tasks {
		if err := insert(task, l.Values[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to store loss: %w", err)
		}
	}
	if err := insert("total", l.Total); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to store loss: %w", err)
	}
	return tx.Commit()
}

// WriteBenchmark inserts a harness result.
func (s *Store) WriteBenchmark(batchSize int, res bench.Result) error {
	_, err := s.db.Exec(`INSERT INTO benchmarks(run, ts, batch_size, iterations, repetitions, samples, latency_ms, throughput)
		VALUES(?,?,?,?,?,?,?,?)`,
		s.run, now(), batchSize, res.Iterations, res.Repetitions, res.Samples, res.Latency, res.Throughput)
	if err != nil {
		return fmt.Errorf("failed to store benchmark: %w", err)
	}
	return nil
}

// OnEpochEnd stores the epoch's losses and the records Log holds for it.
// Run it after the Reporter that fills Log.
func (s *Store) OnEpochEnd(epoch int, _ *net.Model, l net.Losses) error {
	if err := s.WriteLosses(epoch, l); err != nil {
		return err
	}
	if s.Log == nil {
		return nil
	}
	return s.WriteRecords(s.Log.Epoch(epoch))
}

// Records returns the stored records of this run in insertion order.
func (s *Store) Records() ([]Record, error) {
	rows, err := s.db.Query("SELECT epoch, task, split, auc FROM auc WHERE run = ? ORDER BY id ASC", s.run)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Epoch, &r.Task, &r.Split, &r.AUC); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Loss returns the stored loss of a task at an epoch.
func (s *Store) Loss(epoch int, task string) (float64, error) {
	var v float64
	err := s.db.QueryRow("SELECT loss FROM losses WHERE run = ? AND epoch = ? AND task = ? ORDER BY id DESC LIMIT 1",
		s.run, epoch, task).Scan(&v)
	return v, err
}

// Benchmarks returns the stored latency and throughput pairs of this run.
func (s *Store) Benchmarks() ([][2]float64, error) {
	rows, err := s.db.Query("SELECT latency_ms, throughput FROM benchmarks WHERE run = ? ORDER BY id ASC", s.run)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][2]float64
	for rows.Next() {
		var p [2]float64
		if err := rows.Scan(&p[0], &p[1]); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Package runs persists a history of replay runs to sqlite so past
// playback sessions can be reviewed with `vdrplay -history`.
package runs

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Run is one recorded replay run.
type Run struct {
	RunID        string
	LogPath      string
	Transport    string
	Protocol     string
	SpeedFactor  float64
	RecordsSent  int
	SendFailures int
	Warnings     int
	Status       string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Store wraps the sqlite database holding the run history.
type Store struct {
	*sql.DB
}

// Open opens (creating if needed) the run history database at path. The
// schema is applied by Migrate.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history db: %w", err)
	}
	return &Store{db}, nil
}

// RecordRun inserts one run. Recording is best-effort from the caller's
// point of view: failures here never change the replay outcome.
func (s *Store) RecordRun(r Run) error {
	_, err := s.Exec(`
		INSERT INTO runs (
			run_id, log_path, transport, protocol, speed_factor,
			records_sent, send_failures, warnings, status,
			started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.LogPath, r.Transport, r.Protocol, r.SpeedFactor,
		r.RecordsSent, r.SendFailures, r.Warnings, r.Status,
		r.StartedAt.UTC().Format(time.RFC3339Nano),
		r.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.RunID, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, most recent first.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	rows, err := s.Query(`
		SELECT run_id, log_path, transport, protocol, speed_factor,
		       records_sent, send_failures, warnings, status,
		       started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(
			&r.RunID, &r.LogPath, &r.Transport, &r.Protocol, &r.SpeedFactor,
			&r.RecordsSent, &r.SendFailures, &r.Warnings, &r.Status,
			&started, &finished,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("bad started_at %q: %w", started, err)
		}
		if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("bad finished_at %q: %w", finished, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

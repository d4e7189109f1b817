package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// OutcomeRunning marks a job that has started but not finished.
const OutcomeRunning = "running"

// Record is one job row.
type Record struct {
	ID          string        `json:"id"`
	Kind        string        `json:"kind"`
	Object      string        `json:"object"`
	Path        string        `json:"path,omitempty"`
	Exposure    time.Duration `json:"exposure"`
	ExposureMax time.Duration `json:"exposure_max,omitempty"`
	Layers      int           `json:"layers"`
	LayersDone  int           `json:"layers_done"`
	Outcome     string        `json:"outcome"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
}

// Duration is the job's wall time, or zero while running.
func (r Record) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

const jobColumns = "id, kind, object, object_path, exposure_ms, exposure_max_ms, layers, layers_done, outcome, error_message, started_at, finished_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		rec         Record
		object      sql.NullString
		path        sql.NullString
		exposure    int64
		exposureMax int64
		errorMsg    sql.NullString
		startedRaw  string
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&rec.ID,
		&rec.Kind,
		&object,
		&path,
		&exposure,
		&exposureMax,
		&rec.Layers,
		&rec.LayersDone,
		&rec.Outcome,
		&errorMsg,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	rec.Object = object.String
	rec.Path = path.String
	rec.Exposure = time.Duration(exposure) * time.Millisecond
	rec.ExposureMax = time.Duration(exposureMax) * time.Millisecond
	rec.Error = errorMsg.String
	if started, err := time.Parse(time.RFC3339Nano, startedRaw); err == nil {
		rec.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := time.Parse(time.RFC3339Nano, finishedRaw.String); err == nil {
			rec.FinishedAt = &finished
		}
	}
	return &rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

// Start inserts a running job.
func (s *Store) Start(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return errors.New("job id is required")
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	_, err := s.exec(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Kind, nullableString(rec.Object), nullableString(rec.Path),
		rec.Exposure.Milliseconds(), rec.ExposureMax.Milliseconds(),
		rec.Layers, rec.LayersDone, OutcomeRunning, nil,
		rec.StartedAt.UTC().Format(time.RFC3339Nano), nil,
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", rec.ID, err)
	}
	return nil
}

// Finish writes the final state of a job, inserting it if Start was never
// called.
func (s *Store) Finish(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return errors.New("job id is required")
	}
	if rec.FinishedAt == nil {
		now := time.Now()
		rec.FinishedAt = &now
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = *rec.FinishedAt
	}
	_, err := s.exec(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			object = excluded.object,
			layers = excluded.layers,
			layers_done = excluded.layers_done,
			outcome = excluded.outcome,
			error_message = excluded.error_message,
			finished_at = excluded.finished_at`,
		rec.ID, rec.Kind, nullableString(rec.Object), nullableString(rec.Path),
		rec.Exposure.Milliseconds(), rec.ExposureMax.Milliseconds(),
		rec.Layers, rec.LayersDone, rec.Outcome, nullableString(rec.Error),
		rec.StartedAt.UTC().Format(time.RFC3339Nano), nullableTime(rec.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("finish job %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns one job.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return rec, nil
}

// List returns the newest jobs first. A limit of zero or less returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Stats counts jobs by outcome.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(1) FROM jobs GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, err
		}
		stats[outcome] = count
	}
	return stats, rows.Err()
}

// CloseInterrupted marks jobs left running by a dead process as faults.
func (s *Store) CloseInterrupted(ctx context.Context, outcome string) (int64, error) {
	res, err := s.exec(ctx,
		`UPDATE jobs SET outcome = ?, error_message = ?, finished_at = ? WHERE outcome = ?`,
		outcome, "control process exited mid-job", time.Now().UTC().Format(time.RFC3339Nano), OutcomeRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("close interrupted jobs: %w", err)
	}
	return res.RowsAffected()
}

// Clear deletes every finished job.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM jobs WHERE outcome <> ?`, OutcomeRunning)
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	return res.RowsAffected()
}

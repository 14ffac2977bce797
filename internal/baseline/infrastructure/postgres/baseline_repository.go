package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"vendwatch/internal/baseline"
)

// HourlyRepository persists hourly baselines in PostgreSQL.
type HourlyRepository struct {
	db *sql.DB
}

// NewHourlyRepository constructs a repository backed by db.
func NewHourlyRepository(db *sql.DB) (*HourlyRepository, error) {
	if db == nil {
		return nil, errors.New("postgres: nil db")
	}
	return &HourlyRepository{db: db}, nil
}

// Get returns the baseline for one (machine, hour-of-day) cell, or nil when
// the cell has never been learned.
func (r *HourlyRepository) Get(ctx context.Context, machineID int64, hour int) (*baseline.Hourly, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("postgres: repository not initialised")
	}
	const q = `
		SELECT machine_id, hour_of_day, median_completed, median_failed,
		       median_void_complete, median_void_failed, updated_at
		FROM hourly_baselines
		WHERE machine_id = $1 AND hour_of_day = $2`
	var row baseline.Hourly
	err := r.db.QueryRowContext(ctx, q, machineID, hour).Scan(
		&row.MachineID,
		&row.Hour,
		&row.MedianCompleted,
		&row.MedianFailed,
		&row.MedianVoidComplete,
		&row.MedianVoidFailed,
		&row.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get hourly baseline: %w", err)
	}
	row.UpdatedAt = row.UpdatedAt.UTC()
	return &row, nil
}

// Upsert writes one baseline cell, replacing any previous value.
func (r *HourlyRepository) Upsert(ctx context.Context, row *baseline.Hourly) error {
	if r == nil || r.db == nil {
		return errors.New("postgres: repository not initialised")
	}
	if row == nil {
		return errors.New("postgres: nil baseline row")
	}
	const q = `
		INSERT INTO hourly_baselines (
			machine_id, hour_of_day, median_completed, median_failed,
			median_void_complete, median_void_failed, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (machine_id, hour_of_day) DO UPDATE SET
			median_completed = EXCLUDED.median_completed,
			median_failed = EXCLUDED.median_failed,
			median_void_complete = EXCLUDED.median_void_complete,
			median_void_failed = EXCLUDED.median_void_failed,
			updated_at = EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, q,
		row.MachineID,
		row.Hour,
		row.MedianCompleted,
		row.MedianFailed,
		row.MedianVoidComplete,
		row.MedianVoidFailed,
		row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert hourly baseline: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	alerts "vendwatch/internal/alerts/domain"
)

// CursorRepository stores the per-machine last-examined-transaction
// watermarks.
type CursorRepository struct {
	db *sql.DB
}

// NewCursorRepository constructs a repository.
func NewCursorRepository(db *sql.DB) *CursorRepository {
	return &CursorRepository{db: db}
}

// GetBySerial returns the cursor for a machine, or nil when none exists yet.
func (r *CursorRepository) GetBySerial(ctx context.Context, serial string) (*alerts.TrackingCursor, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("cursor repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT machine_serial, last_transaction_id, last_checked_at, updated_at
FROM tracking_cursors
WHERE machine_serial = $1`, serial)

	var cursor alerts.TrackingCursor
	if err := row.Scan(
		&cursor.MachineSerial,
		&cursor.LastTransactionID,
		&cursor.LastCheckedAt,
		&cursor.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	cursor.LastCheckedAt = cursor.LastCheckedAt.UTC()
	cursor.UpdatedAt = cursor.UpdatedAt.UTC()
	return &cursor, nil
}

// Upsert inserts or advances a cursor.
func (r *CursorRepository) Upsert(ctx context.Context, cursor *alerts.TrackingCursor) error {
	if r == nil || r.db == nil {
		return errors.New("cursor repo: nil db")
	}
	if cursor == nil {
		return errors.New("cursor repo: nil cursor")
	}
	if cursor.UpdatedAt.IsZero() {
		cursor.UpdatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO tracking_cursors (
	machine_serial, last_transaction_id, last_checked_at, updated_at
) VALUES (
	$1, $2, $3, $4
)
ON CONFLICT (machine_serial)
DO UPDATE SET
	last_transaction_id = EXCLUDED.last_transaction_id,
	last_checked_at = EXCLUDED.last_checked_at,
	updated_at = EXCLUDED.updated_at`,
		cursor.MachineSerial,
		cursor.LastTransactionID,
		cursor.LastCheckedAt,
		cursor.UpdatedAt,
	)
	return err
}

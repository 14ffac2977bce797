package postgres

import (
	"context"
	"database/sql"
	"errors"

	alerts "vendwatch/internal/alerts/domain"
)

// KindRepository reads the alert kind catalogue.
type KindRepository struct {
	db *sql.DB
}

// NewKindRepository constructs a repository.
func NewKindRepository(db *sql.DB) *KindRepository {
	return &KindRepository{db: db}
}

// GetByCode returns the kind with the given code, or nil when the catalogue
// has no such entry.
func (r *KindRepository) GetByCode(ctx context.Context, code string) (*alerts.Kind, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("kind repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, code, display_name, severity
FROM alert_kinds
WHERE code = $1`, code)

	var kind alerts.Kind
	var displayName sql.NullString
	var severity sql.NullString
	if err := row.Scan(&kind.ID, &kind.Code, &displayName, &severity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if displayName.Valid {
		kind.DisplayName = displayName.String
	}
	if severity.Valid {
		kind.Severity = severity.String
	}
	return &kind, nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"

	fleet "vendwatch/internal/fleet/domain"
)

// PartnerRepository reads partner reference data.
type PartnerRepository struct {
	db *sql.DB
}

// NewPartnerRepository constructs a repository.
func NewPartnerRepository(db *sql.DB) *PartnerRepository {
	return &PartnerRepository{db: db}
}

// List returns all partners that are not soft-deleted.
func (r *PartnerRepository) List(ctx context.Context) ([]fleet.Partner, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("partner repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, is_deleted
FROM partners
WHERE is_deleted = false
ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var partners []fleet.Partner
	for rows.Next() {
		var p fleet.Partner
		if err := rows.Scan(&p.ID, &p.Name, &p.Deleted); err != nil {
			return nil, err
		}
		partners = append(partners, p)
	}
	return partners, rows.Err()
}

// GetByName returns the partner with the given name, or nil when absent.
func (r *PartnerRepository) GetByName(ctx context.Context, name string) (*fleet.Partner, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("partner repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, is_deleted
FROM partners
WHERE name = $1 AND is_deleted = false`, name)

	var p fleet.Partner
	if err := row.Scan(&p.ID, &p.Name, &p.Deleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

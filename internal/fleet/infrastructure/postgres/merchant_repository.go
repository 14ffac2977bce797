package postgres

import (
	"context"
	"database/sql"
	"errors"

	fleet "vendwatch/internal/fleet/domain"
)

// MerchantRepository reads merchant reference data.
type MerchantRepository struct {
	db *sql.DB
}

// NewMerchantRepository constructs a repository.
func NewMerchantRepository(db *sql.DB) *MerchantRepository {
	return &MerchantRepository{db: db}
}

// ListByPartner returns the non-deleted merchants owned by a partner.
func (r *MerchantRepository) ListByPartner(ctx context.Context, partnerID int64) ([]fleet.Merchant, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("merchant repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, partner_id, name, is_deleted
FROM merchants
WHERE partner_id = $1 AND is_deleted = false
ORDER BY id`, partnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var merchants []fleet.Merchant
	for rows.Next() {
		var m fleet.Merchant
		if err := rows.Scan(&m.ID, &m.PartnerID, &m.Name, &m.Deleted); err != nil {
			return nil, err
		}
		merchants = append(merchants, m)
	}
	return merchants, rows.Err()
}

// GetByID returns a merchant by id, or nil when absent.
func (r *MerchantRepository) GetByID(ctx context.Context, id int64) (*fleet.Merchant, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("merchant repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, partner_id, name, is_deleted
FROM merchants
WHERE id = $1`, id)

	var m fleet.Merchant
	if err := row.Scan(&m.ID, &m.PartnerID, &m.Name, &m.Deleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"

	alerts "vendwatch/internal/alerts/domain"
)

// RecipientRepository reads recipient configuration per (kind, partner).
type RecipientRepository struct {
	db *sql.DB
}

// NewRecipientRepository constructs a repository.
func NewRecipientRepository(db *sql.DB) *RecipientRepository {
	return &RecipientRepository{db: db}
}

// Get returns the recipient configuration for a (kind, partner) pair, or nil
// when no configuration exists. Absent configuration means the alert is not
// sent; there is no default recipient list.
func (r *RecipientRepository) Get(ctx context.Context, kindID, partnerID int64) (*alerts.RecipientConfig, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("recipient repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT kind_id, partner_id, to_addrs, cc_addrs, bcc_addrs
FROM alert_recipients
WHERE kind_id = $1 AND partner_id = $2`, kindID, partnerID)

	var cfg alerts.RecipientConfig
	var to sql.NullString
	var cc sql.NullString
	var bcc sql.NullString
	if err := row.Scan(&cfg.KindID, &cfg.PartnerID, &to, &cc, &bcc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if to.Valid {
		cfg.To = to.String
	}
	if cc.Valid {
		cfg.Cc = cc.String
	}
	if bcc.Valid {
		cfg.Bcc = bcc.String
	}
	return &cfg, nil
}

package audit

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const insertEntry = `
INSERT INTO audit_logs (
	id, partner, actor, role, action, resource_type, resource_id,
	metadata, payload_digest, ip, user_agent, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

// Repository persists audit entries to the audit_logs table.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs an audit repository.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Log normalizes and writes one entry.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	entry.normalize(time.Now().UTC())

	_, err := r.db.ExecContext(ctx, insertEntry,
		entry.ID, entry.Partner, entry.Actor, entry.Role,
		entry.Action, entry.ResourceType, entry.ResourceID,
		entry.Metadata, entry.PayloadDigest, entry.IP, entry.UserAgent,
		entry.CreatedAt)
	return err
}

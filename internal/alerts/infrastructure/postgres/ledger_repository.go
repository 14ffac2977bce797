package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	alerts "vendwatch/internal/alerts/domain"
)

// LedgerRepository stores the last-confirmed-send records that govern
// cooldown and cross-restart deduplication.
type LedgerRepository struct {
	db *sql.DB
}

// NewLedgerRepository constructs a repository.
func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

const ledgerColumns = `id, machine_id, machine_serial, transaction_id, kind_id, partner_name, last_sent_at, updated_at`

type ledgerScanner interface {
	Scan(dest ...any) error
}

func scanLedgerEntry(row ledgerScanner) (*alerts.LedgerEntry, error) {
	var entry alerts.LedgerEntry
	var machineID sql.NullInt64
	var serial sql.NullString
	var transactionID sql.NullInt64
	var partnerName sql.NullString
	err := row.Scan(
		&entry.ID,
		&machineID,
		&serial,
		&transactionID,
		&entry.KindID,
		&partnerName,
		&entry.LastSentAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if machineID.Valid {
		entry.MachineID = machineID.Int64
	}
	if serial.Valid {
		entry.MachineSerial = serial.String
	}
	if transactionID.Valid {
		entry.TransactionID = transactionID.Int64
	}
	if partnerName.Valid {
		entry.PartnerName = partnerName.String
	}
	entry.LastSentAt = entry.LastSentAt.UTC()
	entry.UpdatedAt = entry.UpdatedAt.UTC()
	return &entry, nil
}

// LatestByMachine returns the newest entry for (machine id, kind), or nil.
func (r *LedgerRepository) LatestByMachine(ctx context.Context, machineID, kindID int64) (*alerts.LedgerEntry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+ledgerColumns+`
FROM alert_ledger
WHERE machine_id = $1 AND kind_id = $2
ORDER BY last_sent_at DESC
LIMIT 1`, machineID, kindID)
	return scanLedgerEntry(row)
}

// LatestBySerial returns the newest entry for (machine serial, kind), or nil.
func (r *LedgerRepository) LatestBySerial(ctx context.Context, serial string, kindID int64) (*alerts.LedgerEntry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+ledgerColumns+`
FROM alert_ledger
WHERE machine_serial = $1 AND kind_id = $2
ORDER BY last_sent_at DESC
LIMIT 1`, serial, kindID)
	return scanLedgerEntry(row)
}

// LatestByTransaction returns the newest entry for (transaction id, kind),
// or nil. Used by the per-transaction void-failed flow.
func (r *LedgerRepository) LatestByTransaction(ctx context.Context, transactionID, kindID int64) (*alerts.LedgerEntry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+ledgerColumns+`
FROM alert_ledger
WHERE transaction_id = $1 AND kind_id = $2
ORDER BY last_sent_at DESC
LIMIT 1`, transactionID, kindID)
	return scanLedgerEntry(row)
}

// LatestAnyBySerial returns the newest entry for a serial regardless of kind.
// This is the most lenient fallback in the lookup chain.
func (r *LedgerRepository) LatestAnyBySerial(ctx context.Context, serial string) (*alerts.LedgerEntry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+ledgerColumns+`
FROM alert_ledger
WHERE machine_serial = $1
ORDER BY last_sent_at DESC
LIMIT 1`, serial)
	return scanLedgerEntry(row)
}

// Upsert updates an existing entry in place when entry.ID is set, else
// inserts a new row. Callers must only invoke this after a confirmed send.
func (r *LedgerRepository) Upsert(ctx context.Context, entry *alerts.LedgerEntry) error {
	if r == nil || r.db == nil {
		return errors.New("ledger repo: nil db")
	}
	if entry == nil {
		return errors.New("ledger repo: nil entry")
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	if entry.ID != 0 {
		_, err := r.db.ExecContext(ctx, `
UPDATE alert_ledger
SET partner_name = $1, last_sent_at = $2, updated_at = $3
WHERE id = $4`,
			nullString(entry.PartnerName),
			entry.LastSentAt,
			entry.UpdatedAt,
			entry.ID,
		)
		return err
	}
	return r.db.QueryRowContext(ctx, `
INSERT INTO alert_ledger (
	machine_id, machine_serial, transaction_id, kind_id,
	partner_name, last_sent_at, updated_at
) VALUES (
	$1, $2, $3, $4,
	$5, $6, $7
)
RETURNING id`,
		nullInt64(entry.MachineID),
		nullString(entry.MachineSerial),
		nullInt64(entry.TransactionID),
		entry.KindID,
		nullString(entry.PartnerName),
		entry.LastSentAt,
		entry.UpdatedAt,
	).Scan(&entry.ID)
}

func nullInt64(value int64) sql.NullInt64 {
	return sql.NullInt64{Int64: value, Valid: value != 0}
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sales "vendwatch/internal/sales/domain"
)

// TransactionRepository reads the time-ordered transaction stream.
type TransactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository constructs a repository.
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `id, machine_serial, created_at, status_code, status_description, amount`

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (sales.Transaction, error) {
	var t sales.Transaction
	var desc sql.NullString
	var amount sql.NullFloat64
	err := row.Scan(
		&t.ID,
		&t.MachineSerial,
		&t.Timestamp,
		&t.StatusCode,
		&desc,
		&amount,
	)
	if err != nil {
		return sales.Transaction{}, err
	}
	t.Timestamp = t.Timestamp.UTC()
	if desc.Valid {
		t.StatusDescription = desc.String
	}
	if amount.Valid {
		t.Amount = amount.Float64
	}
	return t, nil
}

func (r *TransactionRepository) query(ctx context.Context, query string, args ...any) ([]sales.Transaction, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("transaction repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []sales.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// LatestBySerial returns the most recent transactions for a machine,
// newest first.
func (r *TransactionRepository) LatestBySerial(ctx context.Context, serial string, limit int) ([]sales.Transaction, error) {
	return r.query(ctx, `
SELECT `+transactionColumns+`
FROM transactions
WHERE machine_serial = $1
ORDER BY id DESC
LIMIT $2`, serial, limit)
}

// LatestAfterID returns transactions with id greater than afterID,
// newest first.
func (r *TransactionRepository) LatestAfterID(ctx context.Context, serial string, afterID int64, limit int) ([]sales.Transaction, error) {
	return r.query(ctx, `
SELECT `+transactionColumns+`
FROM transactions
WHERE machine_serial = $1 AND id > $2
ORDER BY id DESC
LIMIT $3`, serial, afterID, limit)
}

// LatestAfterTime returns transactions created after the given instant,
// newest first.
func (r *TransactionRepository) LatestAfterTime(ctx context.Context, serial string, after time.Time, limit int) ([]sales.Transaction, error) {
	return r.query(ctx, `
SELECT `+transactionColumns+`
FROM transactions
WHERE machine_serial = $1 AND created_at > $2
ORDER BY id DESC
LIMIT $3`, serial, after, limit)
}

// RangeBySerial returns transactions in [start, end), oldest first.
func (r *TransactionRepository) RangeBySerial(ctx context.Context, serial string, start, end time.Time) ([]sales.Transaction, error) {
	return r.query(ctx, `
SELECT `+transactionColumns+`
FROM transactions
WHERE machine_serial = $1 AND created_at >= $2 AND created_at < $3
ORDER BY id`, serial, start, end)
}

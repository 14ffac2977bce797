package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	fleet "vendwatch/internal/fleet/domain"
)

// MachineRepository reads machine reference data.
type MachineRepository struct {
	db *sql.DB
}

// NewMachineRepository constructs a repository.
func NewMachineRepository(db *sql.DB) *MachineRepository {
	return &MachineRepository{db: db}
}

const machineColumns = `id, serial_no, merchant_id, name, status, is_deleted, terminate_code, product_lock_count`

type scanner interface {
	Scan(dest ...any) error
}

func scanMachine(row scanner) (fleet.Machine, error) {
	var m fleet.Machine
	var name sql.NullString
	var terminateCode sql.NullString
	err := row.Scan(
		&m.ID,
		&m.SerialNo,
		&m.MerchantID,
		&name,
		&m.Status,
		&m.Deleted,
		&terminateCode,
		&m.ProductLockCount,
	)
	if err != nil {
		return fleet.Machine{}, err
	}
	if name.Valid {
		m.Name = name.String
	}
	if terminateCode.Valid {
		m.TerminateCode = terminateCode.String
	}
	return m, nil
}

// ListActiveByMerchants returns online, non-deleted machines for the merchants.
func (r *MachineRepository) ListActiveByMerchants(ctx context.Context, merchantIDs []int64) ([]fleet.Machine, error) {
	return r.listByMerchants(ctx, merchantIDs, fleet.MachineStatusOnline)
}

// ListOfflineByMerchants returns offline, non-deleted machines for the merchants.
func (r *MachineRepository) ListOfflineByMerchants(ctx context.Context, merchantIDs []int64) ([]fleet.Machine, error) {
	return r.listByMerchants(ctx, merchantIDs, fleet.MachineStatusOffline)
}

// ListByMerchants returns all non-deleted machines for the merchants
// regardless of online status.
func (r *MachineRepository) ListByMerchants(ctx context.Context, merchantIDs []int64) ([]fleet.Machine, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("machine repo: nil db")
	}
	if len(merchantIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, 0, len(merchantIDs))
	args := make([]any, 0, len(merchantIDs))
	for i, id := range merchantIDs {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, id)
	}
	query := fmt.Sprintf(`
SELECT %s
FROM machines
WHERE is_deleted = false AND merchant_id IN (%s)
ORDER BY id`, machineColumns, strings.Join(placeholders, ", "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var machines []fleet.Machine
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, err
		}
		machines = append(machines, m)
	}
	return machines, rows.Err()
}

func (r *MachineRepository) listByMerchants(ctx context.Context, merchantIDs []int64, status int) ([]fleet.Machine, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("machine repo: nil db")
	}
	if len(merchantIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, 0, len(merchantIDs))
	args := make([]any, 0, len(merchantIDs)+1)
	args = append(args, status)
	for i, id := range merchantIDs {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
		args = append(args, id)
	}
	query := fmt.Sprintf(`
SELECT %s
FROM machines
WHERE status = $1 AND is_deleted = false AND merchant_id IN (%s)
ORDER BY id`, machineColumns, strings.Join(placeholders, ", "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var machines []fleet.Machine
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, err
		}
		machines = append(machines, m)
	}
	return machines, rows.Err()
}

// GetBySerial returns a machine by serial number, or nil when absent.
func (r *MachineRepository) GetBySerial(ctx context.Context, serial string) (*fleet.Machine, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("machine repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+machineColumns+`
FROM machines
WHERE serial_no = $1`, serial)

	m, err := scanMachine(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// GetByID returns a machine by id, or nil when absent.
func (r *MachineRepository) GetByID(ctx context.Context, id int64) (*fleet.Machine, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("machine repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+machineColumns+`
FROM machines
WHERE id = $1`, id)

	m, err := scanMachine(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

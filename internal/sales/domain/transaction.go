package domain

import (
	"strings"
	"time"
)

// Transaction status codes as emitted by the machines.
const (
	StatusSaleCompleted = "SALE_COMPLETED"
	StatusSaleFailed    = "SALE_FAILED"
	StatusVoidComplete  = "VOID_COMPLETE"
	StatusVoidCompleted = "VOID_COMPLETED"
	StatusVoidFailed    = "VOID_FAILED"
)

// Transaction is an immutable record from the transaction stream.
type Transaction struct {
	ID                int64
	MachineSerial     string
	Timestamp         time.Time
	StatusCode        string
	StatusDescription string
	Amount            float64
}

// HasStatus reports whether the transaction carries the given status code.
func (t Transaction) HasStatus(code string) bool {
	return strings.EqualFold(t.StatusCode, code)
}

// IsTimeout reports whether the free-text status description marks the
// transaction as timed out. Matching is by uppercased substring since the
// machines are not consistent about spelling.
func (t Transaction) IsTimeout() bool {
	desc := strings.ToUpper(t.StatusDescription)
	return strings.Contains(desc, "TIME OUT") ||
		strings.Contains(desc, "TIME_OUT") ||
		strings.Contains(desc, "TIMEOUT")
}

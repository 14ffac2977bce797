package domain

import "time"

// Alert kind codes known to the engine. The catalogue itself lives in the
// database; a detector that cannot resolve its kind skips evaluation.
const (
	KindSaleFailed     = "SALE_FAILED"
	KindVoidFailed     = "VOID_FAILED"
	KindTimeout        = "TIMEOUT"
	KindVoidCompleted  = "VOID_COMPLETED"
	KindOfflineMachine = "OFFLINE_VM"
	KindBaselineDrop   = "HOURLY_SALES_BASELINE_DROP"
)

// Kind is an immutable catalogue entry describing one alert type.
type Kind struct {
	ID          int64
	Code        string
	DisplayName string
	Severity    string
}

// LedgerEntry records the last confirmed alert send for a key. Machine-scoped
// alerts key on machine id or serial; the per-transaction void-failed flow
// keys on transaction id. A zero MachineID or TransactionID means absent.
type LedgerEntry struct {
	ID            int64
	MachineID     int64
	MachineSerial string
	TransactionID int64
	KindID        int64
	PartnerName   string
	LastSentAt    time.Time
	UpdatedAt     time.Time
}

// TrackingCursor is the per-machine watermark of the last examined
// transaction. It advances after every pass whether or not an alert fired.
type TrackingCursor struct {
	MachineSerial     string
	LastTransactionID int64
	LastCheckedAt     time.Time
	UpdatedAt         time.Time
}

// RecipientConfig holds comma-joined recipient lists for a (kind, partner)
// pair. Empty strings mean no recipients of that class.
type RecipientConfig struct {
	KindID    int64
	PartnerID int64
	To        string
	Cc        string
	Bcc       string
}

package monitor

import (
	"context"
	"time"

	"vendwatch/internal/alerts/dispatch"
	alerts "vendwatch/internal/alerts/domain"
	sales "vendwatch/internal/sales/domain"
)

// TransactionReader is the transaction stream view the detectors need.
type TransactionReader interface {
	LatestBySerial(ctx context.Context, serial string, limit int) ([]sales.Transaction, error)
	LatestAfterID(ctx context.Context, serial string, afterID int64, limit int) ([]sales.Transaction, error)
}

// Alerter is the shared send path every detector hands its candidates to.
type Alerter interface {
	Dispatch(ctx context.Context, req dispatch.Request) (bool, error)
	MarkHealthy(serial, kind string)
}

// CursorStore persists per-machine watermarks for cursor-based detectors.
type CursorStore interface {
	GetBySerial(ctx context.Context, serial string) (*alerts.TrackingCursor, error)
	Upsert(ctx context.Context, cursor *alerts.TrackingCursor) error
}

// Clock provides time for evaluation.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

package baseline

import (
	"context"
	"sort"
	"time"
)

// Hourly is the learned statistical reference for one (machine, hour-of-day)
// cell: the median per-day count of each status code across the lookback
// window. Cells are recomputed wholesale by the learner, never incremented.
type Hourly struct {
	MachineID          int64
	Hour               int
	MedianCompleted    float64
	MedianFailed       float64
	MedianVoidComplete float64
	MedianVoidFailed   float64
	UpdatedAt          time.Time
}

// Store persists hourly baselines.
type Store interface {
	Get(ctx context.Context, machineID int64, hour int) (*Hourly, error)
	Upsert(ctx context.Context, row *Hourly) error
}

// Median returns the median of values: ascending sort, even-sized samples
// average the two middle values, an empty sample is 0.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

package baseline

import (
	"testing"
	"time"

	sales "vendwatch/internal/sales/domain"
)

func TestMedian(t *testing.T) {
	cases := []struct {
		name   string
		values []float64
		want   float64
	}{
		{name: "empty", values: nil, want: 0},
		{name: "single", values: []float64{4}, want: 4},
		{name: "odd", values: []float64{9, 1, 5}, want: 5},
		{name: "even averages middles", values: []float64{4, 1, 3, 2}, want: 2.5},
		{name: "duplicates", values: []float64{2, 2, 2, 8}, want: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Median(tc.values); got != tc.want {
				t.Fatalf("median(%v) = %f, want %f", tc.values, got, tc.want)
			}
		})
	}
}

func TestMedianDoesNotMutateInput(t *testing.T) {
	values := []float64{3, 1, 2}
	_ = Median(values)
	if values[0] != 3 || values[1] != 1 || values[2] != 2 {
		t.Fatalf("input slice mutated: %v", values)
	}
}

func TestComputeHourly_EmptyYieldsZeroGrid(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := ComputeHourly(42, nil, now)
	if len(rows) != 24 {
		t.Fatalf("expected 24 rows, got %d", len(rows))
	}
	for _, row := range rows {
		if row.MachineID != 42 {
			t.Fatalf("unexpected machine id %d", row.MachineID)
		}
		if row.MedianCompleted != 0 || row.MedianFailed != 0 || row.MedianVoidComplete != 0 || row.MedianVoidFailed != 0 {
			t.Fatalf("expected zero medians for hour %d, got %+v", row.Hour, row)
		}
	}
}

func TestComputeHourly_MedianAcrossDays(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	day := func(d, hour, minute int) time.Time {
		return time.Date(2026, 3, d, hour, minute, 0, 0, time.UTC)
	}
	var txs []sales.Transaction
	addSales := func(ts time.Time, n int, status string) {
		for i := 0; i < n; i++ {
			txs = append(txs, sales.Transaction{
				ID:         int64(len(txs) + 1),
				Timestamp:  ts.Add(time.Duration(i) * time.Second),
				StatusCode: status,
			})
		}
	}
	// 09:00 hour across three days: 2, 4, 6 completed sales.
	addSales(day(1, 9, 5), 2, sales.StatusSaleCompleted)
	addSales(day(2, 9, 10), 4, sales.StatusSaleCompleted)
	addSales(day(3, 9, 15), 6, sales.StatusSaleCompleted)
	// One void-complete on a single day at 09:00.
	addSales(day(2, 9, 30), 1, sales.StatusVoidComplete)

	rows := ComputeHourly(42, txs, now)
	nine := rows[9]
	if nine.MedianCompleted != 4 {
		t.Fatalf("expected completed median 4, got %f", nine.MedianCompleted)
	}
	// Void-complete counts are 0, 1, 0 across the three observed days.
	if nine.MedianVoidComplete != 0 {
		t.Fatalf("expected void-complete median 0, got %f", nine.MedianVoidComplete)
	}
	// Hours with no transactions on any day stay zero.
	if rows[3].MedianCompleted != 0 {
		t.Fatalf("expected zero median at quiet hour, got %f", rows[3].MedianCompleted)
	}
	if !nine.UpdatedAt.Equal(now) {
		t.Fatalf("expected updated_at %v, got %v", now, nine.UpdatedAt)
	}
}

func TestComputeHourly_StatusBucketing(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ts := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	txs := []sales.Transaction{
		{ID: 1, Timestamp: ts, StatusCode: sales.StatusSaleCompleted},
		{ID: 2, Timestamp: ts, StatusCode: sales.StatusSaleFailed},
		{ID: 3, Timestamp: ts, StatusCode: sales.StatusVoidComplete},
		{ID: 4, Timestamp: ts, StatusCode: sales.StatusVoidFailed},
		// Unknown status codes are not counted anywhere.
		{ID: 5, Timestamp: ts, StatusCode: "REFUND_PENDING"},
	}
	rows := ComputeHourly(42, txs, now)
	hour := rows[14]
	if hour.MedianCompleted != 1 || hour.MedianFailed != 1 || hour.MedianVoidComplete != 1 || hour.MedianVoidFailed != 1 {
		t.Fatalf("unexpected bucketing: %+v", hour)
	}
}

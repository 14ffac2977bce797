package monitor

import (
	"testing"

	sales "vendwatch/internal/sales/domain"
)

func txsWithStatuses(codes ...string) []sales.Transaction {
	txs := make([]sales.Transaction, len(codes))
	for i, code := range codes {
		txs[i] = sales.Transaction{ID: int64(len(codes) - i), StatusCode: code}
	}
	return txs
}

func TestConsecutiveMatches(t *testing.T) {
	match := statusMatcher([]string{sales.StatusSaleFailed})

	// Newest first: three failures, then a success.
	txs := txsWithStatuses(
		sales.StatusSaleFailed,
		sales.StatusSaleFailed,
		sales.StatusSaleFailed,
		sales.StatusSaleCompleted,
		sales.StatusSaleFailed,
	)
	if got := ConsecutiveMatches(txs, match); got != 3 {
		t.Fatalf("expected streak 3, got %d", got)
	}

	// A success at the head breaks the streak immediately.
	txs = txsWithStatuses(sales.StatusSaleCompleted, sales.StatusSaleFailed, sales.StatusSaleFailed)
	if got := ConsecutiveMatches(txs, match); got != 0 {
		t.Fatalf("expected streak 0, got %d", got)
	}

	if got := ConsecutiveMatches(nil, match); got != 0 {
		t.Fatalf("expected streak 0 for empty window, got %d", got)
	}
}

func TestCountMatches(t *testing.T) {
	match := statusMatcher([]string{sales.StatusSaleFailed})
	txs := txsWithStatuses(
		sales.StatusSaleFailed,
		sales.StatusSaleCompleted,
		sales.StatusSaleFailed,
		sales.StatusSaleFailed,
		sales.StatusSaleCompleted,
		sales.StatusSaleFailed,
	)

	if got := CountMatches(txs, 5, match); got != 3 {
		t.Fatalf("expected 3 matches in first 5, got %d", got)
	}
	// Limit beyond the window evaluates the window as-is.
	if got := CountMatches(txs, 50, match); got != 4 {
		t.Fatalf("expected 4 matches in whole window, got %d", got)
	}
	if got := CountMatches(txs, 0, match); got != 4 {
		t.Fatalf("expected whole-window count with zero limit, got %d", got)
	}
}

func TestMatchPercentage(t *testing.T) {
	if got := MatchPercentage(5, 10); got != 50.0 {
		t.Fatalf("expected 50.0, got %f", got)
	}
	if got := MatchPercentage(0, 0); got != 0 {
		t.Fatalf("expected 0 for empty window, got %f", got)
	}
}

func TestStatusMatcherIsCaseInsensitive(t *testing.T) {
	match := statusMatcher([]string{sales.StatusSaleFailed})
	if !match(sales.Transaction{StatusCode: "sale_failed"}) {
		t.Fatalf("expected case-insensitive status match")
	}
	if match(sales.Transaction{StatusCode: sales.StatusSaleCompleted}) {
		t.Fatalf("unexpected match for completed sale")
	}
}

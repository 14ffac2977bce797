package monitor

import (
	sales "vendwatch/internal/sales/domain"
)

// ConsecutiveMatches counts matching transactions from the most recent one
// backward until the first non-match. Transactions must be ordered newest
// first; a single non-matching transaction breaks the streak immediately.
func ConsecutiveMatches(txs []sales.Transaction, match func(sales.Transaction) bool) int {
	count := 0
	for _, tx := range txs {
		if !match(tx) {
			break
		}
		count++
	}
	return count
}

// CountMatches counts matching transactions within the first limit entries.
// A window smaller than limit is evaluated as-is, never padded.
func CountMatches(txs []sales.Transaction, limit int, match func(sales.Transaction) bool) int {
	if limit > len(txs) || limit <= 0 {
		limit = len(txs)
	}
	count := 0
	for _, tx := range txs[:limit] {
		if match(tx) {
			count++
		}
	}
	return count
}

// MatchPercentage returns matches as a percentage of the window size.
func MatchPercentage(matches, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(matches) / float64(total) * 100
}

func statusMatcher(statuses []string) func(sales.Transaction) bool {
	return func(tx sales.Transaction) bool {
		for _, status := range statuses {
			if tx.HasStatus(status) {
				return true
			}
		}
		return false
	}
}

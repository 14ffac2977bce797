package baseline

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vendwatch/internal/alerts/dispatch"
	fleet "vendwatch/internal/fleet/domain"
	"vendwatch/internal/monitor"
	sales "vendwatch/internal/sales/domain"
)

type stubStore struct {
	cells   map[int64]map[int]*Hourly
	upserts []Hourly
}

func (s *stubStore) Get(_ context.Context, machineID int64, hour int) (*Hourly, error) {
	if byHour, ok := s.cells[machineID]; ok {
		return byHour[hour], nil
	}
	return nil, nil
}

func (s *stubStore) Upsert(_ context.Context, row *Hourly) error {
	s.upserts = append(s.upserts, *row)
	return nil
}

type stubSource struct {
	bySerial map[string][]sales.Transaction
}

func (s *stubSource) RangeBySerial(_ context.Context, serial string, start, end time.Time) ([]sales.Transaction, error) {
	var out []sales.Transaction
	for _, tx := range s.bySerial[serial] {
		if !tx.Timestamp.Before(start) && tx.Timestamp.Before(end) {
			out = append(out, tx)
		}
	}
	return out, nil
}

type stubDigester struct {
	requests []dispatch.DigestRequest
}

func (d *stubDigester) DispatchDigest(_ context.Context, req dispatch.DigestRequest) (bool, error) {
	d.requests = append(d.requests, req)
	return true, nil
}

type stubPartners struct{ partners []fleet.Partner }

func (s *stubPartners) List(_ context.Context) ([]fleet.Partner, error) { return s.partners, nil }

type stubMerchants struct{ byPartner map[int64][]fleet.Merchant }

func (s *stubMerchants) ListByPartner(_ context.Context, partnerID int64) ([]fleet.Merchant, error) {
	return s.byPartner[partnerID], nil
}

type stubMachines struct{ machines []fleet.Machine }

func (s *stubMachines) ListActiveByMerchants(_ context.Context, _ []int64) ([]fleet.Machine, error) {
	return s.machines, nil
}

func (s *stubMachines) ListOfflineByMerchants(_ context.Context, _ []int64) ([]fleet.Machine, error) {
	return nil, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func testFleetSweeper(t *testing.T, machines []fleet.Machine) *monitor.Sweeper {
	t.Helper()
	sweeper, err := monitor.NewSweeper(
		&stubPartners{partners: []fleet.Partner{{ID: 7, Name: "acme-vending"}}},
		&stubMerchants{byPartner: map[int64][]fleet.Merchant{7: {{ID: 70, PartnerID: 7}}}},
		&stubMachines{machines: machines},
		zerolog.Nop(),
	)
	if err != nil {
		t.Fatalf("sweeper: %v", err)
	}
	return sweeper
}

func completedAt(ts time.Time, n int) []sales.Transaction {
	txs := make([]sales.Transaction, n)
	for i := range txs {
		txs[i] = sales.Transaction{
			ID:         int64(i + 1),
			Timestamp:  ts.Add(time.Duration(i) * time.Minute),
			StatusCode: sales.StatusSaleCompleted,
		}
	}
	return txs
}

func TestDrop_BelowThresholdTriggersDigest(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 40, 0, 0, time.UTC)
	hourStart := now.Truncate(time.Hour)
	machines := []fleet.Machine{
		{ID: 1, SerialNo: "VM-0001", MerchantID: 70, Name: "Lobby A"},
	}
	// Median 10, threshold 0.30: fewer than 3 completed sales this hour is a
	// drop. Two sales observed.
	store := &stubStore{cells: map[int64]map[int]*Hourly{
		1: {12: {MachineID: 1, Hour: 12, MedianCompleted: 10}},
	}}
	source := &stubSource{bySerial: map[string][]sales.Transaction{
		"VM-0001": completedAt(hourStart.Add(5*time.Minute), 2),
	}}
	digester := &stubDigester{}
	d, err := NewDropDetector(store, source, testFleetSweeper(t, machines), digester, 0.30, 1, time.Hour, fixedClock{now: now}, zerolog.Nop())
	if err != nil {
		t.Fatalf("detector: %v", err)
	}

	if err := d.RunPass(context.Background()); err != nil {
		t.Fatalf("run pass: %v", err)
	}
	if len(digester.requests) != 1 {
		t.Fatalf("expected 1 digest, got %d", len(digester.requests))
	}
	req := digester.requests[0]
	if len(req.Rows) != 1 || req.Rows[0].Serial != "VM-0001" {
		t.Fatalf("unexpected digest rows: %+v", req.Rows)
	}
	if req.Rows[0].Completed != 2 || req.Rows[0].Baseline != 10 {
		t.Fatalf("unexpected row counts: %+v", req.Rows[0])
	}
	if !req.FailureAt.Equal(hourStart) {
		t.Fatalf("expected failure at hour start %v, got %v", hourStart, req.FailureAt)
	}
}

func TestDrop_AtThresholdStaysQuiet(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 40, 0, 0, time.UTC)
	hourStart := now.Truncate(time.Hour)
	machines := []fleet.Machine{{ID: 1, SerialNo: "VM-0001", MerchantID: 70}}
	// Exactly median*threshold completed sales is not a drop.
	store := &stubStore{cells: map[int64]map[int]*Hourly{
		1: {12: {MachineID: 1, Hour: 12, MedianCompleted: 10}},
	}}
	source := &stubSource{bySerial: map[string][]sales.Transaction{
		"VM-0001": completedAt(hourStart.Add(5*time.Minute), 3),
	}}
	digester := &stubDigester{}
	d, err := NewDropDetector(store, source, testFleetSweeper(t, machines), digester, 0.30, 1, time.Hour, fixedClock{now: now}, zerolog.Nop())
	if err != nil {
		t.Fatalf("detector: %v", err)
	}

	if err := d.RunPass(context.Background()); err != nil {
		t.Fatalf("run pass: %v", err)
	}
	if len(digester.requests) != 0 {
		t.Fatalf("expected no digest at the threshold boundary")
	}
}

func TestDrop_LowBaselineExcluded(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 40, 0, 0, time.UTC)
	machines := []fleet.Machine{{ID: 1, SerialNo: "VM-0001", MerchantID: 70}}
	store := &stubStore{cells: map[int64]map[int]*Hourly{
		1: {12: {MachineID: 1, Hour: 12, MedianCompleted: 0.5}},
	}}
	source := &stubSource{bySerial: map[string][]sales.Transaction{}}
	digester := &stubDigester{}
	d, err := NewDropDetector(store, source, testFleetSweeper(t, machines), digester, 0.30, 1, time.Hour, fixedClock{now: now}, zerolog.Nop())
	if err != nil {
		t.Fatalf("detector: %v", err)
	}

	if err := d.RunPass(context.Background()); err != nil {
		t.Fatalf("run pass: %v", err)
	}
	if len(digester.requests) != 0 {
		t.Fatalf("expected machines below the baseline floor to be excluded")
	}
}

func TestDrop_ConsecutiveHoursRequirement(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 40, 0, 0, time.UTC)
	prevHour := now.Truncate(time.Hour).Add(-time.Hour)
	machines := []fleet.Machine{{ID: 1, SerialNo: "VM-0001", MerchantID: 70}}
	store := &stubStore{cells: map[int64]map[int]*Hourly{
		1: {
			11: {MachineID: 1, Hour: 11, MedianCompleted: 10},
			12: {MachineID: 1, Hour: 12, MedianCompleted: 10},
		},
	}}
	// Current hour is empty; previous hour was healthy, so a two-hour
	// persistence requirement holds the alert back.
	source := &stubSource{bySerial: map[string][]sales.Transaction{
		"VM-0001": completedAt(prevHour.Add(5*time.Minute), 8),
	}}
	digester := &stubDigester{}
	d, err := NewDropDetector(store, source, testFleetSweeper(t, machines), digester, 0.30, 2, time.Hour, fixedClock{now: now}, zerolog.Nop())
	if err != nil {
		t.Fatalf("detector: %v", err)
	}
	if err := d.RunPass(context.Background()); err != nil {
		t.Fatalf("run pass: %v", err)
	}
	if len(digester.requests) != 0 {
		t.Fatalf("expected no digest while the previous hour was healthy")
	}

	// With the previous hour also dropped, the digest fires.
	source.bySerial["VM-0001"] = completedAt(prevHour.Add(5*time.Minute), 1)
	if err := d.RunPass(context.Background()); err != nil {
		t.Fatalf("run pass: %v", err)
	}
	if len(digester.requests) != 1 {
		t.Fatalf("expected digest once the drop persisted two hours")
	}
}

func TestLearner_SkipsRunInsideMinimumInterval(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	machines := []fleet.Machine{{ID: 1, SerialNo: "VM-0001", MerchantID: 70}}
	store := &stubStore{}
	source := &stubSource{bySerial: map[string][]sales.Transaction{}}
	learner, err := NewLearner(store, source, testFleetSweeper(t, machines), 1, 23*time.Hour, fixedClock{now: now}, zerolog.Nop())
	if err != nil {
		t.Fatalf("learner: %v", err)
	}

	if err := learner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	// A machine with no history still gets its full 24-row zero grid.
	if len(store.upserts) != 24 {
		t.Fatalf("expected 24 upserts, got %d", len(store.upserts))
	}

	if err := learner.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(store.upserts) != 24 {
		t.Fatalf("expected second run inside the interval to be skipped, got %d upserts", len(store.upserts))
	}
}

func TestLearner_SkipsMachineOutsidePartnerMerchants(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	machines := []fleet.Machine{{ID: 1, SerialNo: "VM-0001", MerchantID: 999}}
	store := &stubStore{}
	source := &stubSource{bySerial: map[string][]sales.Transaction{}}
	learner, err := NewLearner(store, source, testFleetSweeper(t, machines), 1, 0, fixedClock{now: now}, zerolog.Nop())
	if err != nil {
		t.Fatalf("learner: %v", err)
	}

	if err := learner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(store.upserts) != 0 {
		t.Fatalf("expected no upserts for machine outside the merchant set")
	}
}

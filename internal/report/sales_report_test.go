package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	fleet "vendwatch/internal/fleet/domain"
	sales "vendwatch/internal/sales/domain"
)

type stubPartners struct{ byName map[string]*fleet.Partner }

func (s *stubPartners) GetByName(_ context.Context, name string) (*fleet.Partner, error) {
	return s.byName[name], nil
}

type stubMerchants struct{ byPartner map[int64][]fleet.Merchant }

func (s *stubMerchants) ListByPartner(_ context.Context, partnerID int64) ([]fleet.Merchant, error) {
	return s.byPartner[partnerID], nil
}

type stubMachines struct{ machines []fleet.Machine }

func (s *stubMachines) ListByMerchants(_ context.Context, _ []int64) ([]fleet.Machine, error) {
	return s.machines, nil
}

type stubSource struct {
	bySerial map[string][]sales.Transaction
	failFor  string
}

func (s *stubSource) RangeBySerial(_ context.Context, serial string, start, end time.Time) ([]sales.Transaction, error) {
	if serial == s.failFor {
		return nil, errors.New("storage unavailable")
	}
	var out []sales.Transaction
	for _, tx := range s.bySerial[serial] {
		if !tx.Timestamp.Before(start) && tx.Timestamp.Before(end) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func testBuilder(t *testing.T, machines []fleet.Machine, source *stubSource) *Builder {
	t.Helper()
	b, err := NewBuilder(
		&stubPartners{byName: map[string]*fleet.Partner{"acme-vending": {ID: 7, Name: "acme-vending"}}},
		&stubMerchants{byPartner: map[int64][]fleet.Merchant{7: {{ID: 70, PartnerID: 7}}}},
		&stubMachines{machines: machines},
		source,
		zerolog.Nop(),
	)
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	return b
}

func TestBuild_BucketsAndTotals(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	inWindow := start.Add(6 * time.Hour)
	machines := []fleet.Machine{
		{ID: 1, SerialNo: "VM-0001", Name: "Lobby A", MerchantID: 70},
		{ID: 2, SerialNo: "VM-0002", Name: "Lobby B", MerchantID: 70},
	}
	source := &stubSource{bySerial: map[string][]sales.Transaction{
		"VM-0001": {
			{ID: 1, Timestamp: inWindow, StatusCode: sales.StatusSaleCompleted},
			{ID: 2, Timestamp: inWindow, StatusCode: sales.StatusSaleCompleted},
			{ID: 3, Timestamp: inWindow, StatusCode: sales.StatusSaleFailed},
			{ID: 4, Timestamp: inWindow, StatusCode: sales.StatusVoidFailed},
			// Outside the window, must not count.
			{ID: 5, Timestamp: end.Add(time.Minute), StatusCode: sales.StatusSaleCompleted},
		},
		"VM-0002": {
			{ID: 6, Timestamp: inWindow, StatusCode: sales.StatusVoidComplete},
		},
	}}

	rep, err := testBuilder(t, machines, source).Build(context.Background(), "acme-vending", start, end)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(rep.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rep.Rows))
	}
	first := rep.Rows[0]
	if first.Serial != "VM-0001" || first.Completed != 2 || first.Failed != 1 || first.VoidFailed != 1 {
		t.Fatalf("unexpected first row: %+v", first)
	}
	if rep.Rows[1].VoidCompleted != 1 {
		t.Fatalf("unexpected second row: %+v", rep.Rows[1])
	}
	if rep.TotalCompleted != 2 || rep.TotalFailed != 1 || rep.TotalVoidCompleted != 1 || rep.TotalVoidFailed != 1 {
		t.Fatalf("unexpected totals: %+v", rep)
	}
}

func TestBuild_UnknownPartner(t *testing.T) {
	b := testBuilder(t, nil, &stubSource{})
	if _, err := b.Build(context.Background(), "nobody", time.Now().Add(-time.Hour), time.Now()); err == nil {
		t.Fatalf("expected error for unknown partner")
	}
}

func TestBuild_InvalidWindow(t *testing.T) {
	b := testBuilder(t, nil, &stubSource{})
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if _, err := b.Build(context.Background(), "acme-vending", at, at); err == nil {
		t.Fatalf("expected error for empty window")
	}
}

func TestBuild_MachineFetchFailureYieldsZeroRow(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	machines := []fleet.Machine{
		{ID: 1, SerialNo: "VM-0001", Name: "Lobby A", MerchantID: 70},
		{ID: 2, SerialNo: "VM-0002", Name: "Lobby B", MerchantID: 70},
	}
	source := &stubSource{
		failFor: "VM-0001",
		bySerial: map[string][]sales.Transaction{
			"VM-0002": {{ID: 1, Timestamp: start.Add(time.Hour), StatusCode: sales.StatusSaleCompleted}},
		},
	}

	rep, err := testBuilder(t, machines, source).Build(context.Background(), "acme-vending", start, end)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(rep.Rows) != 2 {
		t.Fatalf("expected both machines reported, got %d rows", len(rep.Rows))
	}
	if rep.Rows[0].Completed != 0 {
		t.Fatalf("expected zero row for unreadable machine, got %+v", rep.Rows[0])
	}
	if rep.TotalCompleted != 1 {
		t.Fatalf("unexpected total: %d", rep.TotalCompleted)
	}
}

func TestExport_FormatsProduceOutput(t *testing.T) {
	rep := &Report{
		PartnerName: "acme-vending",
		WindowStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		WindowEnd:   time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Rows: []Row{
			{Serial: "VM-0001", Name: "Lobby A", Completed: 12, Failed: 1},
		},
		TotalCompleted: 12,
		TotalFailed:    1,
	}
	for _, format := range []string{FormatXLSX, FormatPDF} {
		data, err := Export(rep, format)
		if err != nil {
			t.Fatalf("export %s: %v", format, err)
		}
		if len(data) == 0 {
			t.Fatalf("export %s produced empty output", format)
		}
	}
	if _, err := Export(rep, "csv"); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

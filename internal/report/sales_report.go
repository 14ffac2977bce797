package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	fleet "vendwatch/internal/fleet/domain"
	sales "vendwatch/internal/sales/domain"
)

// PartnerReader resolves a partner by name.
type PartnerReader interface {
	GetByName(ctx context.Context, name string) (*fleet.Partner, error)
}

// MerchantReader lists a partner's merchants.
type MerchantReader interface {
	ListByPartner(ctx context.Context, partnerID int64) ([]fleet.Merchant, error)
}

// MachineReader lists machines for a set of merchants.
type MachineReader interface {
	ListByMerchants(ctx context.Context, merchantIDs []int64) ([]fleet.Machine, error)
}

// TransactionReader reads transactions inside a window.
type TransactionReader interface {
	RangeBySerial(ctx context.Context, serial string, start, end time.Time) ([]sales.Transaction, error)
}

// Row is the per-machine line of a sales report.
type Row struct {
	Serial        string
	Name          string
	Completed     int
	Failed        int
	VoidCompleted int
	VoidFailed    int
}

// Report aggregates per-machine transaction outcomes for one partner over a
// half-open window [WindowStart, WindowEnd).
type Report struct {
	PartnerName        string
	WindowStart        time.Time
	WindowEnd          time.Time
	Rows               []Row
	TotalCompleted     int
	TotalFailed        int
	TotalVoidCompleted int
	TotalVoidFailed    int
}

// Builder assembles sales reports from reference and transaction data.
type Builder struct {
	partners  PartnerReader
	merchants MerchantReader
	machines  MachineReader
	source    TransactionReader
	log       zerolog.Logger
}

// NewBuilder constructs a report builder.
func NewBuilder(partners PartnerReader, merchants MerchantReader, machines MachineReader, source TransactionReader, log zerolog.Logger) (*Builder, error) {
	if partners == nil || merchants == nil || machines == nil {
		return nil, errors.New("report: nil reference readers")
	}
	if source == nil {
		return nil, errors.New("report: nil transaction reader")
	}
	return &Builder{partners: partners, merchants: merchants, machines: machines, source: source, log: log}, nil
}

// Build produces the report for a partner. Machines whose transactions cannot
// be read are reported as zero rows rather than failing the whole report.
func (b *Builder) Build(ctx context.Context, partnerName string, start, end time.Time) (*Report, error) {
	if b == nil {
		return nil, errors.New("report: nil builder")
	}
	if !end.After(start) {
		return nil, errors.New("report: window end must be after start")
	}
	partner, err := b.partners.GetByName(ctx, partnerName)
	if err != nil {
		return nil, err
	}
	if partner == nil {
		return nil, fmt.Errorf("report: unknown partner %q", partnerName)
	}
	merchants, err := b.merchants.ListByPartner(ctx, partner.ID)
	if err != nil {
		return nil, err
	}
	merchantIDs := make([]int64, 0, len(merchants))
	for _, m := range merchants {
		merchantIDs = append(merchantIDs, m.ID)
	}
	machines, err := b.machines.ListByMerchants(ctx, merchantIDs)
	if err != nil {
		return nil, err
	}

	rep := &Report{
		PartnerName: partner.Name,
		WindowStart: start.UTC(),
		WindowEnd:   end.UTC(),
	}
	for _, machine := range machines {
		row := Row{Serial: machine.SerialNo, Name: machine.Name}
		txs, err := b.source.RangeBySerial(ctx, machine.SerialNo, start, end)
		if err != nil {
			b.log.Error().Err(err).Str("serial", machine.SerialNo).Msg("report transaction fetch failed")
		}
		for _, tx := range txs {
			switch {
			case tx.HasStatus(sales.StatusSaleCompleted):
				row.Completed++
			case tx.HasStatus(sales.StatusSaleFailed):
				row.Failed++
			case tx.HasStatus(sales.StatusVoidComplete):
				row.VoidCompleted++
			case tx.HasStatus(sales.StatusVoidFailed):
				row.VoidFailed++
			}
		}
		rep.Rows = append(rep.Rows, row)
		rep.TotalCompleted += row.Completed
		rep.TotalFailed += row.Failed
		rep.TotalVoidCompleted += row.VoidCompleted
		rep.TotalVoidFailed += row.VoidFailed
	}
	return rep, nil
}

package baseline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"vendwatch/internal/alerts/dispatch"
	alerts "vendwatch/internal/alerts/domain"
	fleet "vendwatch/internal/fleet/domain"
	"vendwatch/internal/monitor"
	"vendwatch/internal/observability/metrics"
	sales "vendwatch/internal/sales/domain"
)

// Digester sends a per-partner digest of drop anomalies.
type Digester interface {
	DispatchDigest(ctx context.Context, req dispatch.DigestRequest) (bool, error)
}

// DropDetector compares the current hour's completed-sale count against the
// learned median for that hour-of-day and aggregates anomalies into one
// digest per partner. Machines whose median is below 1.0 are excluded: a
// near-zero baseline makes a percentage drop meaningless.
type DropDetector struct {
	store            Store
	source           TransactionReader
	sweeper          *monitor.Sweeper
	digester         Digester
	dropThreshold    float64
	consecutiveHours int
	cooldown         time.Duration
	clock            Clock
	log              zerolog.Logger
}

// NewDropDetector constructs the detector.
func NewDropDetector(store Store, source TransactionReader, sweeper *monitor.Sweeper, digester Digester, dropThreshold float64, consecutiveHours int, cooldown time.Duration, clock Clock, log zerolog.Logger) (*DropDetector, error) {
	if store == nil {
		return nil, errors.New("baseline drop: nil store")
	}
	if source == nil {
		return nil, errors.New("baseline drop: nil transaction reader")
	}
	if sweeper == nil {
		return nil, errors.New("baseline drop: nil sweeper")
	}
	if digester == nil {
		return nil, errors.New("baseline drop: nil digester")
	}
	if dropThreshold <= 0 {
		return nil, errors.New("baseline drop: threshold must be positive")
	}
	if consecutiveHours < 1 {
		consecutiveHours = 1
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &DropDetector{
		store:            store,
		source:           source,
		sweeper:          sweeper,
		digester:         digester,
		dropThreshold:    dropThreshold,
		consecutiveHours: consecutiveHours,
		cooldown:         cooldown,
		clock:            clock,
		log:              log,
	}, nil
}

// Name identifies the detector in logs and metrics.
func (d *DropDetector) Name() string { return "baseline_drop" }

// RunPass evaluates the current clock hour for the whole fleet.
func (d *DropDetector) RunPass(ctx context.Context) error {
	if d == nil {
		return errors.New("baseline drop: nil detector")
	}
	start := time.Now()
	snap, err := d.sweeper.SnapshotActive(ctx)
	if err != nil {
		metrics.ObservePass(d.Name(), metrics.ResultError, time.Since(start))
		return err
	}
	now := d.clock.Now().UTC()
	hourStart := now.Truncate(time.Hour)

	for _, group := range snap.Groups {
		var rows []dispatch.DigestRow
		for _, machine := range group.Machines {
			row, triggered, err := d.evaluate(ctx, machine, now, hourStart)
			if err != nil {
				d.log.Error().Err(err).Str("serial", machine.SerialNo).Str("partner", group.Partner.Name).Msg("drop evaluation failed")
				continue
			}
			if triggered {
				rows = append(rows, row)
			}
		}
		if len(rows) == 0 {
			continue
		}
		_, err := d.digester.DispatchDigest(ctx, dispatch.DigestRequest{
			Kind:        alerts.KindBaselineDrop,
			PartnerID:   group.Partner.ID,
			PartnerName: group.Partner.Name,
			Hour:        hourStart.Format("2006-01-02 15:00 MST"),
			Rows:        rows,
			FailureAt:   hourStart,
			Cooldown:    d.cooldown,
			Subject:     fmt.Sprintf("Hourly sales below baseline for %s", group.Partner.Name),
		})
		if err != nil {
			d.log.Error().Err(err).Str("partner", group.Partner.Name).Msg("drop digest dispatch failed")
		}
	}
	metrics.ObservePass(d.Name(), metrics.ResultSuccess, time.Since(start))
	return nil
}

func (d *DropDetector) evaluate(ctx context.Context, machine fleet.Machine, now, hourStart time.Time) (dispatch.DigestRow, bool, error) {
	ref, err := d.store.Get(ctx, machine.ID, hourStart.Hour())
	if err != nil {
		return dispatch.DigestRow{}, false, err
	}
	if ref == nil || ref.MedianCompleted < 1.0 {
		return dispatch.DigestRow{}, false, nil
	}
	counts, err := d.countHour(ctx, machine.SerialNo, hourStart, now)
	if err != nil {
		return dispatch.DigestRow{}, false, err
	}
	if float64(counts.completed) >= ref.MedianCompleted*d.dropThreshold {
		return dispatch.DigestRow{}, false, nil
	}
	if d.consecutiveHours > 1 {
		held, err := d.dropHeld(ctx, machine, hourStart)
		if err != nil {
			return dispatch.DigestRow{}, false, err
		}
		if !held {
			return dispatch.DigestRow{}, false, nil
		}
	}
	return dispatch.DigestRow{
		MachineID:     machine.ID,
		Serial:        machine.SerialNo,
		Name:          machine.Name,
		Baseline:      ref.MedianCompleted,
		Completed:     counts.completed,
		Failed:        counts.failed,
		VoidCompleted: counts.voidComplete,
		VoidFailed:    counts.voidFailed,
	}, true, nil
}

// dropHeld re-checks the preceding hours so a one-hour dip with the
// persistence requirement enabled does not alert.
func (d *DropDetector) dropHeld(ctx context.Context, machine fleet.Machine, hourStart time.Time) (bool, error) {
	for i := 1; i < d.consecutiveHours; i++ {
		prevStart := hourStart.Add(-time.Duration(i) * time.Hour)
		ref, err := d.store.Get(ctx, machine.ID, prevStart.Hour())
		if err != nil {
			return false, err
		}
		if ref == nil || ref.MedianCompleted < 1.0 {
			return false, nil
		}
		counts, err := d.countHour(ctx, machine.SerialNo, prevStart, prevStart.Add(time.Hour))
		if err != nil {
			return false, err
		}
		if float64(counts.completed) >= ref.MedianCompleted*d.dropThreshold {
			return false, nil
		}
	}
	return true, nil
}

func (d *DropDetector) countHour(ctx context.Context, serial string, start, end time.Time) (statusCounts, error) {
	txs, err := d.source.RangeBySerial(ctx, serial, start, end)
	if err != nil {
		return statusCounts{}, err
	}
	var counts statusCounts
	for _, tx := range txs {
		switch {
		case tx.HasStatus(sales.StatusSaleCompleted):
			counts.completed++
		case tx.HasStatus(sales.StatusSaleFailed):
			counts.failed++
		case tx.HasStatus(sales.StatusVoidComplete):
			counts.voidComplete++
		case tx.HasStatus(sales.StatusVoidFailed):
			counts.voidFailed++
		}
	}
	return counts, nil
}

package monitor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"vendwatch/internal/alerts/dispatch"
	alerts "vendwatch/internal/alerts/domain"
	"vendwatch/internal/alerts/notify"
	fleet "vendwatch/internal/fleet/domain"
	"vendwatch/internal/observability/metrics"
	sales "vendwatch/internal/sales/domain"
)

// VoidFailedDetector raises one candidate alert per newly observed
// void-failed transaction, tracked by the per-machine cursor so each
// transaction is evaluated exactly once across passes. A burst at or above
// the threshold additionally raises a machine-level alert.
type VoidFailedDetector struct {
	cfg     VoidFailedConfig
	source  TransactionReader
	cursors CursorStore
	alerter Alerter
	sweeper *Sweeper
	log     zerolog.Logger
}

// NewVoidFailedDetector constructs the detector.
func NewVoidFailedDetector(cfg VoidFailedConfig, source TransactionReader, cursors CursorStore, alerter Alerter, sweeper *Sweeper, log zerolog.Logger) (*VoidFailedDetector, error) {
	if source == nil {
		return nil, errors.New("void failed: nil transaction reader")
	}
	if cursors == nil {
		return nil, errors.New("void failed: nil cursor store")
	}
	if alerter == nil {
		return nil, errors.New("void failed: nil alerter")
	}
	if sweeper == nil {
		return nil, errors.New("void failed: nil sweeper")
	}
	return &VoidFailedDetector{cfg: cfg, source: source, cursors: cursors, alerter: alerter, sweeper: sweeper, log: log}, nil
}

// Name identifies the detector in logs and metrics.
func (d *VoidFailedDetector) Name() string { return "void_failed" }

// RunPass evaluates every active machine once.
func (d *VoidFailedDetector) RunPass(ctx context.Context) error {
	if d == nil {
		return errors.New("void failed: nil detector")
	}
	start := time.Now()
	snap, err := d.sweeper.SnapshotActive(ctx)
	if err != nil {
		metrics.ObservePass(d.Name(), metrics.ResultError, time.Since(start))
		return err
	}
	d.sweeper.Sweep(ctx, d.Name(), snap, d.evaluate)
	metrics.ObservePass(d.Name(), metrics.ResultSuccess, time.Since(start))
	return nil
}

func (d *VoidFailedDetector) evaluate(ctx context.Context, partner fleet.Partner, machine fleet.Machine) error {
	cursor, err := d.cursors.GetBySerial(ctx, machine.SerialNo)
	if err != nil {
		return err
	}
	var txs []sales.Transaction
	if cursor == nil {
		txs, err = d.source.LatestBySerial(ctx, machine.SerialNo, d.cfg.WindowSize)
	} else {
		txs, err = d.source.LatestAfterID(ctx, machine.SerialNo, cursor.LastTransactionID, d.cfg.WindowSize)
	}
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		return nil
	}

	voidFailed := 0
	// Oldest first, so alerts fire in event order.
	for i := len(txs) - 1; i >= 0; i-- {
		tx := txs[i]
		if !tx.HasStatus(sales.StatusVoidFailed) {
			continue
		}
		voidFailed++
		if _, err := d.alerter.Dispatch(ctx, d.transactionRequest(partner, machine, tx)); err != nil {
			d.log.Error().Err(err).Int64("transaction_id", tx.ID).Str("serial", machine.SerialNo).Msg("void failed dispatch error")
		}
	}

	if voidFailed >= d.cfg.Threshold {
		if _, err := d.alerter.Dispatch(ctx, d.machineRequest(partner, machine, txs, voidFailed)); err != nil {
			d.log.Error().Err(err).Str("serial", machine.SerialNo).Msg("void failed burst dispatch error")
		}
	}

	// The watermark advances whether or not anything fired.
	newest := txs[0]
	return d.cursors.Upsert(ctx, &alerts.TrackingCursor{
		MachineSerial:     machine.SerialNo,
		LastTransactionID: newest.ID,
		LastCheckedAt:     newest.Timestamp,
	})
}

func (d *VoidFailedDetector) transactionRequest(partner fleet.Partner, machine fleet.Machine, tx sales.Transaction) dispatch.Request {
	return dispatch.Request{
		Kind:          alerts.KindVoidFailed,
		FallbackKind:  alerts.KindSaleFailed,
		MachineID:     machine.ID,
		Serial:        machine.SerialNo,
		MachineName:   machine.Name,
		PartnerID:     partner.ID,
		PartnerName:   partner.Name,
		TransactionID: tx.ID,
		FailureAt:     tx.Timestamp,
		Cooldown:      d.cfg.Cooldown(),
		Subject:       fmt.Sprintf("Void failed on %s", machine.SerialNo),
		Template:      notify.TemplateVoidFailed,
		Data: map[string]string{
			"MachineName":   machine.Name,
			"Serial":        machine.SerialNo,
			"PartnerName":   partner.Name,
			"TransactionID": strconv.FormatInt(tx.ID, 10),
			"Reason":        tx.StatusDescription,
			"FailureAt":     tx.Timestamp.Format(time.RFC3339),
		},
	}
}

func (d *VoidFailedDetector) machineRequest(partner fleet.Partner, machine fleet.Machine, txs []sales.Transaction, count int) dispatch.Request {
	failureAt := newestMatch(txs, func(tx sales.Transaction) bool {
		return tx.HasStatus(sales.StatusVoidFailed)
	})
	return dispatch.Request{
		Kind:         alerts.KindVoidFailed,
		FallbackKind: alerts.KindSaleFailed,
		MachineID:    machine.ID,
		Serial:       machine.SerialNo,
		MachineName:  machine.Name,
		PartnerID:    partner.ID,
		PartnerName:  partner.Name,
		FailureAt:    failureAt,
		Cooldown:     d.cfg.Cooldown(),
		Subject:      fmt.Sprintf("Void failure burst on %s", machine.SerialNo),
		Template:     notify.TemplateVoidFailed,
		Data: map[string]string{
			"MachineName":   machine.Name,
			"Serial":        machine.SerialNo,
			"PartnerName":   partner.Name,
			"TransactionID": "",
			"Reason":        fmt.Sprintf("%d void failures since the last check", count),
			"FailureAt":     failureAt.Format(time.RFC3339),
		},
	}
}

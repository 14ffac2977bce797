package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"vendwatch/internal/alerts/dispatch"
	alerts "vendwatch/internal/alerts/domain"
	"vendwatch/internal/alerts/notify"
	fleet "vendwatch/internal/fleet/domain"
	"vendwatch/internal/observability/metrics"
	sales "vendwatch/internal/sales/domain"
)

// TimeoutDetector flags machines whose recent window shows a burst of
// timed-out transactions, matched on the free-text status description.
type TimeoutDetector struct {
	cfg     WindowConfig
	source  TransactionReader
	alerter Alerter
	sweeper *Sweeper
	log     zerolog.Logger
}

// NewTimeoutDetector constructs the detector.
func NewTimeoutDetector(cfg WindowConfig, source TransactionReader, alerter Alerter, sweeper *Sweeper, log zerolog.Logger) (*TimeoutDetector, error) {
	if source == nil {
		return nil, errors.New("timeout: nil transaction reader")
	}
	if alerter == nil {
		return nil, errors.New("timeout: nil alerter")
	}
	if sweeper == nil {
		return nil, errors.New("timeout: nil sweeper")
	}
	return &TimeoutDetector{cfg: cfg, source: source, alerter: alerter, sweeper: sweeper, log: log}, nil
}

// Name identifies the detector in logs and metrics.
func (d *TimeoutDetector) Name() string { return "timeout" }

// RunPass evaluates every active machine once.
func (d *TimeoutDetector) RunPass(ctx context.Context) error {
	if d == nil {
		return errors.New("timeout: nil detector")
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

func (d *TimeoutDetector) evaluate(ctx context.Context, partner fleet.Partner, machine fleet.Machine) error {
	txs, err := d.source.LatestBySerial(ctx, machine.SerialNo, d.cfg.WindowSize)
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		return nil
	}
	match := sales.Transaction.IsTimeout
	consecutive := ConsecutiveMatches(txs, match)
	total := CountMatches(txs, len(txs), match)
	percentage := MatchPercentage(total, len(txs))

	var reason string
	switch {
	case consecutive >= d.cfg.ConsecutiveThreshold:
		reason = fmt.Sprintf("%d consecutive timeouts", consecutive)
	case percentage > d.cfg.PercentageThreshold:
		reason = fmt.Sprintf("%.0f%% of the last %d transactions timed out", percentage, len(txs))
	default:
		d.alerter.MarkHealthy(machine.SerialNo, alerts.KindTimeout)
		return nil
	}

	failureAt := newestMatch(txs, match)
	_, err = d.alerter.Dispatch(ctx, dispatch.Request{
		Kind:        alerts.KindTimeout,
		MachineID:   machine.ID,
		Serial:      machine.SerialNo,
		MachineName: machine.Name,
		PartnerID:   partner.ID,
		PartnerName: partner.Name,
		FailureAt:   failureAt,
		Cooldown:    d.cfg.Cooldown(),
		Subject:     fmt.Sprintf("Transaction timeouts on %s", machine.SerialNo),
		Template:    notify.TemplateTimeout,
		Data: map[string]string{
			"MachineName": machine.Name,
			"Serial":      machine.SerialNo,
			"PartnerName": partner.Name,
			"Reason":      reason,
			"FailureAt":   failureAt.Format(time.RFC3339),
		},
	})
	return err
}

package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vendwatch/internal/alerts/dispatch"
	alerts "vendwatch/internal/alerts/domain"
	"vendwatch/internal/alerts/notify"
	fleet "vendwatch/internal/fleet/domain"
	"vendwatch/internal/observability/metrics"
	sales "vendwatch/internal/sales/domain"
)

// VoidCompleteDetector flags machines with anomalous bursts of
// void-completed transactions. It evaluates both the consecutive run and the
// overall percentage in one pass and composes a combined reason when both
// thresholds trip.
type VoidCompleteDetector struct {
	cfg     WindowConfig
	source  TransactionReader
	alerter Alerter
	sweeper *Sweeper
	log     zerolog.Logger
}

// NewVoidCompleteDetector constructs the detector.
func NewVoidCompleteDetector(cfg WindowConfig, source TransactionReader, alerter Alerter, sweeper *Sweeper, log zerolog.Logger) (*VoidCompleteDetector, error) {
	if source == nil {
		return nil, errors.New("void complete: nil transaction reader")
	}
	if alerter == nil {
		return nil, errors.New("void complete: nil alerter")
	}
	if sweeper == nil {
		return nil, errors.New("void complete: nil sweeper")
	}
	return &VoidCompleteDetector{cfg: cfg, source: source, alerter: alerter, sweeper: sweeper, log: log}, nil
}

// Name identifies the detector in logs and metrics.
func (d *VoidCompleteDetector) Name() string { return "void_complete" }

// RunPass evaluates every active machine once.
func (d *VoidCompleteDetector) RunPass(ctx context.Context) error {
	if d == nil {
		return errors.New("void complete: nil detector")
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

func (d *VoidCompleteDetector) evaluate(ctx context.Context, partner fleet.Partner, machine fleet.Machine) error {
	txs, err := d.source.LatestBySerial(ctx, machine.SerialNo, d.cfg.WindowSize)
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		return nil
	}
	match := func(tx sales.Transaction) bool {
		return tx.HasStatus(sales.StatusVoidCompleted)
	}
	consecutive := ConsecutiveMatches(txs, match)
	total := CountMatches(txs, len(txs), match)
	percentage := MatchPercentage(total, len(txs))

	var reasons []string
	if consecutive >= d.cfg.ConsecutiveThreshold {
		reasons = append(reasons, fmt.Sprintf("%d consecutive void-completed transactions", consecutive))
	}
	if percentage > d.cfg.PercentageThreshold {
		reasons = append(reasons, fmt.Sprintf("%.0f%% of the last %d transactions were void-completed", percentage, len(txs)))
	}
	if len(reasons) == 0 {
		d.alerter.MarkHealthy(machine.SerialNo, alerts.KindVoidCompleted)
		return nil
	}

	failureAt := newestMatch(txs, match)
	_, err = d.alerter.Dispatch(ctx, dispatch.Request{
		Kind:        alerts.KindVoidCompleted,
		MachineID:   machine.ID,
		Serial:      machine.SerialNo,
		MachineName: machine.Name,
		PartnerID:   partner.ID,
		PartnerName: partner.Name,
		FailureAt:   failureAt,
		Cooldown:    d.cfg.Cooldown(),
		Subject:     fmt.Sprintf("Void-completed burst on %s", machine.SerialNo),
		Template:    notify.TemplateVoidCompleted,
		Data: map[string]string{
			"MachineName": machine.Name,
			"Serial":      machine.SerialNo,
			"PartnerName": partner.Name,
			"Reason":      strings.Join(reasons, "; "),
			"FailureAt":   failureAt.Format(time.RFC3339),
		},
	})
	return err
}

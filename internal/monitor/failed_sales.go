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

// FailedSalesDetector flags machines whose recent window shows repeated sale
// failures, by consecutive streak or by sliding-window count.
type FailedSalesDetector struct {
	cfg     FailedSalesConfig
	source  TransactionReader
	alerter Alerter
	sweeper *Sweeper
	log     zerolog.Logger
}

// NewFailedSalesDetector constructs the detector.
func NewFailedSalesDetector(cfg FailedSalesConfig, source TransactionReader, alerter Alerter, sweeper *Sweeper, log zerolog.Logger) (*FailedSalesDetector, error) {
	if source == nil {
		return nil, errors.New("failed sales: nil transaction reader")
	}
	if alerter == nil {
		return nil, errors.New("failed sales: nil alerter")
	}
	if sweeper == nil {
		return nil, errors.New("failed sales: nil sweeper")
	}
	return &FailedSalesDetector{cfg: cfg, source: source, alerter: alerter, sweeper: sweeper, log: log}, nil
}

// Name identifies the detector in logs and metrics.
func (d *FailedSalesDetector) Name() string { return "failed_sales" }

// RunPass evaluates every active machine once.
func (d *FailedSalesDetector) RunPass(ctx context.Context) error {
	if d == nil {
		return errors.New("failed sales: nil detector")
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

func (d *FailedSalesDetector) evaluate(ctx context.Context, partner fleet.Partner, machine fleet.Machine) error {
	txs, err := d.source.LatestBySerial(ctx, machine.SerialNo, d.cfg.WindowSize)
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		return nil
	}
	match := statusMatcher(d.cfg.FailureStatuses)
	consecutive := ConsecutiveMatches(txs, match)
	sliding := CountMatches(txs, d.cfg.SlidingWindowSize, match)

	var reason string
	switch {
	case consecutive >= d.cfg.FailureThreshold:
		reason = fmt.Sprintf("%d consecutive failed sales", consecutive)
	case sliding >= d.cfg.SlidingFailureThreshold:
		reason = fmt.Sprintf("%d failed sales in the last %d transactions", sliding, d.cfg.SlidingWindowSize)
	default:
		d.alerter.MarkHealthy(machine.SerialNo, alerts.KindSaleFailed)
		return nil
	}

	failureAt := newestMatch(txs, match)
	_, err = d.alerter.Dispatch(ctx, dispatch.Request{
		Kind:              alerts.KindSaleFailed,
		MachineID:         machine.ID,
		Serial:            machine.SerialNo,
		MachineName:       machine.Name,
		PartnerID:         partner.ID,
		PartnerName:       partner.Name,
		FailureAt:         failureAt,
		Cooldown:          d.cfg.Cooldown(),
		AnySerialFallback: true,
		Subject:           fmt.Sprintf("Sale failures on %s", machine.SerialNo),
		Template:          notify.TemplateFailedSales,
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

// newestMatch returns the timestamp of the most recent matching transaction.
func newestMatch(txs []sales.Transaction, match func(sales.Transaction) bool) time.Time {
	for _, tx := range txs {
		if match(tx) {
			return tx.Timestamp
		}
	}
	return time.Time{}
}

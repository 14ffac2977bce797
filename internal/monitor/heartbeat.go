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
)

// HeartbeatDetector alerts on machines the reference data already flags
// offline, once their last transaction is older than the threshold. It never
// infers offline status from silence on its own.
type HeartbeatDetector struct {
	cfg     HeartbeatConfig
	source  TransactionReader
	alerter Alerter
	sweeper *Sweeper
	clock   Clock
	log     zerolog.Logger
}

// NewHeartbeatDetector constructs the detector.
func NewHeartbeatDetector(cfg HeartbeatConfig, source TransactionReader, alerter Alerter, sweeper *Sweeper, clock Clock, log zerolog.Logger) (*HeartbeatDetector, error) {
	if source == nil {
		return nil, errors.New("heartbeat: nil transaction reader")
	}
	if alerter == nil {
		return nil, errors.New("heartbeat: nil alerter")
	}
	if sweeper == nil {
		return nil, errors.New("heartbeat: nil sweeper")
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &HeartbeatDetector{cfg: cfg, source: source, alerter: alerter, sweeper: sweeper, clock: clock, log: log}, nil
}

// Name identifies the detector in logs and metrics.
func (d *HeartbeatDetector) Name() string { return "heartbeat" }

// RunPass evaluates every offline machine once.
func (d *HeartbeatDetector) RunPass(ctx context.Context) error {
	if d == nil {
		return errors.New("heartbeat: nil detector")
	}
	start := time.Now()
	snap, err := d.sweeper.SnapshotOffline(ctx)
	if err != nil {
		metrics.ObservePass(d.Name(), metrics.ResultError, time.Since(start))
		return err
	}
	d.sweeper.Sweep(ctx, d.Name(), snap, d.evaluate)
	metrics.ObservePass(d.Name(), metrics.ResultSuccess, time.Since(start))
	return nil
}

func (d *HeartbeatDetector) evaluate(ctx context.Context, partner fleet.Partner, machine fleet.Machine) error {
	txs, err := d.source.LatestBySerial(ctx, machine.SerialNo, 1)
	if err != nil {
		return err
	}
	now := d.clock.Now().UTC()
	var lastActivity time.Time
	if len(txs) > 0 {
		lastActivity = txs[0].Timestamp
	}

	var reason string
	if lastActivity.IsZero() {
		// No transaction ever: offline for an unbounded duration.
		reason = "offline with no recorded activity"
	} else {
		offlineFor := now.Sub(lastActivity)
		if offlineFor < d.cfg.OfflineThreshold() {
			d.alerter.MarkHealthy(machine.SerialNo, alerts.KindOfflineMachine)
			return nil
		}
		reason = fmt.Sprintf("offline for %d minutes", int(offlineFor.Minutes()))
	}

	lastActivityLabel := "never"
	if !lastActivity.IsZero() {
		lastActivityLabel = lastActivity.Format(time.RFC3339)
	}
	// No FailureAt here: the offline condition is ongoing, so re-alert
	// cadence is governed by the cooldown window alone.
	_, err = d.alerter.Dispatch(ctx, dispatch.Request{
		Kind:        alerts.KindOfflineMachine,
		MachineID:   machine.ID,
		Serial:      machine.SerialNo,
		MachineName: machine.Name,
		PartnerID:   partner.ID,
		PartnerName: partner.Name,
		Cooldown:    d.cfg.Cooldown(),
		Subject:     fmt.Sprintf("Machine offline: %s", machine.SerialNo),
		Template:    notify.TemplateOffline,
		Data: map[string]string{
			"MachineName": machine.Name,
			"Serial":      machine.SerialNo,
			"PartnerName": partner.Name,
			"Reason":      reason,
			"FailureAt":   lastActivityLabel,
		},
	})
	return err
}

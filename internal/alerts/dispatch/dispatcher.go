package dispatch

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	alerts "vendwatch/internal/alerts/domain"
	"vendwatch/internal/alerts/notify"
	"vendwatch/internal/observability/metrics"
)

// KindReader resolves alert kinds from the catalogue.
type KindReader interface {
	GetByCode(ctx context.Context, code string) (*alerts.Kind, error)
}

// LedgerStore is the durable cooldown/dedup record store.
type LedgerStore interface {
	LatestByMachine(ctx context.Context, machineID, kindID int64) (*alerts.LedgerEntry, error)
	LatestBySerial(ctx context.Context, serial string, kindID int64) (*alerts.LedgerEntry, error)
	LatestByTransaction(ctx context.Context, transactionID, kindID int64) (*alerts.LedgerEntry, error)
	LatestAnyBySerial(ctx context.Context, serial string) (*alerts.LedgerEntry, error)
	Upsert(ctx context.Context, entry *alerts.LedgerEntry) error
}

// RecipientReader resolves recipient configuration per (kind, partner).
type RecipientReader interface {
	Get(ctx context.Context, kindID, partnerID int64) (*alerts.RecipientConfig, error)
}

// EventPublisher receives an event for every confirmed send.
type EventPublisher interface {
	Publish(ctx context.Context, event notify.FeedEvent) error
}

// Clock provides time for cooldown arithmetic.
type Clock interface {
	Now() time.Time
}

// Request describes one alert candidate decided by a detector.
type Request struct {
	Kind         string
	FallbackKind string

	MachineID   int64
	Serial      string
	MachineName string
	PartnerID   int64
	PartnerName string

	// TransactionID keys the ledger entry per transaction when non-zero.
	TransactionID int64

	// FailureAt is the timestamp of the triggering event. A prior send at or
	// after this instant suppresses the alert regardless of cooldown.
	FailureAt time.Time

	Cooldown time.Duration

	// AnySerialFallback extends the ledger lookup to the newest entry for
	// the serial regardless of kind.
	AnySerialFallback bool

	Subject  string
	Template string
	Data     any
	HTML     bool
}

// DigestRow is one machine line inside a partner digest alert.
type DigestRow struct {
	MachineID     int64
	Serial        string
	Name          string
	Baseline      float64
	Completed     int
	Failed        int
	VoidCompleted int
	VoidFailed    int
}

// DigestRequest aggregates anomalies for one partner into a single alert.
// Cooldown is still tracked per machine: rows inside their cooldown window
// are dropped from the digest, and the ledger is written per surviving row.
type DigestRequest struct {
	Kind        string
	PartnerID   int64
	PartnerName string
	Hour        string
	Rows        []DigestRow
	FailureAt   time.Time
	Cooldown    time.Duration
	Subject     string
}

type digestTemplateData struct {
	PartnerName string
	Hour        string
	Rows        []DigestRow
}

// Dispatcher is the shared send path for every detector: kind resolution,
// ledger cooldown check, recipient resolution, render, send, and ledger
// write on confirmed success only.
type Dispatcher struct {
	kinds      KindReader
	ledger     LedgerStore
	recipients RecipientReader
	channel    notify.Channel
	renderer   *notify.Renderer
	feed       EventPublisher
	clock      Clock
	log        zerolog.Logger

	// unhealthy short-circuits repeat alerts for an unchanged failure within
	// one process lifetime. The Ledger remains the source of truth.
	mu        sync.Mutex
	unhealthy map[string]time.Time
}

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithEventFeed publishes confirmed sends to an event feed.
func WithEventFeed(feed EventPublisher) Option {
	return func(d *Dispatcher) {
		if feed != nil {
			d.feed = feed
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(log zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.log = log
	}
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(kinds KindReader, ledger LedgerStore, recipients RecipientReader, channel notify.Channel, renderer *notify.Renderer, opts ...Option) (*Dispatcher, error) {
	if kinds == nil {
		return nil, errors.New("dispatch: nil kind reader")
	}
	if ledger == nil {
		return nil, errors.New("dispatch: nil ledger store")
	}
	if recipients == nil {
		return nil, errors.New("dispatch: nil recipient reader")
	}
	if channel == nil {
		return nil, errors.New("dispatch: nil channel")
	}
	if renderer == nil {
		return nil, errors.New("dispatch: nil renderer")
	}
	d := &Dispatcher{
		kinds:      kinds,
		ledger:     ledger,
		recipients: recipients,
		channel:    channel,
		renderer:   renderer,
		clock:      systemClock{},
		unhealthy:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dispatch runs the shared send path for one alert candidate. It returns
// true only when a send was confirmed and recorded. Suppression and missing
// configuration are not errors.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (bool, error) {
	if d == nil {
		return false, errors.New("dispatch: nil dispatcher")
	}
	kind, err := d.resolveKind(ctx, req.Kind, req.FallbackKind)
	if err != nil {
		return false, err
	}
	if kind == nil {
		d.log.Warn().Str("kind", req.Kind).Str("serial", req.Serial).Msg("alert kind not in catalogue, skipping")
		metrics.IncAlertSuppressed(req.Kind, metrics.SuppressReasonNoKind)
		return false, nil
	}

	key := cacheKey(req)
	if !req.FailureAt.IsZero() && d.cachedAt(key).Equal(req.FailureAt) {
		metrics.IncAlertSuppressed(kind.Code, metrics.SuppressReasonCached)
		return false, nil
	}

	entry, err := d.lookupEntry(ctx, req, kind.ID)
	if err != nil {
		return false, err
	}
	now := d.clock.Now().UTC()
	if entry != nil {
		if ok, reason := eligible(entry, req.FailureAt, req.Cooldown, now); !ok {
			metrics.IncAlertSuppressed(kind.Code, reason)
			d.markUnhealthy(key, req.FailureAt)
			return false, nil
		}
	}

	msg, ok, err := d.buildMessage(ctx, kind, req.PartnerID, req.Subject, req.Template, req.Data, req.HTML)
	if err != nil {
		return false, err
	}
	if !ok {
		d.log.Info().Str("kind", kind.Code).Int64("partner_id", req.PartnerID).Msg("no recipients configured, skipping")
		metrics.IncAlertSuppressed(kind.Code, metrics.SuppressReasonRecipients)
		return false, nil
	}

	sent, err := d.channel.Send(ctx, msg)
	if err != nil || !sent {
		d.log.Warn().Err(err).Str("kind", kind.Code).Str("serial", req.Serial).Msg("alert send failed, ledger untouched")
		metrics.IncSendFailure(kind.Code)
		return false, nil
	}

	record := reusableEntry(entry, req, kind.ID)
	record.PartnerName = req.PartnerName
	record.LastSentAt = now
	record.UpdatedAt = now
	if err := d.ledger.Upsert(ctx, record); err != nil {
		d.log.Error().Err(err).Str("kind", kind.Code).Str("serial", req.Serial).Msg("ledger write failed after send")
		return true, err
	}
	d.markUnhealthy(key, req.FailureAt)
	metrics.IncAlertSent(kind.Code)
	d.publish(ctx, notify.FeedEvent{
		ID:            uuid.NewString(),
		Kind:          kind.Code,
		MachineSerial: req.Serial,
		TransactionID: req.TransactionID,
		PartnerName:   req.PartnerName,
		SentAt:        now,
	})
	return true, nil
}

// DispatchDigest sends one aggregated alert for a partner. Rows inside their
// per-machine cooldown window are dropped first; the ledger is written for
// every surviving row after a confirmed send.
func (d *Dispatcher) DispatchDigest(ctx context.Context, req DigestRequest) (bool, error) {
	if d == nil {
		return false, errors.New("dispatch: nil dispatcher")
	}
	if len(req.Rows) == 0 {
		return false, nil
	}
	kind, err := d.resolveKind(ctx, req.Kind, "")
	if err != nil {
		return false, err
	}
	if kind == nil {
		d.log.Warn().Str("kind", req.Kind).Msg("alert kind not in catalogue, skipping digest")
		metrics.IncAlertSuppressed(req.Kind, metrics.SuppressReasonNoKind)
		return false, nil
	}

	now := d.clock.Now().UTC()
	type candidate struct {
		row   DigestRow
		entry *alerts.LedgerEntry
	}
	var candidates []candidate
	for _, row := range req.Rows {
		entry, err := d.ledger.LatestByMachine(ctx, row.MachineID, kind.ID)
		if err != nil {
			return false, err
		}
		if entry == nil && row.Serial != "" {
			entry, err = d.ledger.LatestBySerial(ctx, row.Serial, kind.ID)
			if err != nil {
				return false, err
			}
		}
		if entry != nil {
			if ok, reason := eligible(entry, req.FailureAt, req.Cooldown, now); !ok {
				metrics.IncAlertSuppressed(kind.Code, reason)
				continue
			}
		}
		candidates = append(candidates, candidate{row: row, entry: entry})
	}
	if len(candidates) == 0 {
		return false, nil
	}

	rows := make([]DigestRow, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, c.row)
	}
	data := digestTemplateData{PartnerName: req.PartnerName, Hour: req.Hour, Rows: rows}
	msg, ok, err := d.buildMessage(ctx, kind, req.PartnerID, req.Subject, notify.TemplateBaselineDrop, data, false)
	if err != nil {
		return false, err
	}
	if !ok {
		d.log.Info().Str("kind", kind.Code).Int64("partner_id", req.PartnerID).Msg("no recipients configured, skipping digest")
		metrics.IncAlertSuppressed(kind.Code, metrics.SuppressReasonRecipients)
		return false, nil
	}

	sent, err := d.channel.Send(ctx, msg)
	if err != nil || !sent {
		d.log.Warn().Err(err).Str("kind", kind.Code).Str("partner", req.PartnerName).Msg("digest send failed, ledger untouched")
		metrics.IncSendFailure(kind.Code)
		return false, nil
	}

	var writeErr error
	for _, c := range candidates {
		record := c.entry
		if record == nil || record.KindID != kind.ID {
			record = &alerts.LedgerEntry{
				MachineID:     c.row.MachineID,
				MachineSerial: c.row.Serial,
				KindID:        kind.ID,
			}
		}
		record.PartnerName = req.PartnerName
		record.LastSentAt = now
		record.UpdatedAt = now
		if err := d.ledger.Upsert(ctx, record); err != nil {
			d.log.Error().Err(err).Int64("machine_id", c.row.MachineID).Msg("ledger write failed after digest send")
			writeErr = err
		}
	}
	metrics.IncAlertSent(kind.Code)
	d.publish(ctx, notify.FeedEvent{
		ID:          uuid.NewString(),
		Kind:        kind.Code,
		PartnerName: req.PartnerName,
		SentAt:      now,
	})
	return true, writeErr
}

// MarkHealthy clears the in-process unhealthy record for a machine-scoped
// key so recovery is observed immediately within this process.
func (d *Dispatcher) MarkHealthy(serial, kindCode string) {
	if d == nil || serial == "" {
		return
	}
	d.mu.Lock()
	delete(d.unhealthy, serial+"|"+kindCode)
	d.mu.Unlock()
}

func (d *Dispatcher) resolveKind(ctx context.Context, code, fallback string) (*alerts.Kind, error) {
	kind, err := d.kinds.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if kind == nil && fallback != "" {
		kind, err = d.kinds.GetByCode(ctx, fallback)
		if err != nil {
			return nil, err
		}
	}
	return kind, nil
}

// lookupEntry walks the key priority chain: transaction id for
// per-transaction alerts, else machine id, then serial, then optionally any
// entry for the serial.
func (d *Dispatcher) lookupEntry(ctx context.Context, req Request, kindID int64) (*alerts.LedgerEntry, error) {
	if req.TransactionID != 0 {
		return d.ledger.LatestByTransaction(ctx, req.TransactionID, kindID)
	}
	if req.MachineID != 0 {
		entry, err := d.ledger.LatestByMachine(ctx, req.MachineID, kindID)
		if err != nil || entry != nil {
			return entry, err
		}
	}
	if req.Serial != "" {
		entry, err := d.ledger.LatestBySerial(ctx, req.Serial, kindID)
		if err != nil || entry != nil {
			return entry, err
		}
		if req.AnySerialFallback {
			return d.ledger.LatestAnyBySerial(ctx, req.Serial)
		}
	}
	return nil, nil
}

func (d *Dispatcher) buildMessage(ctx context.Context, kind *alerts.Kind, partnerID int64, subject, templateName string, data any, html bool) (notify.Message, bool, error) {
	cfg, err := d.recipients.Get(ctx, kind.ID, partnerID)
	if err != nil {
		return notify.Message{}, false, err
	}
	if cfg == nil {
		return notify.Message{}, false, nil
	}
	to := notify.SplitRecipients(cfg.To)
	if len(to) == 0 {
		return notify.Message{}, false, nil
	}
	body, err := d.renderer.Render(templateName, data)
	if err != nil {
		return notify.Message{}, false, err
	}
	return notify.Message{
		To:      to,
		Cc:      notify.SplitRecipients(cfg.Cc),
		Bcc:     notify.SplitRecipients(cfg.Bcc),
		Subject: subject,
		Body:    body,
		HTML:    html,
	}, true, nil
}

func (d *Dispatcher) publish(ctx context.Context, event notify.FeedEvent) {
	if d.feed == nil {
		return
	}
	if err := d.feed.Publish(ctx, event); err != nil {
		d.log.Warn().Err(err).Str("kind", event.Kind).Msg("feed publish failed")
		metrics.IncFeedPublish(metrics.ResultError)
		return
	}
	metrics.IncFeedPublish(metrics.ResultSuccess)
}

func (d *Dispatcher) cachedAt(key string) time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unhealthy[key]
}

func (d *Dispatcher) markUnhealthy(key string, failureAt time.Time) {
	if failureAt.IsZero() {
		return
	}
	d.mu.Lock()
	d.unhealthy[key] = failureAt
	d.mu.Unlock()
}

// eligible applies the two suppression rules in priority order: a prior send
// at or after the failure instant wins over the cooldown window.
func eligible(entry *alerts.LedgerEntry, failureAt time.Time, cooldown time.Duration, now time.Time) (bool, string) {
	if !failureAt.IsZero() && !entry.LastSentAt.Before(failureAt) {
		return false, metrics.SuppressReasonCovered
	}
	if cooldown > 0 && now.Sub(entry.LastSentAt) < cooldown {
		return false, metrics.SuppressReasonCooldown
	}
	return true, ""
}

func reusableEntry(entry *alerts.LedgerEntry, req Request, kindID int64) *alerts.LedgerEntry {
	if entry != nil && entry.KindID == kindID && sameKey(entry, req) {
		return entry
	}
	return &alerts.LedgerEntry{
		MachineID:     req.MachineID,
		MachineSerial: req.Serial,
		TransactionID: req.TransactionID,
		KindID:        kindID,
	}
}

func sameKey(entry *alerts.LedgerEntry, req Request) bool {
	if req.TransactionID != 0 {
		return entry.TransactionID == req.TransactionID
	}
	if req.MachineID != 0 && entry.MachineID == req.MachineID {
		return true
	}
	return req.Serial != "" && entry.MachineSerial == req.Serial
}

func cacheKey(req Request) string {
	if req.TransactionID != 0 {
		return "tx:" + strconv.FormatInt(req.TransactionID, 10) + "|" + req.Kind
	}
	return req.Serial + "|" + req.Kind
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

package baseline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vendwatch/internal/monitor"
	"vendwatch/internal/observability/metrics"
	sales "vendwatch/internal/sales/domain"
)

// TransactionReader is the historical view the learner needs.
type TransactionReader interface {
	RangeBySerial(ctx context.Context, serial string, start, end time.Time) ([]sales.Transaction, error)
}

// Clock provides time for the run guard.
type Clock interface {
	Now() time.Time
}

// Learner recomputes the hourly baseline grid from a historical lookback
// window. It runs daily and once at process start; the two are kept from
// double-computing by a minimum-interval timestamp guard, not a data lock.
type Learner struct {
	store          Store
	source         TransactionReader
	sweeper        *monitor.Sweeper
	lookbackMonths int
	minInterval    time.Duration
	clock          Clock
	log            zerolog.Logger

	mu      sync.Mutex
	lastRun time.Time
}

// NewLearner constructs a learner.
func NewLearner(store Store, source TransactionReader, sweeper *monitor.Sweeper, lookbackMonths int, minInterval time.Duration, clock Clock, log zerolog.Logger) (*Learner, error) {
	if store == nil {
		return nil, errors.New("baseline learner: nil store")
	}
	if source == nil {
		return nil, errors.New("baseline learner: nil transaction reader")
	}
	if sweeper == nil {
		return nil, errors.New("baseline learner: nil sweeper")
	}
	if lookbackMonths <= 0 {
		lookbackMonths = 1
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &Learner{
		store:          store,
		source:         source,
		sweeper:        sweeper,
		lookbackMonths: lookbackMonths,
		minInterval:    minInterval,
		clock:          clock,
		log:            log,
	}, nil
}

// Run recomputes baselines for the whole fleet. A run inside the minimum
// interval since the previous one is skipped, not queued.
func (l *Learner) Run(ctx context.Context) error {
	if l == nil {
		return errors.New("baseline learner: nil learner")
	}
	now := l.clock.Now().UTC()

	l.mu.Lock()
	if !l.lastRun.IsZero() && now.Sub(l.lastRun) < l.minInterval {
		l.mu.Unlock()
		l.log.Info().Time("last_run", l.lastRun).Msg("baseline run inside minimum interval, skipping")
		return nil
	}
	l.lastRun = now
	l.mu.Unlock()

	snap, err := l.sweeper.SnapshotActive(ctx)
	if err != nil {
		metrics.IncBaselineRun(metrics.ResultError)
		return err
	}
	start := now.AddDate(0, -l.lookbackMonths, 0)
	upserted := 0
	for _, group := range snap.Groups {
		for _, machine := range group.Machines {
			if _, ok := group.MerchantIDs[machine.MerchantID]; !ok {
				l.log.Warn().
					Str("serial", machine.SerialNo).
					Int64("merchant_id", machine.MerchantID).
					Str("partner", group.Partner.Name).
					Msg("machine merchant not in partner set, skipping")
				continue
			}
			txs, err := l.source.RangeBySerial(ctx, machine.SerialNo, start, now)
			if err != nil {
				l.log.Error().Err(err).Str("serial", machine.SerialNo).Msg("baseline transaction fetch failed")
				continue
			}
			rows := ComputeHourly(machine.ID, txs, now)
			for i := range rows {
				if err := l.store.Upsert(ctx, &rows[i]); err != nil {
					l.log.Error().Err(err).Str("serial", machine.SerialNo).Int("hour", rows[i].Hour).Msg("baseline upsert failed")
					continue
				}
				upserted++
			}
		}
	}
	metrics.AddBaselineRows(upserted)
	metrics.IncBaselineRun(metrics.ResultSuccess)
	l.log.Info().Int("rows", upserted).Time("lookback_start", start).Msg("baseline run complete")
	return nil
}

type statusCounts struct {
	completed    int
	failed       int
	voidComplete int
	voidFailed   int
}

// ComputeHourly builds the 24-row baseline grid for one machine. Medians
// are taken across the distinct calendar days present in the transaction
// set; a day present in the set counts as zero for hours it has no
// transactions in. No transactions at all yields 24 zero rows.
func ComputeHourly(machineID int64, txs []sales.Transaction, updatedAt time.Time) []Hourly {
	grid := make(map[string]*[24]statusCounts)
	for _, tx := range txs {
		ts := tx.Timestamp.UTC()
		day := ts.Format("2006-01-02")
		cells, ok := grid[day]
		if !ok {
			cells = &[24]statusCounts{}
			grid[day] = cells
		}
		cell := &cells[ts.Hour()]
		switch {
		case tx.HasStatus(sales.StatusSaleCompleted):
			cell.completed++
		case tx.HasStatus(sales.StatusSaleFailed):
			cell.failed++
		case tx.HasStatus(sales.StatusVoidComplete):
			cell.voidComplete++
		case tx.HasStatus(sales.StatusVoidFailed):
			cell.voidFailed++
		}
	}

	rows := make([]Hourly, 24)
	for hour := 0; hour < 24; hour++ {
		completed := make([]float64, 0, len(grid))
		failed := make([]float64, 0, len(grid))
		voidComplete := make([]float64, 0, len(grid))
		voidFailed := make([]float64, 0, len(grid))
		for _, cells := range grid {
			cell := cells[hour]
			completed = append(completed, float64(cell.completed))
			failed = append(failed, float64(cell.failed))
			voidComplete = append(voidComplete, float64(cell.voidComplete))
			voidFailed = append(voidFailed, float64(cell.voidFailed))
		}
		rows[hour] = Hourly{
			MachineID:          machineID,
			Hour:               hour,
			MedianCompleted:    Median(completed),
			MedianFailed:       Median(failed),
			MedianVoidComplete: Median(voidComplete),
			MedianVoidFailed:   Median(voidFailed),
			UpdatedAt:          updatedAt,
		}
	}
	return rows
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context, now time.Time)

// Scheduler triggers a job on an interval, at a minute of every hour, or at
// a time of day.
type Scheduler struct {
	name     string
	every    time.Duration
	dailyAt  string
	atMinute int
	job      Job
	log      zerolog.Logger
}

// NewIntervalScheduler runs the job every period.
func NewIntervalScheduler(name string, every time.Duration, job Job, log zerolog.Logger) *Scheduler {
	return &Scheduler{name: name, every: every, atMinute: -1, job: job, log: log}
}

// NewHourlyScheduler runs the job once per hour at the given minute.
func NewHourlyScheduler(name string, minute int, job Job, log zerolog.Logger) *Scheduler {
	return &Scheduler{name: name, atMinute: minute, job: job, log: log}
}

// NewDailyScheduler runs the job once per day at "15:04" UTC.
func NewDailyScheduler(name, dailyAt string, job Job, log zerolog.Logger) *Scheduler {
	return &Scheduler{name: name, dailyAt: dailyAt, atMinute: -1, job: job, log: log}
}

// Start begins the scheduler loop and blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.job == nil {
		return
	}
	if s.every > 0 {
		ticker := time.NewTicker(s.every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.run(ctx, now.UTC())
			}
		}
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !s.shouldRun(now.UTC()) {
				continue
			}
			s.run(ctx, now.UTC())
		}
	}
}

func (s *Scheduler) run(ctx context.Context, now time.Time) {
	s.log.Debug().Str("scheduler", s.name).Time("at", now).Msg("scheduled run")
	s.job(ctx, now)
}

func (s *Scheduler) shouldRun(now time.Time) bool {
	if s.dailyAt != "" {
		hour, minute, err := parseDailyAt(s.dailyAt)
		if err != nil {
			return false
		}
		return now.Hour() == hour && now.Minute() == minute
	}
	return s.atMinute >= 0 && now.Minute() == s.atMinute
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

package monitor

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	sales "vendwatch/internal/sales/domain"
)

// FailedSalesConfig configures the repeated-sale-failure detector.
type FailedSalesConfig struct {
	Disabled                bool     `yaml:"disabled"`
	EveryMinutes            int      `yaml:"every_minutes"`
	WindowSize              int      `yaml:"window_size"`
	FailureThreshold        int      `yaml:"failure_threshold"`
	SlidingWindowSize       int      `yaml:"sliding_window_size"`
	SlidingFailureThreshold int      `yaml:"sliding_failure_threshold"`
	CooldownMinutes         int      `yaml:"cooldown_minutes"`
	FailureStatuses         []string `yaml:"failure_statuses"`
}

// VoidFailedConfig configures the per-transaction void-failure detector.
type VoidFailedConfig struct {
	Disabled        bool `yaml:"disabled"`
	EveryMinutes    int  `yaml:"every_minutes"`
	WindowSize      int  `yaml:"window_size"`
	Threshold       int  `yaml:"threshold"`
	CooldownMinutes int  `yaml:"cooldown_minutes"`
}

// WindowConfig configures a consecutive/percentage window detector.
type WindowConfig struct {
	Disabled             bool    `yaml:"disabled"`
	EveryMinutes         int     `yaml:"every_minutes"`
	WindowSize           int     `yaml:"window_size"`
	ConsecutiveThreshold int     `yaml:"consecutive_threshold"`
	PercentageThreshold  float64 `yaml:"percentage_threshold"`
	CooldownMinutes      int     `yaml:"cooldown_minutes"`
}

// HeartbeatConfig configures the offline-machine detector.
type HeartbeatConfig struct {
	Disabled                bool `yaml:"disabled"`
	EveryMinutes            int  `yaml:"every_minutes"`
	OfflineThresholdMinutes int  `yaml:"offline_threshold_minutes"`
	CooldownMinutes         int  `yaml:"cooldown_minutes"`
}

// BaselineConfig configures the hourly baseline learner.
type BaselineConfig struct {
	Disabled         bool   `yaml:"disabled"`
	DailyAt          string `yaml:"daily_at"`
	LookbackMonths   int    `yaml:"lookback_months"`
	MinIntervalHours int    `yaml:"min_interval_hours"`
	SkipStartRun     bool   `yaml:"skip_start_run"`
}

// BaselineDropConfig configures the baseline-drop detector.
type BaselineDropConfig struct {
	Disabled         bool    `yaml:"disabled"`
	AtMinute         int     `yaml:"at_minute"`
	DropThreshold    float64 `yaml:"drop_threshold"`
	ConsecutiveHours int     `yaml:"consecutive_hours"`
	CooldownMinutes  int     `yaml:"cooldown_minutes"`
}

// Config aggregates all monitor configuration.
type Config struct {
	FailedSales  FailedSalesConfig  `yaml:"failed_sales"`
	VoidFailed   VoidFailedConfig   `yaml:"void_failed"`
	Timeout      WindowConfig       `yaml:"timeout"`
	VoidComplete WindowConfig       `yaml:"void_complete"`
	Heartbeat    HeartbeatConfig    `yaml:"heartbeat"`
	Baseline     BaselineConfig     `yaml:"baseline"`
	BaselineDrop BaselineDropConfig `yaml:"baseline_drop"`
}

// LoadConfig loads monitor configuration from yaml or env, with the
// production defaults applied first.
func LoadConfig() (Config, error) {
	cfg := Config{
		FailedSales: FailedSalesConfig{
			EveryMinutes:            5,
			WindowSize:              10,
			FailureThreshold:        3,
			SlidingWindowSize:       10,
			SlidingFailureThreshold: 5,
			CooldownMinutes:         60,
			FailureStatuses:         []string{sales.StatusSaleFailed},
		},
		VoidFailed: VoidFailedConfig{
			EveryMinutes:    5,
			WindowSize:      10,
			Threshold:       5,
			CooldownMinutes: 60,
		},
		Timeout: WindowConfig{
			EveryMinutes:         5,
			WindowSize:           10,
			ConsecutiveThreshold: 3,
			PercentageThreshold:  50.0,
			CooldownMinutes:      60,
		},
		VoidComplete: WindowConfig{
			EveryMinutes:         5,
			WindowSize:           10,
			ConsecutiveThreshold: 3,
			PercentageThreshold:  50.0,
			CooldownMinutes:      60,
		},
		Heartbeat: HeartbeatConfig{
			EveryMinutes:            10,
			OfflineThresholdMinutes: 120,
			CooldownMinutes:         60,
		},
		Baseline: BaselineConfig{
			DailyAt:          "02:30",
			LookbackMonths:   1,
			MinIntervalHours: 23,
		},
		BaselineDrop: BaselineDropConfig{
			AtMinute:         5,
			DropThreshold:    0.30,
			ConsecutiveHours: 1,
			CooldownMinutes:  60,
		},
	}

	if path := os.Getenv("VENDWATCH_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if statuses := splitCSV(os.Getenv("MONITOR_FAILURE_STATUSES")); len(statuses) > 0 {
		cfg.FailedSales.FailureStatuses = statuses
	}
	if v := getenvIntDefault("MONITOR_OFFLINE_THRESHOLD_MINUTES", 0); v > 0 {
		cfg.Heartbeat.OfflineThresholdMinutes = v
	}
	if v := getenvFloatDefault("MONITOR_DROP_THRESHOLD", 0); v > 0 {
		cfg.BaselineDrop.DropThreshold = v
	}
	if v := os.Getenv("MONITOR_BASELINE_DAILY_AT"); v != "" {
		cfg.Baseline.DailyAt = v
	}

	if len(cfg.FailedSales.FailureStatuses) == 0 {
		return cfg, errors.New("monitor: failure status list required")
	}
	if cfg.BaselineDrop.ConsecutiveHours < 1 {
		cfg.BaselineDrop.ConsecutiveHours = 1
	}
	return cfg, nil
}

// Every returns the detector period.
func (c FailedSalesConfig) Every() time.Duration { return minutes(c.EveryMinutes) }

// Cooldown returns the alert cooldown window.
func (c FailedSalesConfig) Cooldown() time.Duration { return minutes(c.CooldownMinutes) }

// Every returns the detector period.
func (c VoidFailedConfig) Every() time.Duration { return minutes(c.EveryMinutes) }

// Cooldown returns the alert cooldown window.
func (c VoidFailedConfig) Cooldown() time.Duration { return minutes(c.CooldownMinutes) }

// Every returns the detector period.
func (c WindowConfig) Every() time.Duration { return minutes(c.EveryMinutes) }

// Cooldown returns the alert cooldown window.
func (c WindowConfig) Cooldown() time.Duration { return minutes(c.CooldownMinutes) }

// Every returns the detector period.
func (c HeartbeatConfig) Every() time.Duration { return minutes(c.EveryMinutes) }

// Cooldown returns the alert cooldown window.
func (c HeartbeatConfig) Cooldown() time.Duration { return minutes(c.CooldownMinutes) }

// OfflineThreshold returns the minimum offline duration before alerting.
func (c HeartbeatConfig) OfflineThreshold() time.Duration {
	return minutes(c.OfflineThresholdMinutes)
}

// MinInterval returns the guard interval between learner runs.
func (c BaselineConfig) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalHours) * time.Hour
}

// Cooldown returns the per-machine digest cooldown window.
func (c BaselineDropConfig) Cooldown() time.Duration { return minutes(c.CooldownMinutes) }

func minutes(value int) time.Duration {
	return time.Duration(value) * time.Minute
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

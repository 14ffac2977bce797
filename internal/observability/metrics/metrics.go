package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "vendwatch_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	passTotal   *prometheus.CounterVec
	passLatency *prometheus.HistogramVec

	alertsSent       *prometheus.CounterVec
	alertsSuppressed *prometheus.CounterVec
	sendFailures     *prometheus.CounterVec

	baselineRuns *prometheus.CounterVec
	baselineRows prometheus.Counter

	reportExportTotal   *prometheus.CounterVec
	reportExportLatency *prometheus.HistogramVec

	feedPublishTotal *prometheus.CounterVec
)

// Init registers engine metrics and DB pool gauges.
func Init(db *sql.DB) {
	registerOnce.Do(func() {
		passTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "monitor_pass_total",
				Help: "Total evaluation passes by detector and result",
			},
			[]string{"detector", "result"},
		)
		passLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "monitor_pass_latency_seconds",
				Help:    "Evaluation pass latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"detector"},
		)

		alertsSent = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_sent_total",
				Help: "Total confirmed alert sends by kind",
			},
			[]string{"kind"},
		)
		alertsSuppressed = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_suppressed_total",
				Help: "Total suppressed alerts by kind and reason",
			},
			[]string{"kind", "reason"},
		)
		sendFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_send_failures_total",
				Help: "Total failed alert sends by kind",
			},
			[]string{"kind"},
		)

		baselineRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "baseline_runs_total",
				Help: "Total baseline learner runs by result",
			},
			[]string{"result"},
		)
		baselineRows = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "baseline_rows_upserted_total",
				Help: "Total hourly baseline rows upserted",
			},
		)

		reportExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_export_total",
				Help: "Total sales report exports by format and result",
			},
			[]string{"format", "result"},
		)
		reportExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_export_latency_seconds",
				Help:    "Sales report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		feedPublishTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "feed_publish_total",
				Help: "Total alert feed publishes by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			passTotal,
			passLatency,
			alertsSent,
			alertsSuppressed,
			sendFailures,
			baselineRuns,
			baselineRows,
			reportExportTotal,
			reportExportLatency,
			feedPublishTotal,
		)

		if db != nil {
			registerDBGauges(db)
		}
	})
}

func registerDBGauges(db *sql.DB) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "db_open_connections",
			Help: "Open connections in the database pool",
		},
		func() float64 { return float64(db.Stats().OpenConnections) },
	))
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "db_in_use_connections",
			Help: "In-use connections in the database pool",
		},
		func() float64 { return float64(db.Stats().InUse) },
	))
}

// ObservePass records pass duration and result for a detector.
func ObservePass(detector, result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if passTotal != nil {
		passTotal.WithLabelValues(detector, result).Inc()
	}
	if passLatency != nil {
		passLatency.WithLabelValues(detector).Observe(duration.Seconds())
	}
}

// IncAlertSent increments the confirmed-send counter.
func IncAlertSent(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if alertsSent != nil {
		alertsSent.WithLabelValues(kind).Inc()
	}
}

// IncAlertSuppressed increments the suppression counter.
func IncAlertSuppressed(kind, reason string) {
	if kind == "" {
		kind = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	if alertsSuppressed != nil {
		alertsSuppressed.WithLabelValues(kind, reason).Inc()
	}
}

// IncSendFailure increments the failed-send counter.
func IncSendFailure(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if sendFailures != nil {
		sendFailures.WithLabelValues(kind).Inc()
	}
}

// IncBaselineRun increments the learner run counter.
func IncBaselineRun(result string) {
	if result == "" {
		result = resultSuccess
	}
	if baselineRuns != nil {
		baselineRuns.WithLabelValues(result).Inc()
	}
}

// AddBaselineRows increments the upserted-row counter by count.
func AddBaselineRows(count int) {
	if count <= 0 {
		return
	}
	if baselineRows != nil {
		baselineRows.Add(float64(count))
	}
}

// ObserveReportExport records export latency and result.
func ObserveReportExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if reportExportTotal != nil {
		reportExportTotal.WithLabelValues(format, result).Inc()
	}
	if reportExportLatency != nil {
		reportExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncFeedPublish increments the feed publish counter.
func IncFeedPublish(result string) {
	if result == "" {
		result = resultSuccess
	}
	if feedPublishTotal != nil {
		feedPublishTotal.WithLabelValues(result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	SuppressReasonCooldown   = "cooldown"
	SuppressReasonCovered    = "covered"
	SuppressReasonNoKind     = "no_kind"
	SuppressReasonRecipients = "no_recipients"
	SuppressReasonCached     = "cached"
)

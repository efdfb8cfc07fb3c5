package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "scentroute_"

	resultSuccess = "success"
	resultError   = "error"
	resultSkipped = "skipped"
)

var (
	registerOnce sync.Once

	assignTotal   *prometheus.CounterVec
	unassignTotal *prometheus.CounterVec

	expansionVisitsTotal *prometheus.CounterVec

	reconcileRunsTotal   *prometheus.CounterVec
	reconcileVisitsTotal *prometheus.CounterVec
	reconcileLatency     prometheus.Histogram

	summaryLatency *prometheus.HistogramVec
	exportTotal    *prometheus.CounterVec
)

// Init registers the service metrics and DB-backed gauges.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		assignTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "assign_total",
				Help: "Template assignments by result",
			},
			[]string{"result"},
		)
		unassignTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "unassign_total",
				Help: "Template unassignments by result",
			},
			[]string{"result"},
		)
		expansionVisitsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "expansion_visits_total",
				Help: "Stations processed by expansion, by outcome",
			},
			[]string{"outcome"},
		)
		reconcileRunsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconcile_runs_total",
				Help: "Past-due sweeps by result",
			},
			[]string{"result"},
		)
		reconcileVisitsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconcile_visits_total",
				Help: "Past-due visit updates by result",
			},
			[]string{"result"},
		)
		reconcileLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "reconcile_latency_seconds",
			Help:    "Past-due sweep duration in seconds",
			Buckets: prometheus.DefBuckets,
		})
		summaryLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "summary_latency_seconds",
				Help:    "Daily summary computation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Summary exports by format and result",
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			assignTotal,
			unassignTotal,
			expansionVisitsTotal,
			reconcileRunsTotal,
			reconcileVisitsTotal,
			reconcileLatency,
			summaryLatency,
			exportTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// IncAssign counts an assign call.
func IncAssign(result string) {
	if result == "" {
		result = resultSuccess
	}
	if assignTotal != nil {
		assignTotal.WithLabelValues(result).Inc()
	}
}

// IncUnassign counts an unassign call.
func IncUnassign(result string) {
	if result == "" {
		result = resultSuccess
	}
	if unassignTotal != nil {
		unassignTotal.WithLabelValues(result).Inc()
	}
}

// AddExpansion adds per-outcome station counts of one expansion.
func AddExpansion(created, existing, skipped int) {
	if expansionVisitsTotal == nil {
		return
	}
	if created > 0 {
		expansionVisitsTotal.WithLabelValues("created").Add(float64(created))
	}
	if existing > 0 {
		expansionVisitsTotal.WithLabelValues("existing").Add(float64(existing))
	}
	if skipped > 0 {
		expansionVisitsTotal.WithLabelValues("unbound").Add(float64(skipped))
	}
}

// ObserveReconcile records one sweep.
func ObserveReconcile(result string, succeeded, failed int, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if reconcileRunsTotal != nil {
		reconcileRunsTotal.WithLabelValues(result).Inc()
	}
	if reconcileVisitsTotal != nil {
		if succeeded > 0 {
			reconcileVisitsTotal.WithLabelValues(resultSuccess).Add(float64(succeeded))
		}
		if failed > 0 {
			reconcileVisitsTotal.WithLabelValues(resultError).Add(float64(failed))
		}
	}
	if reconcileLatency != nil && result != resultSkipped {
		reconcileLatency.Observe(duration.Seconds())
	}
}

// ObserveSummary records daily summary latency.
func ObserveSummary(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if summaryLatency != nil {
		summaryLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncExport counts a summary export.
func IncExport(format, result string) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultSkipped = resultSkipped
)

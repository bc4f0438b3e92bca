package etl

import (
	"github.com/prometheus/client_golang/prometheus"

	"pkgstats/pkg/monitoring"
)

// Metrics holds the pipeline's Prometheus instruments. Constructed once in
// main and shared by the pipeline and the backfill orchestrator.
type Metrics struct {
	RunsTotal      *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
	RowsProcessed  *prometheus.CounterVec
	BatchesFailed  *prometheus.CounterVec
	LastRunSuccess *prometheus.GaugeVec
}

func NewMetrics(collector *monitoring.MetricsCollector) *Metrics {
	return &Metrics{
		RunsTotal: collector.NewCounter(
			"etl_runs_total",
			"ETL runs by outcome",
			[]string{"status"},
		),
		RunDuration: collector.NewHistogram(
			"etl_run_duration_seconds",
			"End to end ETL run duration",
			[]string{"phase"},
			[]float64{1, 5, 15, 60, 300, 900, 3600},
		),
		RowsProcessed: collector.NewCounter(
			"etl_rows_processed_total",
			"Rows staged from the warehouse",
			[]string{"table"},
		),
		BatchesFailed: collector.NewCounter(
			"etl_batches_failed_total",
			"Staging batches that failed and were skipped",
			nil,
		),
		LastRunSuccess: collector.NewGauge(
			"etl_last_run_success",
			"Whether the most recent run succeeded (1) or failed (0)",
			nil,
		),
	}
}

func (m *Metrics) observeRun(report *runObservation) {
	if m == nil {
		return
	}
	status := "success"
	value := 1.0
	if !report.success {
		status = "failure"
		value = 0
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.LastRunSuccess.WithLabelValues().Set(value)
	m.RunDuration.WithLabelValues("total").Observe(report.elapsed)
	m.RowsProcessed.WithLabelValues("all").Add(float64(report.rows))
	m.BatchesFailed.WithLabelValues().Add(float64(report.failedBatches))
}

type runObservation struct {
	success       bool
	elapsed       float64
	rows          int64
	failedBatches int
}

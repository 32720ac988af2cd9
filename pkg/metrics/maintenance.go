package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Maintenance cycle results.
const (
	CycleCompleted = "completed"
	CycleSkipped   = "skipped"
)

// MaintenanceMetrics records the storefront maintenance loop: one series per
// job name for duration and outcome, plus a cycle counter.
type MaintenanceMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	cycles   *prometheus.CounterVec
}

// NewMaintenanceMetrics registers the maintenance metrics on reg.
func NewMaintenanceMetrics(reg prometheus.Registerer) *MaintenanceMetrics {
	if reg == nil {
		return &MaintenanceMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_maintenance_job_duration_seconds",
		Help:    "Duration of maintenance jobs in seconds.",
		Buckets: []float64{.001, .005, .025, .1, .5, 1, 5, 30},
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_maintenance_job_runs_total",
		Help: "Maintenance job executions by job and result.",
	}, []string{"job", "result"})
	cycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_maintenance_cycles_total",
		Help: "Maintenance cycles by result.",
	}, []string{"result"})
	reg.MustRegister(duration, runs, cycles)
	return &MaintenanceMetrics{duration: duration, runs: runs, cycles: cycles}
}

// ObserveJob records one run of job. A nil err counts as success.
func (m *MaintenanceMetrics) ObserveJob(job string, took time.Duration, err error) {
	if m == nil || m.duration == nil {
		return
	}
	job = normalizeLabel(job)
	m.duration.WithLabelValues(job).Observe(took.Seconds())
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.runs.WithLabelValues(job, result).Inc()
}

// IncCycle counts one cycle with result CycleCompleted or CycleSkipped.
func (m *MaintenanceMetrics) IncCycle(result string) {
	if m == nil || m.cycles == nil {
		return
	}
	m.cycles.WithLabelValues(normalizeLabel(result)).Inc()
}

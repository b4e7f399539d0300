package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics for a backup run.
type Registry struct {
	*prometheus.Registry

	archivesTotal   *prometheus.CounterVec
	uploadedBytes   *prometheus.CounterVec
	toolFailures    *prometheus.CounterVec
	objectsPruned   prometheus.Counter
	runDuration     prometheus.Histogram
	lastSuccessTime prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		archivesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3backup_archives_total",
				Help: "Total number of archives produced",
			},
			[]string{"category", "status"},
		),

		uploadedBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3backup_uploaded_bytes_total",
				Help: "Total bytes uploaded to the bucket",
			},
			[]string{"category"},
		),

		toolFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3backup_tool_failures_total",
				Help: "External tool invocations that exited non-zero",
			},
			[]string{"category"},
		),

		objectsPruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "s3backup_objects_pruned_total",
				Help: "Bucket objects deleted by the retention sweep",
			},
		),

		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "s3backup_run_duration_seconds",
				Help:    "Backup run duration in seconds",
				Buckets: []float64{10, 30, 60, 300, 900, 1800, 3600, 7200},
			},
		),

		lastSuccessTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "s3backup_last_success_timestamp_seconds",
				Help: "Unix time of the last completed run",
			},
		),
	}

	reg.MustRegister(r.archivesTotal)
	reg.MustRegister(r.uploadedBytes)
	reg.MustRegister(r.toolFailures)
	reg.MustRegister(r.objectsPruned)
	reg.MustRegister(r.runDuration)
	reg.MustRegister(r.lastSuccessTime)

	return r
}

// RecordArchive records an uploaded archive and its size.
func (r *Registry) RecordArchive(category string, bytes int64) {
	r.archivesTotal.WithLabelValues(category, "uploaded").Inc()
	r.uploadedBytes.WithLabelValues(category).Add(float64(bytes))
}

// RecordArchiveFailure records an archive that could not be uploaded.
func (r *Registry) RecordArchiveFailure(category string) {
	r.archivesTotal.WithLabelValues(category, "failed").Inc()
}

// RecordToolFailure records a non-zero tool exit.
func (r *Registry) RecordToolFailure(category string) {
	r.toolFailures.WithLabelValues(category).Inc()
}

// RecordPruned records objects removed by the retention sweep.
func (r *Registry) RecordPruned(count int) {
	r.objectsPruned.Add(float64(count))
}

// RecordRun records a completed run.
func (r *Registry) RecordRun(duration float64, finishedUnix int64) {
	r.runDuration.Observe(duration)
	r.lastSuccessTime.Set(float64(finishedUnix))
}

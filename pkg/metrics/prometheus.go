package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	forecastRows *prometheus.CounterVec
	trainingRuns *prometheus.CounterVec
	jobsTotal    *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		forecastRows: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coincast_forecast_rows_total",
				Help: "Total number of forecast rows stored",
			},
			[]string{"kind"},
		),
		trainingRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coincast_training_runs_total",
				Help: "Total number of training runs by outcome",
			},
			[]string{"family", "cell", "status"},
		),
		jobsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coincast_jobs_total",
				Help: "Total number of job transitions by state",
			},
			[]string{"state"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coincast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coincast_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coincast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordForecastStored records stored forecast rows for a model kind.
func (r *Recorder) RecordForecastStored(kind string, rows int) {
	r.forecastRows.WithLabelValues(kind).Add(float64(rows))
}

// RecordTrainingRun records a training run outcome.
func (r *Recorder) RecordTrainingRun(family, cell, status string) {
	r.trainingRuns.WithLabelValues(family, cell, status).Inc()
}

// RecordJob records a job state transition.
func (r *Recorder) RecordJob(state string) {
	r.jobsTotal.WithLabelValues(state).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

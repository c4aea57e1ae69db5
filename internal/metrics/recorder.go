// Package metrics exports reminder dispatch telemetry to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/example/studio-reminders/internal/application"
)

// Recorder implements application.DispatchObserver.
type Recorder struct {
	runs              *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	deliveries        *prometheus.CounterVec
	skipped           *prometheus.CounterVec
	pipelineDuration  *prometheus.HistogramVec
	lastRunCandidates *prometheus.GaugeVec
}

// NewRecorder registers dispatch metrics on reg. Metrics registered earlier
// under the same names are reused.
func NewRecorder(namespace string, reg prometheus.Registerer) (*Recorder, error) {
	if namespace == "" {
		namespace = "reminders"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Recorder{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Dispatch runs by category and outcome.",
		}, []string{"category", "outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a dispatch run.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"category"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Reminder pipelines by category and result.",
		}, []string{"category", "result"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_total",
			Help:      "Reminders skipped because an earlier run already claimed them.",
		}, []string{"category"}),
		pipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Latency of a single reminder pipeline.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"category"}),
		lastRunCandidates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_candidates",
			Help:      "Bookings selected by the most recent successful run.",
		}, []string{"category"}),
	}

	collectors := map[prometheus.Collector]func(prometheus.Collector){
		r.runs:              func(c prometheus.Collector) { r.runs = c.(*prometheus.CounterVec) },
		r.runDuration:       func(c prometheus.Collector) { r.runDuration = c.(*prometheus.HistogramVec) },
		r.deliveries:        func(c prometheus.Collector) { r.deliveries = c.(*prometheus.CounterVec) },
		r.skipped:           func(c prometheus.Collector) { r.skipped = c.(*prometheus.CounterVec) },
		r.pipelineDuration:  func(c prometheus.Collector) { r.pipelineDuration = c.(*prometheus.HistogramVec) },
		r.lastRunCandidates: func(c prometheus.Collector) { r.lastRunCandidates = c.(*prometheus.GaugeVec) },
	}
	for collector, reuse := range collectors {
		if err := reg.Register(collector); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				reuse(are.ExistingCollector)
				continue
			}
			return nil, fmt.Errorf("register reminder metric: %w", err)
		}
	}
	return r, nil
}

// RecordRun tracks the outcome of a whole run.
func (r *Recorder) RecordRun(category application.Category, report application.Report, duration time.Duration, err error) {
	if r == nil {
		return
	}
	label := string(category)
	if err != nil {
		if _, parseErr := application.ParseCategory(label); parseErr != nil {
			label = "unknown"
		}
		r.runs.WithLabelValues(label, "error").Inc()
		return
	}
	r.runs.WithLabelValues(label, "completed").Inc()
	r.runDuration.WithLabelValues(label).Observe(duration.Seconds())
	r.skipped.WithLabelValues(label).Add(float64(report.Skipped))
	r.lastRunCandidates.WithLabelValues(label).Set(float64(report.Total))
}

// RecordPipeline tracks a single booking's delivery.
func (r *Recorder) RecordPipeline(category application.Category, success bool, duration time.Duration) {
	if r == nil {
		return
	}
	result := "failed"
	if success {
		result = "delivered"
	}
	r.deliveries.WithLabelValues(string(category), result).Inc()
	r.pipelineDuration.WithLabelValues(string(category)).Observe(duration.Seconds())
}

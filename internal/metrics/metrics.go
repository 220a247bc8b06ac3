// Package metrics records per-run job metrics and pushes them to a Prometheus
// Pushgateway, the usual collection path for batch jobs that exit before they
// could be scraped.
package metrics

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	namespace = "device_etl"
)

// Recorder holds the gauges describing the last run
type Recorder struct {
	registry    *prometheus.Registry
	readings    prometheus.Gauge
	aggregates  prometheus.Gauge
	duration    prometheus.Gauge
	lastSuccess prometheus.Gauge
	failures    *prometheus.CounterVec

	pushURL string
	jobName string
}

// NewRecorder creates a recorder with its own registry. An empty pushURL
// disables Push.
func NewRecorder(pushURL, jobName string) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		readings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "readings_extracted",
			Help:      "Number of raw readings extracted by the last run",
		}),
		aggregates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "aggregates_loaded",
			Help:      "Number of hourly aggregates upserted by the last run",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_failures_total",
			Help:      "Failed runs by stage",
		}, []string{"stage"}),
		pushURL: pushURL,
		jobName: jobName,
	}

	r.registry.MustRegister(r.readings, r.aggregates, r.duration, r.lastSuccess, r.failures)

	return r
}

// ObserveSuccess records a completed run
func (r *Recorder) ObserveSuccess(readings, aggregates int, duration time.Duration, finishedAt time.Time) {
	r.readings.Set(float64(readings))
	r.aggregates.Set(float64(aggregates))
	r.duration.Set(duration.Seconds())
	r.lastSuccess.Set(float64(finishedAt.Unix()))
}

// ObserveFailure counts a run that failed in the given stage
func (r *Recorder) ObserveFailure(stage string, duration time.Duration) {
	r.failures.WithLabelValues(stage).Inc()
	r.duration.Set(duration.Seconds())
}

// Push sends the current values to the Pushgateway
func (r *Recorder) Push(ctx context.Context) error {
	if r.pushURL == "" {
		return nil
	}

	err := push.New(r.pushURL, r.jobName).
		Gatherer(r.registry).
		PushContext(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to push metrics")
	}
	return nil
}

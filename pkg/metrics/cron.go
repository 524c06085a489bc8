package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "merch"

// Cron run outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// CronJobMetrics tracks maintenance job runs. A nil *CronJobMetrics, or one
// built without a registerer, records nothing.
type CronJobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	processed   *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	byJob := []string{"job"}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cron",
			Name: "job_runs_total",
			Help: "Cron job runs by outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "cron",
			Name:    "job_duration_seconds",
			Help:    "Wall time of one cron job run.",
			Buckets: []float64{.05, .25, 1, 5, 15, 60, 300, 900},
		}, byJob),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cron",
			Name: "job_processed_total",
			Help: "Rows deleted or otherwise handled by cron jobs.",
		}, byJob),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cron",
			Name: "job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}, byJob),
	}
	reg.MustRegister(m.runs, m.duration, m.processed, m.lastSuccess)
	return m
}

func (c *CronJobMetrics) ObserveDuration(job string, d time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(orUnknown(job)).Observe(d.Seconds())
}

// IncSuccess counts a successful run and stamps the last-success gauge.
func (c *CronJobMetrics) IncSuccess(job string) {
	if c == nil || c.runs == nil {
		return
	}
	c.runs.WithLabelValues(orUnknown(job), OutcomeSuccess).Inc()
	c.lastSuccess.WithLabelValues(orUnknown(job)).SetToCurrentTime()
}

func (c *CronJobMetrics) IncFailure(job string) {
	if c == nil || c.runs == nil {
		return
	}
	c.runs.WithLabelValues(orUnknown(job), OutcomeFailure).Inc()
}

// AddProcessed ignores non-positive n.
func (c *CronJobMetrics) AddProcessed(job string, n int) {
	if c == nil || c.processed == nil || n <= 0 {
		return
	}
	c.processed.WithLabelValues(orUnknown(job)).Add(float64(n))
}

func orUnknown(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}

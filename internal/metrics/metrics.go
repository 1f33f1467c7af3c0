// Package metrics exposes reminder dispatch and job run counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dispatch outcome labels.
const (
	OutcomeSent           = "sent"
	OutcomeAlreadySent    = "already_sent"
	OutcomePreviousFailed = "previously_failed"
	OutcomeClaimed        = "claimed_elsewhere"
	OutcomeFailed         = "failed"
	OutcomeInvalidAddress = "invalid_address"
	OutcomeStorageError   = "storage_error"
)

// Collector groups the reminder metrics. A nil *Collector is valid and records nothing.
type Collector struct {
	dispatches    *prometheus.CounterVec
	sendLatency   prometheus.Histogram
	jobRuns       *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	messagesSent  *prometheus.CounterVec
	lastJobFinish *prometheus.GaugeVec
}

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reminders_dispatch_total",
			Help: "Dispatch attempts by template and outcome",
		}, []string{"template", "outcome"}),
		sendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reminders_gateway_latency_seconds",
			Help:    "Time spent in the SMS gateway call",
			Buckets: prometheus.DefBuckets,
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reminders_job_runs_total",
			Help: "Job invocations by job and result",
		}, []string{"job", "result"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reminders_job_duration_seconds",
			Help:    "Wall time of a job invocation",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reminders_job_messages_sent_total",
			Help: "New messages sent by job",
		}, []string{"job"}),
		lastJobFinish: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reminders_job_last_finished_timestamp_seconds",
			Help: "Unix time the job last finished",
		}, []string{"job"}),
	}

	reg.MustRegister(c.dispatches, c.sendLatency, c.jobRuns, c.jobDuration, c.messagesSent, c.lastJobFinish)
	return c
}

// RecordDispatch counts one dispatch outcome.
func (c *Collector) RecordDispatch(template, outcome string) {
	if c == nil {
		return
	}
	c.dispatches.WithLabelValues(template, outcome).Inc()
}

// ObserveSend records gateway call latency.
func (c *Collector) ObserveSend(d time.Duration) {
	if c == nil {
		return
	}
	c.sendLatency.Observe(d.Seconds())
}

// RecordJobRun records a finished job invocation.
func (c *Collector) RecordJobRun(job string, ok bool, sent int, d time.Duration, finishedAt time.Time) {
	if c == nil {
		return
	}
	result := "success"
	if !ok {
		result = "error"
	}
	c.jobRuns.WithLabelValues(job, result).Inc()
	c.jobDuration.WithLabelValues(job).Observe(d.Seconds())
	c.messagesSent.WithLabelValues(job).Add(float64(sent))
	c.lastJobFinish.WithLabelValues(job).Set(float64(finishedAt.Unix()))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// UpdatesTotal counts inbound updates by kind
	UpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parking_updates_total",
			Help: "Total number of inbound updates",
		},
		[]string{"kind"},
	)

	// RateLimitedTotal counts messages rejected by the rate limiter
	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "parking_rate_limited_total",
			Help: "Total number of messages rejected by the rate limiter",
		},
	)

	// NotificationsTotal counts outbound notifications by channel and result
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parking_notifications_total",
			Help: "Total number of outbound notifications",
		},
		[]string{"channel", "result"},
	)

	// CronJobRunsTotal counts background job runs
	CronJobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cron_job_runs_total",
			Help: "Total number of cron job runs",
		},
		[]string{"job_name"},
	)

	// CronJobErrorsTotal counts failed background job runs
	CronJobErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cron_job_errors_total",
			Help: "Total number of cron job errors",
		},
		[]string{"job_name"},
	)

	// CronJobRunDurationSeconds measures background job duration
	CronJobRunDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cron_job_run_duration_seconds",
			Help:    "Duration of cron job runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"job_name"},
	)

	registry     = prometheus.NewRegistry()
	registerOnce sync.Once
)

// Register adds the default and application collectors to the registry
func Register() {
	registerOnce.Do(func() {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			UpdatesTotal,
			RateLimitedTotal,
			NotificationsTotal,
			CronJobRunsTotal,
			CronJobErrorsTotal,
			CronJobRunDurationSeconds,
		)
	})
}

// Handler serves the registry in the Prometheus exposition format
func Handler() http.Handler {
	Register()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RecordCronJobRun records one background job run
func RecordCronJobRun(jobName string, duration time.Duration, err error) {
	if err != nil {
		CronJobErrorsTotal.WithLabelValues(jobName).Inc()
	}
	CronJobRunsTotal.WithLabelValues(jobName).Inc()
	CronJobRunDurationSeconds.WithLabelValues(jobName).Observe(duration.Seconds())
}

// RecordNotification records one delivery attempt
func RecordNotification(channel string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	NotificationsTotal.WithLabelValues(channel, result).Inc()
}

package metrics

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so several collectors can coexist in
// one process, as tests do.
type Collector struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	duration        prometheus.Histogram
	updateOutcomes  *prometheus.CounterVec
	jobRuns         *prometheus.CounterVec
	totalRequests   uint64
	errorRequests   uint64
	totalDurationMs uint64
}

func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Collector{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payledger",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by status code.",
		}, []string{"code"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "payledger",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		updateOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payledger",
			Subsystem: "salary_update",
			Name:      "outcomes_total",
			Help:      "Authorized salary update workflow outcomes.",
		}, []string{"outcome"}),
		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payledger",
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Background job runs by type and status.",
		}, []string{"job", "status"}),
	}
}

func (c *Collector) Record(status int, duration time.Duration) {
	c.requests.WithLabelValues(strconv.Itoa(status)).Inc()
	c.duration.Observe(duration.Seconds())
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

// UpdateOutcome satisfies payroll.Observer.
func (c *Collector) UpdateOutcome(outcome string) {
	c.updateOutcomes.WithLabelValues(outcome).Inc()
}

func (c *Collector) JobRun(jobType, status string) {
	c.jobRuns.WithLabelValues(jobType, status).Inc()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	errs := atomic.LoadUint64(&c.errorRequests)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}
	return map[string]any{
		"requestsTotal":   total,
		"errorsTotal":     errs,
		"avgDurationMs":   avg,
		"totalDurationMs": totalMs,
	}
}

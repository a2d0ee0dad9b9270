// Package metrics exposes Prometheus instrumentation for the answer
// pipeline. All Collector methods are safe on a nil receiver so callers
// can run without metrics wired.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector tracks query volume per route, branch failures, and stage
// latency.
type Collector struct {
	queries  *prometheus.CounterVec
	failures *prometheus.CounterVec
	queryDur *prometheus.HistogramVec
	stageDur *prometheus.HistogramVec
	registry *prometheus.Registry
}

// NewCollector builds and registers the pipeline metrics on reg. When
// reg is nil a private registry is created.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{
		registry: reg,
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dormflow",
			Name:      "queries_total",
			Help:      "Answered questions by route and outcome.",
		}, []string{"route", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dormflow",
			Name:      "branch_failures_total",
			Help:      "Branch executions that fell back to an apology answer.",
		}, []string{"route"}),
		queryDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dormflow",
			Name:      "query_duration_seconds",
			Help:      "End-to-end pipeline latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		stageDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dormflow",
			Name:      "stage_duration_seconds",
			Help:      "Latency of individual pipeline stages.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}
	reg.MustRegister(c.queries, c.failures, c.queryDur, c.stageDur)
	return c
}

// Registry returns the backing registry for HTTP exposition.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveQuery records one completed pipeline run.
func (c *Collector) ObserveQuery(route string, ok bool, dur time.Duration) {
	if c == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	c.queries.WithLabelValues(route, status).Inc()
	c.queryDur.WithLabelValues(route).Observe(dur.Seconds())
}

// ObserveFailure counts a branch that produced a fallback answer.
func (c *Collector) ObserveFailure(route string) {
	if c == nil {
		return
	}
	c.failures.WithLabelValues(route).Inc()
}

// ObserveStage records one stage's latency.
func (c *Collector) ObserveStage(stage string, dur time.Duration) {
	if c == nil {
		return
	}
	c.stageDur.WithLabelValues(stage).Observe(dur.Seconds())
}

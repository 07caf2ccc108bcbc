// Package metrics exports per-statement database metrics to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Skryldev/blogstore/db"
)

// Collector implements db.MetricsCollector. Statements are labelled by their
// SQL verb and by outcome ("ok" or "error").
type Collector struct {
	queries *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

var _ db.MetricsCollector = (*Collector)(nil)

// NewCollector creates the collector and registers it with reg. A nil reg
// means prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogstore",
			Subsystem: "db",
			Name:      "queries_total",
			Help:      "Total number of SQL statements by verb and status.",
		}, []string{"op", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "blogstore",
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "SQL statement latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	for _, col := range []prometheus.Collector{c.queries, c.latency} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RecordQuery is called by the db metrics hook after every statement.
func (c *Collector) RecordQuery(op string, d time.Duration, err error) {
	status := "ok"
	if err != nil && !db.IsNotFound(err) {
		status = "error"
	}
	c.queries.WithLabelValues(op, status).Inc()
	c.latency.WithLabelValues(op).Observe(d.Seconds())
}

// Counter returns the statement counter for one verb and status.
func (c *Collector) Counter(op, status string) prometheus.Counter {
	return c.queries.WithLabelValues(op, status)
}

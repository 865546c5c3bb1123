package prometheus

import (
	"time"

	"github.com/hupe1980/walfile"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements walfile.MetricsCollector on Prometheus metrics.
type Collector struct {
	latency     *prometheus.HistogramVec
	commitBytes prometheus.Counter
	commitOps   prometheus.Counter
	retired     prometheus.Counter
	records     *prometheus.CounterVec
}

var _ walfile.MetricsCollector = (*Collector)(nil)

// Option configures a Collector.
type Option func(*options)

type options struct {
	namespace string
	buckets   []float64
	labels    prometheus.Labels
}

// WithNamespace sets the metric name prefix (default "walfile").
func WithNamespace(ns string) Option {
	return func(o *options) {
		o.namespace = ns
	}
}

// WithBuckets overrides the latency histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(o *options) {
		o.buckets = buckets
	}
}

// WithConstLabels attaches constant labels, e.g. the data file name.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(o *options) {
		o.labels = labels
	}
}

// New creates a Collector and registers its metrics with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer, optFns ...Option) (*Collector, error) {
	o := options{
		namespace: "walfile",
		buckets:   prometheus.ExponentialBuckets(50e-6, 4, 10),
	}
	for _, fn := range optFns {
		fn(&o)
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   o.namespace,
			Name:        "operation_latency_seconds",
			Help:        "Latency of commit, rollback, sync and check.",
			Buckets:     o.buckets,
			ConstLabels: o.labels,
		}, []string{"op", "status"}),
		commitBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Name:        "commit_bytes_total",
			Help:        "Bytes written by successful commits.",
			ConstLabels: o.labels,
		}),
		commitOps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Name:        "commit_writes_total",
			Help:        "Write operations applied by successful commits.",
			ConstLabels: o.labels,
		}),
		retired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Name:        "sync_retired_records_total",
			Help:        "Lingering journal records retired by Sync.",
			ConstLabels: o.labels,
		}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Name:        "check_records_total",
			Help:        "Journal records seen by Check, by class.",
			ConstLabels: o.labels,
		}, []string{"class"}),
	}

	for _, m := range []prometheus.Collector{c.latency, c.commitBytes, c.commitOps, c.retired, c.records} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordCommit implements walfile.MetricsCollector.
func (c *Collector) RecordCommit(ops int, bytes int64, d time.Duration, err error) {
	c.latency.WithLabelValues("commit", status(err)).Observe(d.Seconds())
	if err == nil {
		c.commitOps.Add(float64(ops))
		c.commitBytes.Add(float64(bytes))
	}
}

// RecordRollback implements walfile.MetricsCollector.
func (c *Collector) RecordRollback(d time.Duration, err error) {
	c.latency.WithLabelValues("rollback", status(err)).Observe(d.Seconds())
}

// RecordSync implements walfile.MetricsCollector.
func (c *Collector) RecordSync(retired int, d time.Duration, err error) {
	c.latency.WithLabelValues("sync", status(err)).Observe(d.Seconds())
	c.retired.Add(float64(retired))
}

// RecordCheck implements walfile.MetricsCollector.
func (c *Collector) RecordCheck(r walfile.Report, d time.Duration, err error) {
	c.latency.WithLabelValues("check", status(err)).Observe(d.Seconds())
	for class, n := range map[string]int{
		"invalid":     r.Invalid,
		"in_progress": r.InProgress,
		"broken":      r.Broken,
		"corrupt":     r.Corrupt,
		"complete":    r.Complete,
		"reapplied":   r.Reapplied,
		"quarantined": r.Quarantined,
	} {
		if n > 0 {
			c.records.WithLabelValues(class).Add(float64(n))
		}
	}
}

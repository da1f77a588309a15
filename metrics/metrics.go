// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package metrics exports Prometheus metrics for a client: counters of
// the events it fires, the duration of completed executions, and the
// occupancy of its connection pool.
//
//	reg := prometheus.NewRegistry()
//	p := pool.New(pool.Config{})
//	m, err := metrics.New(reg, p, metrics.Options{Namespace: "myapp"})
//	...
//	cl := &httpexec.Client{Pool: p, Handlers: &httpexec.HandlerGroup{}}
//	cl.Handlers.Subscribe(m)
package metrics

import (
	"strconv"

	"github.com/gogama/httpexec"
	"github.com/gogama/httpexec/pool"
	"github.com/gogama/httpexec/request"
	"github.com/prometheus/client_golang/prometheus"
)

// Options holds the naming and bucket settings of the collectors.
type Options struct {
	// Namespace prefixes every metric name. If empty, "httpexec" is
	// used.
	Namespace string
	// DurationBuckets are the histogram buckets, in seconds, for
	// execution duration. If empty, prometheus.DefBuckets is used.
	DurationBuckets []float64
}

// A Collector counts client events and observes completed executions.
// It implements httpexec.Handler.
type Collector struct {
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	sends    prometheus.Histogram
}

// New creates a collector and registers its metrics with reg. If p is
// not nil, gauges reporting the pool's occupancy are registered too.
func New(reg prometheus.Registerer, p *pool.Pool, opts Options) (*Collector, error) {
	ns := opts.Namespace
	if ns == "" {
		ns = "httpexec"
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	c := &Collector{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "events_total",
			Help:      "Number of execution events fired, by event.",
		}, []string{"event"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "execution_duration_seconds",
			Help:      "Duration of completed executions, by status code and proxy use.",
			Buckets:   buckets,
		}, []string{"code", "proxied"}),
		sends: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "execution_sends",
			Help:      "Number of transmissions per completed execution, including authentication retries.",
			Buckets:   []float64{1, 2, 3, 4, 6, 10},
		}),
	}
	for _, evt := range httpexec.Events() {
		c.events.WithLabelValues(evt.Name())
	}
	collectors := []prometheus.Collector{c.events, c.duration, c.sends}
	if p != nil {
		collectors = append(collectors, poolGauges(ns, p)...)
	}
	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Handle counts the event, and observes the execution if it completed.
func (c *Collector) Handle(evt httpexec.Event, e *request.Execution) {
	c.events.WithLabelValues(evt.Name()).Inc()
	if evt != httpexec.Completed {
		return
	}
	c.duration.WithLabelValues(strconv.Itoa(e.StatusCode()), strconv.FormatBool(e.Proxied())).
		Observe(e.Duration().Seconds())
	c.sends.Observe(float64(e.Sends))
}

func poolGauges(ns string, p *pool.Pool) []prometheus.Collector {
	gauge := func(name, help string, f func(pool.Stats) int) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "pool",
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(f(p.Stats()))
		})
	}
	return []prometheus.Collector{
		gauge("keys", "Number of connection keys tracked by the pool.",
			func(s pool.Stats) int { return s.Keys }),
		gauge("idle_connections", "Number of idle pooled connections.",
			func(s pool.Stats) int { return s.Idle }),
		gauge("in_use_connections", "Number of pooled connections checked out.",
			func(s pool.Stats) int { return s.InUse }),
		gauge("reserved_slots", "Number of slots reserved for connections being opened.",
			func(s pool.Stats) int { return s.Reserved }),
	}
}

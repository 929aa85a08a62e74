// Package metrics exposes the engine counters as a prometheus collector.
//
// The counters themselves stay plain atomics owned by the components that update them; the collector
// reads them at scrape time through CounterFunc and GaugeFunc metrics.
package metrics

import (
	"github.com/arloliu/go-eyescan/scan"
	"github.com/arloliu/go-eyescan/watch"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "eyescan"

// Source holds the counters read by the collector. Nil fields are skipped.
type Source struct {
	Scans   *scan.Metrics
	Watches *watch.Stats
}

// Collector is a prometheus.Collector over the engine counters.
type Collector struct {
	funcs   map[string]prometheus.Collector
	dropped *prometheus.CounterVec
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector for src. An empty namespace uses DefaultNamespace.
func NewCollector(namespace string, src Source) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	c := &Collector{
		funcs: make(map[string]prometheus.Collector),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_events_by_reason_total",
			Help:      "Scan events dropped by the dispatcher, by reason.",
		}, []string{"reason"}),
	}

	counter := func(name, help string, fn func() float64) {
		c.funcs[name] = prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: name, Help: help,
		}, fn)
	}
	gauge := func(name, help string, fn func() float64) {
		c.funcs[name] = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: name, Help: help,
		}, fn)
	}

	if m := src.Scans; m != nil {
		counter("sessions_created_total", "Scan sessions created.",
			func() float64 { return float64(m.SessionsCreated.Load()) })
		counter("sessions_deleted_total", "Scan sessions deleted.",
			func() float64 { return float64(m.SessionsDeleted.Load()) })
		counter("scans_started_total", "Scan runs accepted by the remote service.",
			func() float64 { return float64(m.ScansStarted.Load()) })
		counter("scans_done_total", "Scan runs that completed.",
			func() float64 { return float64(m.ScansDone.Load()) })
		counter("scans_aborted_total", "Scan runs that were stopped or failed.",
			func() float64 { return float64(m.ScansAborted.Load()) })
		gauge("scans_active", "Scan runs in progress.",
			func() float64 { return float64(m.ScansActive.Load()) })
		counter("raw_points_total", "Raw scan points received.",
			func() float64 { return float64(m.RawPoints.Load()) })
		counter("progress_events_total", "Scan progress events received.",
			func() float64 { return float64(m.ProgressEvents.Load()) })
		counter("dropped_events_total", "Scan events that could not be delivered.",
			func() float64 { return float64(m.DroppedEvents.Load()) })
	}

	if s := src.Watches; s != nil {
		counter("watch_changes_delivered_total", "Property changes handed to watch listeners.",
			func() float64 { return float64(s.Delivered.Load()) })
		counter("watch_changes_unwatched_total", "Property changes without an active watch.",
			func() float64 { return float64(s.Unwatched.Load()) })
	}

	return c
}

// ObserveDropped counts a dropped scan event under reason.
func (c *Collector) ObserveDropped(reason string) {
	c.dropped.WithLabelValues(reason).Inc()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, f := range c.funcs {
		f.Describe(ch)
	}
	c.dropped.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, f := range c.funcs {
		f.Collect(ch)
	}
	c.dropped.Collect(ch)
}

package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric namespace shared by every nexus collector.
const Namespace = "nexus"

// Flush results.
const (
	FlushPersisted = "persisted"
	FlushUnchanged = "unchanged"
	FlushFailed    = "failed"
)

// Merge results.
const (
	MergeMerged   = "merged"
	MergeRejected = "rejected"
)

// Metrics collects engine statistics. A nil *Metrics records nothing.
type Metrics struct {
	flushes       *prometheus.CounterVec
	merges        *prometheus.CounterVec
	lastSynced    prometheus.Gauge
	documentBytes prometheus.Gauge
}

// NewMetrics creates the engine collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "flushes_total",
			Help:      "Number of flushes by result (persisted, unchanged, failed)",
		}, []string{"result"}),

		merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "merges_total",
			Help:      "Number of inbound merges by result (merged, rejected)",
		}, []string{"result"}),

		lastSynced: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_synced_timestamp_seconds",
			Help:      "Unix time of the last flush that persisted bytes",
		}),

		documentBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "document_bytes",
			Help:      "Size of the last persisted document",
		}),
	}

	// just creates the series so they export as 0
	for _, r := range []string{FlushPersisted, FlushUnchanged, FlushFailed} {
		m.flushes.WithLabelValues(r).Add(0)
	}
	for _, r := range []string{MergeMerged, MergeRejected} {
		m.merges.WithLabelValues(r).Add(0)
	}

	if reg != nil {
		reg.MustRegister(m.flushes, m.merges, m.lastSynced, m.documentBytes)
	}
	return m
}

func (m *Metrics) flush(result string) {
	if m == nil {
		return
	}
	m.flushes.WithLabelValues(result).Inc()
}

func (m *Metrics) merge(result string) {
	if m == nil {
		return
	}
	m.merges.WithLabelValues(result).Inc()
}

func (m *Metrics) persisted(at time.Time, size int) {
	if m == nil {
		return
	}
	m.lastSynced.Set(float64(at.UnixMilli()) / 1000)
	m.documentBytes.Set(float64(size))
}

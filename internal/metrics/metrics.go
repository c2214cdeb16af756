// Package metrics provides Prometheus metrics for the Cascade store.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the store's Prometheus collectors. A nil *Metrics is
// valid and records nothing, so metrics can be disabled by config
// without guarding every call site.
type Metrics struct {
	chunksWritten  *prometheus.CounterVec
	bytesIn        prometheus.Counter
	bytesStored    prometheus.Counter
	chunksRead     prometheus.Counter
	bytesRead      prometheus.Counter
	writeDuration  prometheus.Histogram
	readDuration   prometheus.Histogram
	versionsActive prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		chunksWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cascade",
			Subsystem: "cas",
			Name:      "chunks_written_total",
			Help:      "Chunk puts, partitioned by whether the object was created or deduplicated.",
		}, []string{"outcome"}),
		bytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cascade",
			Subsystem: "cas",
			Name:      "bytes_in_total",
			Help:      "Uncompressed bytes submitted to put.",
		}),
		bytesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cascade",
			Subsystem: "cas",
			Name:      "bytes_stored_total",
			Help:      "Compressed bytes written to newly created objects.",
		}),
		chunksRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cascade",
			Subsystem: "cas",
			Name:      "chunks_read_total",
			Help:      "Chunk gets served.",
		}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cascade",
			Subsystem: "cas",
			Name:      "bytes_read_total",
			Help:      "Uncompressed bytes returned by get.",
		}),
		writeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cascade",
			Subsystem: "file",
			Name:      "write_duration_seconds",
			Help:      "Full-file write latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
		readDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cascade",
			Subsystem: "file",
			Name:      "read_duration_seconds",
			Help:      "File read latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
		versionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cascade",
			Subsystem: "index",
			Name:      "versions_active",
			Help:      "Version entries currently tracked across all names.",
		}),
	}

	reg.MustRegister(
		m.chunksWritten,
		m.bytesIn,
		m.bytesStored,
		m.chunksRead,
		m.bytesRead,
		m.writeDuration,
		m.readDuration,
		m.versionsActive,
	)
	return m
}

// ObservePut records one chunk put.
func (m *Metrics) ObservePut(created bool, origSize, storedSize int) {
	if m == nil {
		return
	}
	outcome := "deduplicated"
	if created {
		outcome = "created"
		m.bytesStored.Add(float64(storedSize))
	}
	m.chunksWritten.WithLabelValues(outcome).Inc()
	m.bytesIn.Add(float64(origSize))
}

// ObserveGet records one chunk get.
func (m *Metrics) ObserveGet(n int) {
	if m == nil {
		return
	}
	m.chunksRead.Inc()
	m.bytesRead.Add(float64(n))
}

// ObserveWrite records a full-file write latency.
func (m *Metrics) ObserveWrite(seconds float64) {
	if m == nil {
		return
	}
	m.writeDuration.Observe(seconds)
}

// ObserveRead records a file read latency.
func (m *Metrics) ObserveRead(seconds float64) {
	if m == nil {
		return
	}
	m.readDuration.Observe(seconds)
}

// VersionAdded moves the active-version gauge.
func (m *Metrics) VersionAdded() {
	if m == nil {
		return
	}
	m.versionsActive.Inc()
}

// VersionsRemoved moves the active-version gauge down by n.
func (m *Metrics) VersionsRemoved(n int) {
	if m == nil {
		return
	}
	m.versionsActive.Sub(float64(n))
}

// Package metrics exposes the engine's Prometheus instrumentation,
// adapted from pmtiles/server_metrics.go: one struct of counters/
// gauges/histograms, registered against a caller-supplied registry
// rather than the global default so multiple Array instances in one
// process don't collide.
package metrics

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every counter/gauge/histogram the engine updates
// during writes and reads.
type Metrics struct {
	writesTotal    *prometheus.CounterVec
	writeDuration  *prometheus.HistogramVec
	cellsWritten   *prometheus.CounterVec
	readsTotal     *prometheus.CounterVec
	readDuration   *prometheus.HistogramVec
	cellsRead      *prometheus.CounterVec
	incompleteReads *prometheus.CounterVec

	bufferCacheEntries   prometheus.Gauge
	bufferCacheSizeBytes prometheus.Gauge
	bufferCacheRequests  *prometheus.CounterVec

	tileFilterErrors *prometheus.CounterVec
	consolidations   *prometheus.CounterVec
}

// New creates a Metrics struct and registers every collector against
// reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		writesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sparsearray",
			Name:      "writes_total",
		}, []string{"array", "status"}),
		writeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sparsearray",
			Name:      "write_duration_seconds",
		}, []string{"array"}),
		cellsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sparsearray",
			Name:      "cells_written_total",
		}, []string{"array"}),
		readsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sparsearray",
			Name:      "reads_total",
		}, []string{"array", "status"}),
		readDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sparsearray",
			Name:      "read_duration_seconds",
		}, []string{"array"}),
		cellsRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sparsearray",
			Name:      "cells_read_total",
		}, []string{"array"}),
		incompleteReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sparsearray",
			Name:      "incomplete_reads_total",
		}, []string{"array"}),
		bufferCacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sparsearray",
			Name:      "buffer_cache_entries",
		}),
		bufferCacheSizeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sparsearray",
			Name:      "buffer_cache_size_bytes",
		}),
		bufferCacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sparsearray",
			Name:      "buffer_cache_requests_total",
		}, []string{"result"}),
		tileFilterErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sparsearray",
			Name:      "tile_filter_errors_total",
		}, []string{"array", "attribute"}),
		consolidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sparsearray",
			Name:      "consolidations_total",
		}, []string{"array", "status"}),
	}
	for _, c := range []prometheus.Collector{
		m.writesTotal, m.writeDuration, m.cellsWritten,
		m.readsTotal, m.readDuration, m.cellsRead, m.incompleteReads,
		m.bufferCacheEntries, m.bufferCacheSizeBytes, m.bufferCacheRequests,
		m.tileFilterErrors, m.consolidations,
	} {
		if err := reg.Register(c); err != nil {
			log.Printf("metrics: registering collector: %v", err)
		}
	}
	return m
}

// WriteTracker times one Write call for array.
type WriteTracker struct {
	start time.Time
	array string
	m     *Metrics
}

// StartWrite begins timing a write against array.
func (m *Metrics) StartWrite(array string) *WriteTracker {
	return &WriteTracker{start: time.Now(), array: array, m: m}
}

// Finish records the write's outcome and cell count.
func (t *WriteTracker) Finish(status string, cells int) {
	t.m.writesTotal.WithLabelValues(t.array, status).Inc()
	t.m.writeDuration.WithLabelValues(t.array).Observe(time.Since(t.start).Seconds())
	t.m.cellsWritten.WithLabelValues(t.array).Add(float64(cells))
}

// ReadTracker times one Read call for array.
type ReadTracker struct {
	start time.Time
	array string
	m     *Metrics
}

// StartRead begins timing a read against array.
func (m *Metrics) StartRead(array string) *ReadTracker {
	return &ReadTracker{start: time.Now(), array: array, m: m}
}

// Finish records the read's outcome and cell count.
func (t *ReadTracker) Finish(status string, cells int) {
	t.m.readsTotal.WithLabelValues(t.array, status).Inc()
	t.m.readDuration.WithLabelValues(t.array).Observe(time.Since(t.start).Seconds())
	t.m.cellsRead.WithLabelValues(t.array).Add(float64(cells))
	if status == "incomplete" {
		t.m.incompleteReads.WithLabelValues(t.array).Inc()
	}
}

// UpdateBufferCache records the current entry count and byte footprint
// of a BufferCache.
func (m *Metrics) UpdateBufferCache(entries int, sizeBytes int64) {
	m.bufferCacheEntries.Set(float64(entries))
	m.bufferCacheSizeBytes.Set(float64(sizeBytes))
}

// RecordBufferCacheRequest counts a cache hit or miss.
func (m *Metrics) RecordBufferCacheRequest(hit bool) {
	if hit {
		m.bufferCacheRequests.WithLabelValues("hit").Inc()
	} else {
		m.bufferCacheRequests.WithLabelValues("miss").Inc()
	}
}

// RecordTileFilterError counts a tile dropped from the candidate set
// due to a filter-pipeline error (spec.md §4.4's non-recoverable-per-tile
// policy).
func (m *Metrics) RecordTileFilterError(array, attribute string) {
	m.tileFilterErrors.WithLabelValues(array, attribute).Inc()
}

// RecordConsolidation counts a Consolidate call's outcome.
func (m *Metrics) RecordConsolidation(array, status string) {
	m.consolidations.WithLabelValues(array, status).Inc()
}

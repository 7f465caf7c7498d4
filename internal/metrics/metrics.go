// Package metrics exposes Prometheus metrics for the index and cache engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zaudiobrowser_cache_lookups_total",
			Help: "Total cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	archivesScannedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zaudiobrowser_archives_scanned_total",
			Help: "Archives scanned by outcome",
		},
		[]string{"outcome"},
	)

	entriesIndexedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zaudiobrowser_entries_indexed_total",
			Help: "Total archive entries added to virtual trees",
		},
	)

	scanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zaudiobrowser_scan_duration_seconds",
			Help:    "Time to index one archive",
			Buckets: prometheus.DefBuckets,
		},
	)

	treeSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "zaudiobrowser_tree_nodes",
			Help: "Nodes in the most recently built virtual tree",
		},
	)

	extractedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zaudiobrowser_extracted_bytes_total",
			Help: "Total decompressed bytes delivered to sinks",
		},
	)

	extractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zaudiobrowser_extractions_total",
			Help: "Entry extractions by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordCacheLookup counts a cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		cacheLookupsTotal.WithLabelValues("hit").Inc()
	} else {
		cacheLookupsTotal.WithLabelValues("miss").Inc()
	}
}

// RecordArchiveScanned counts one archive scan and its entry yield.
func RecordArchiveScanned(entries int, seconds float64) {
	archivesScannedTotal.WithLabelValues("ok").Inc()
	entriesIndexedTotal.Add(float64(entries))
	scanDuration.Observe(seconds)
}

// RecordArchiveFailed counts an archive that could not be indexed.
func RecordArchiveFailed() {
	archivesScannedTotal.WithLabelValues("failed").Inc()
}

// SetTreeSize records the node count of the active tree.
func SetTreeSize(nodes int) {
	treeSize.Set(float64(nodes))
}

// RecordExtraction counts one entry extraction.
func RecordExtraction(bytes int64, err error) {
	if err != nil {
		extractionsTotal.WithLabelValues("failed").Inc()
		return
	}
	extractionsTotal.WithLabelValues("ok").Inc()
	extractedBytesTotal.Add(float64(bytes))
}

// SPDX-License-Identifier: LGPL-3.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CodeScanDuration tracks how long a repository scan takes.
	CodeScanDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "codeindex",
			Name:      "scan_duration_seconds",
			Help:      "Duration of a repository scan",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 15),
		},
		[]string{"repo"},
	)

	// CodeFilesChanged counts files whose content hash changed since the last scan.
	CodeFilesChanged = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "codeindex",
			Name:      "files_changed_total",
			Help:      "Total number of files with a changed content hash",
		},
		[]string{"repo"},
	)

	// GraphEntitiesLoaded tracks entities written to the property graph.
	GraphEntitiesLoaded = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graphloader",
			Name:      "entities_loaded",
			Help:      "Number of entities written in the most recent load",
		},
		[]string{"repo"},
	)

	// GraphEdgesLoaded tracks edges written to the property graph.
	GraphEdgesLoaded = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graphloader",
			Name:      "edges_loaded",
			Help:      "Number of edges written in the most recent load",
		},
		[]string{"repo"},
	)

	// GraphLoadFallbacks counts batch inserts that fell back to per-row inserts.
	GraphLoadFallbacks = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graphloader",
			Name:      "batch_fallbacks_total",
			Help:      "Total number of batch inserts that fell back to single-row inserts",
		},
	)
)

// SPDX-License-Identifier: LGPL-3.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PipelinePhaseDuration tracks how long each pipeline phase takes.
	PipelinePhaseDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "phase_duration_seconds",
			Help:      "Duration of a knowledge pipeline phase",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
		},
		[]string{"phase"}, // rid, manifest, bundle, network, final
	)

	// PipelineStopChain counts handlers that short-circuited a phase.
	PipelineStopChain = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stop_chain_total",
			Help:      "Total number of handlers that returned STOP_CHAIN",
		},
		[]string{"phase", "handler"},
	)

	// PipelineObjectsProcessed counts knowledge objects that completed all phases.
	PipelineObjectsProcessed = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "objects_processed_total",
			Help:      "Total number of knowledge objects that reached the final phase",
		},
	)
)

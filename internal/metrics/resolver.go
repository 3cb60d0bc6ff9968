// SPDX-License-Identifier: LGPL-3.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolverTierHits counts resolutions by the tier that produced the
	// match, or by "unresolved" / "error" when none did.
	ResolverTierHits = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "tier_hits_total",
			Help:      "Total number of entity resolutions per tier",
		},
		[]string{"tier"}, // exact, alias, fuzzy, semantic, unresolved, error
	)

	// ResolverDuration tracks how long a full multi-tier resolution takes.
	ResolverDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolve_duration_seconds",
			Help:      "Duration of a multi-tier entity resolution",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
		},
	)
)

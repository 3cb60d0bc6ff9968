// SPDX-License-Identifier: LGPL-3.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebFetches counts fetch attempts by outcome.
	WebFetches = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webmonitor",
			Name:      "fetches_total",
			Help:      "Total number of web submission fetch attempts",
		},
		[]string{"outcome"}, // ok, rate_limited, headless_fallback, error
	)

	// WebHashChanges counts fetches whose content hash differed from the last seen value.
	WebHashChanges = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webmonitor",
			Name:      "hash_changes_total",
			Help:      "Total number of fetches that detected a content change",
		},
	)
)

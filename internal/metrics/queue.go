// SPDX-License-Identifier: LGPL-3.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth tracks the number of unexpired events currently queued.
	QueueDepth = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of unexpired events in the queue",
		},
	)

	// EventsAdded tracks events added to the queue.
	EventsAdded = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "events_added_total",
			Help:      "Total number of events added to the queue",
		},
		[]string{"origin"}, // local, inbound
	)

	// EventsPolled tracks events handed out by Poll.
	EventsPolled = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "events_polled_total",
			Help:      "Total number of events returned by Poll",
		},
	)

	// EventsConfirmed tracks events acknowledged by Confirm.
	EventsConfirmed = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "events_confirmed_total",
			Help:      "Total number of events acknowledged by Confirm",
		},
	)

	// EventsExpired tracks events removed by Cleanup.
	EventsExpired = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "events_expired_total",
			Help:      "Total number of events removed by Cleanup",
		},
	)
)
